package appctx

import (
	"fmt"
	"time"
)

// schedulerLocation resolves the configured timezone name into a
// *time.Location, defaulting to UTC for an empty value, per spec.md §6's
// "cron ... evaluated in a configured timezone".
func schedulerLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
