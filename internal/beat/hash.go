package beat

import (
	"encoding/json"
	"hash/fnv"

	"pluginsched/internal/store"
)

// signatureTuple is the exact field set spec.md §4.3.3 signal 3 names:
// (id, parameters, schedule_type, schedule_config, priority, max_retries,
// timeout_seconds, enabled, updated_at).
type signatureTuple struct {
	ID             string          `json:"id"`
	Parameters     store.JSONMap   `json:"parameters"`
	ScheduleType   store.ScheduleType `json:"schedule_type"`
	ScheduleConfig store.JSONMap   `json:"schedule_config"`
	Priority       int             `json:"priority"`
	MaxRetries     int             `json:"max_retries"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	Enabled        bool            `json:"enabled"`
	UpdatedAt      int64           `json:"updated_at"`
}

// contentHashOf implements signal 3: a stable hash over the sorted
// enabled tasks' signature tuples, grounded on
// inipew-pewbot/internal/plugin/hash.go's canonicalHashJSON pair. This
// package hashes with hash/fnv directly instead of sharing a helper;
// internal/registry/hash.go keeps its own per-package copy.
func contentHashOf(sortedTasks []store.Task) uint64 {
	tuples := make([]signatureTuple, 0, len(sortedTasks))
	for _, t := range sortedTasks {
		tuples = append(tuples, signatureTuple{
			ID:             t.ID,
			Parameters:     t.Parameters,
			ScheduleType:   t.ScheduleType,
			ScheduleConfig: t.ScheduleConfig,
			Priority:       t.Priority,
			MaxRetries:     t.MaxRetries,
			TimeoutSeconds: t.TimeoutSeconds,
			Enabled:        t.Enabled,
			UpdatedAt:      t.UpdatedAt.UnixNano(),
		})
	}
	b, err := json.Marshal(tuples)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
