// Package hotload implements C4, the Hot Loader of spec.md §4.5: watches
// each registered plugin directory and marks a plugin dirty on any file
// event for one of its .py, .json or .env files, debounced and self-healing
// on watcher failure, grounded on inipew-pewbot/internal/config/manager.go's
// watch loop. File contents are not hashed or compared, so an event that
// leaves a file's bytes unchanged also marks the plugin dirty.
package hotload

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EventKind distinguishes the two observability callbacks spec.md §4.5
// names: loaded(plugin) and error(plugin, message).
type EventKind int

const (
	EventLoaded EventKind = iota
	EventError
)

// Event is published to subscribers on every dirty transition or watch
// error. Callbacks MUST NOT block the loader, per spec.md §4.5, so
// delivery is always non-blocking (buffered channel, drop-if-full).
type Event struct {
	Kind    EventKind
	Plugin  string
	Message string
}

// Loader is C4's operation set.
type Loader interface {
	Watch(pluginName, dir string) error
	Unwatch(pluginName string)
	IsDirty(pluginName string) bool
	ClearDirty(pluginName string)
	Events() <-chan Event
	Close() error
}

type watchedPlugin struct {
	dir     string
	dirty   bool
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

type fsLoader struct {
	debounce time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	plugins  map[string]*watchedPlugin
	events   chan Event
}

// New constructs a loader with the given debounce window (spec.md §4.5
// defaults to 500ms).
func New(debounce time.Duration, log zerolog.Logger) Loader {
	return &fsLoader{
		debounce: debounce,
		log:      log,
		plugins:  map[string]*watchedPlugin{},
		events:   make(chan Event, 256),
	}
}

func (l *fsLoader) Events() <-chan Event { return l.events }

func (l *fsLoader) publish(ev Event) {
	select {
	case l.events <- ev:
	default:
		// drop oldest, best-effort deliver latest, matching the pewbot
		// teacher's slow-subscriber handling.
		select {
		case <-l.events:
		default:
		}
		select {
		case l.events <- ev:
		default:
		}
	}
}

// Watch starts watching one plugin's directory for changes to *.py, *.json,
// or its .env file — the global plugins-root env file is intentionally
// never watched here, per spec.md §4.5.
func (l *fsLoader) Watch(pluginName, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &watchedPlugin{dir: dir, watcher: watcher, cancel: cancel}

	l.mu.Lock()
	if old, ok := l.plugins[pluginName]; ok {
		old.cancel()
		old.watcher.Close()
	}
	l.plugins[pluginName] = wp
	l.mu.Unlock()

	go l.watchLoop(ctx, pluginName, wp)
	return nil
}

// watchLoop self-heals a dropped fsnotify watcher with exponential backoff,
// grounded on the pewbot teacher's Watch restart loop.
func (l *fsLoader) watchLoop(ctx context.Context, pluginName string, wp *watchedPlugin) {
	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	markDirty := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(l.debounce, func() {
			l.mu.Lock()
			if wp2, ok := l.plugins[pluginName]; ok {
				wp2.dirty = true
			}
			l.mu.Unlock()
			l.publish(Event{Kind: EventLoaded, Plugin: pluginName})
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-wp.watcher.Events:
			if !ok {
				l.publish(Event{Kind: EventError, Plugin: pluginName, Message: "watcher channel closed, restarting"})
				if !l.restart(ctx, pluginName, wp, &backoff, backoffMax, rng) {
					return
				}
				continue
			}
			if relevantChange(ev) {
				markDirty()
			}
		case err, ok := <-wp.watcher.Errors:
			if !ok {
				continue
			}
			l.publish(Event{Kind: EventError, Plugin: pluginName, Message: err.Error()})
		}
	}
}

func relevantChange(ev fsnotify.Event) bool {
	ext := filepath.Ext(ev.Name)
	base := filepath.Base(ev.Name)
	return ext == ".py" || ext == ".json" || base == ".env"
}

func (l *fsLoader) restart(ctx context.Context, pluginName string, wp *watchedPlugin, backoff *time.Duration, max time.Duration, rng *rand.Rand) bool {
	jitter := time.Duration(rng.Int63n(int64(*backoff) + 1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff + jitter):
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.publish(Event{Kind: EventError, Plugin: pluginName, Message: "watcher restart failed: " + err.Error()})
		*backoff = minDuration(*backoff*2, max)
		return true
	}
	if err := watcher.Add(wp.dir); err != nil {
		watcher.Close()
		l.publish(Event{Kind: EventError, Plugin: pluginName, Message: "watcher re-add failed: " + err.Error()})
		*backoff = minDuration(*backoff*2, max)
		return true
	}

	l.mu.Lock()
	wp.watcher.Close()
	wp.watcher = watcher
	l.mu.Unlock()

	*backoff = 250 * time.Millisecond
	return true
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (l *fsLoader) Unwatch(pluginName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wp, ok := l.plugins[pluginName]; ok {
		wp.cancel()
		wp.watcher.Close()
		delete(l.plugins, pluginName)
	}
}

func (l *fsLoader) IsDirty(pluginName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	wp, ok := l.plugins[pluginName]
	return ok && wp.dirty
}

func (l *fsLoader) ClearDirty(pluginName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wp, ok := l.plugins[pluginName]; ok {
		wp.dirty = false
	}
}

func (l *fsLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, wp := range l.plugins {
		wp.cancel()
		wp.watcher.Close()
	}
	l.plugins = map[string]*watchedPlugin{}
	close(l.events)
	return nil
}
