package config

import "context"

// ConfigSource is one layer of configuration: defaults, a file, the
// environment, flags.
type ConfigSource interface {
	// Load returns this source's values as a string-keyed map, possibly with
	// nested maps. It must return a copy and be safe for concurrent use, and
	// should return ctx.Err() once ctx is cancelled.
	Load(ctx context.Context) (map[string]any, error)

	// Watch arranges for a value to be sent on ch whenever the source
	// changes, until ctx is cancelled. It must not block: implementations
	// start their own goroutine and return. Sources that cannot change
	// return nil without doing anything. The channel is never closed by the
	// source. Watcher failures are reported as an Event with Err set.
	Watch(ctx context.Context, ch chan<- Event) error

	// Name identifies the source in errors and logs: "file", "env", "cli".
	Name() string
}

// Event is a configuration change notification.
type Event struct {
	// ChangedKeys lists the top-level struct field names whose values differ,
	// e.g. ["Server"] when only Server.Addr changed.
	ChangedKeys []string

	OldConfig any
	NewConfig any

	// Err is set by a source whose watcher failed; no reload follows.
	Err error
}
