package bus

import (
	"github.com/mudler/go-pluggable"
)

const (
	// Pipeline lifecycle events.

	// EventBurnBefore is emitted right before a pipeline run starts, with the
	// run configuration as payload (the passphrase is stripped).
	EventBurnBefore pluggable.EventType = "burn.before"

	// EventBurnStage is emitted on every stage transition of a running
	// pipeline.
	EventBurnStage pluggable.EventType = "burn.stage"

	// EventBurnAfter is emitted when a pipeline run finishes, with the run
	// result as payload.
	EventBurnAfter pluggable.EventType = "burn.after"

	// EventBurnError is emitted when a pipeline run fails or is cancelled.
	EventBurnError pluggable.EventType = "burn.error"

	// EventDiscoveryPassword asks providers for the encryption passphrase of
	// a device when none was configured.
	EventDiscoveryPassword pluggable.EventType = "discovery.password"
)

// AllEvents is a convenience list of all the events this bus emits.
var AllEvents = []pluggable.EventType{
	EventBurnBefore,
	EventBurnStage,
	EventBurnAfter,
	EventBurnError,
	EventDiscoveryPassword,
}

// EventError wraps an error into a provider event response.
func EventError(err error) pluggable.EventResponse {
	return pluggable.EventResponse{Error: err.Error()}
}
