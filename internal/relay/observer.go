package relay

import (
	"context"
	"time"
)

// EventType names a launcher lifecycle event.
type EventType string

// Lifecycle events emitted by the Launcher.
const (
	EventStarted       EventType = "relay.started"
	EventStopped       EventType = "relay.stopped"
	EventStartFailed   EventType = "relay.start_failed"
	EventLost          EventType = "relay.lost"
	EventConfigUpdated EventType = "relay.config_updated"
	EventHealthChecked EventType = "relay.health_checked"
)

// Event describes something that happened to the relay.
type Event struct {
	Type     EventType    `json:"type"`
	Time     time.Time    `json:"time"`
	Status   Status       `json:"status"`
	Strategy string       `json:"strategy,omitempty"`
	Message  string       `json:"message"`
	Probe    *ProbeResult `json:"probe,omitempty"`
	Err      string       `json:"error,omitempty"`
}

// Observer receives lifecycle events. Implementations must not block and
// must not call back into the Launcher.
type Observer interface {
	RelayEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// RelayEvent calls f.
func (f ObserverFunc) RelayEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans one event out to several observers in order.
type Observers []Observer

// RelayEvent delivers ev to every non-nil observer.
func (o Observers) RelayEvent(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.RelayEvent(ctx, ev)
		}
	}
}
