package history

import (
	"context"
	"time"

	"github.com/privacylion/relay-operator/internal/relay"
)

// recordTimeout bounds one insert so a busy database cannot stall the launcher.
const recordTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder is a relay.Observer that persists every lifecycle event.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RelayEvent stores ev. Write failures are logged, never returned.
func (r *Recorder) RelayEvent(ctx context.Context, ev relay.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	rec := FromRelayEvent(ev)
	if err := r.repo.Create(ctx, &rec); err != nil && r.logger != nil {
		r.logger.Warn("recording relay event", "type", ev.Type, "error", err)
	}
}

// FromRelayEvent converts a launcher event into a history record.
func FromRelayEvent(ev relay.Event) Event {
	details := map[string]any{
		"state":   string(ev.Status.State),
		"running": ev.Status.Running,
	}
	if ev.Status.PID != 0 {
		details["pid"] = ev.Status.PID
	}
	if ev.Err != "" {
		details["error"] = ev.Err
	}
	if p := ev.Probe; p != nil {
		details["probe"] = p.Kind
		details["alive"] = p.Alive
		details["latency_ms"] = float64(p.Latency.Microseconds()) / 1000
		if p.Err != "" {
			details["probe_error"] = p.Err
		}
	}

	return Event{
		Type:      string(ev.Type),
		Strategy:  ev.Strategy,
		Port:      ev.Status.Port,
		Message:   ev.Message,
		Details:   details,
		CreatedAt: ev.Time,
	}
}
