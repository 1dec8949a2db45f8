package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/privacylion/relay-operator/internal/history"
	"github.com/privacylion/relay-operator/internal/infrastructure/influxdb"
	"github.com/privacylion/relay-operator/internal/infrastructure/logging"
	"github.com/privacylion/relay-operator/internal/infrastructure/mqtt"
	"github.com/privacylion/relay-operator/internal/relay"
)

// commandTimeout bounds a relay operation triggered over MQTT.
const commandTimeout = 2 * time.Minute

// logObserver writes every relay event to the application log.
func logObserver(log *logging.Logger) relay.Observer {
	return relay.ObserverFunc(func(_ context.Context, ev relay.Event) {
		args := []any{"event", ev.Type, "state", ev.Status.State, "port", ev.Status.Port}
		if ev.Strategy != "" {
			args = append(args, "strategy", ev.Strategy)
		}
		if ev.Err != "" {
			args = append(args, "error", ev.Err)
		}
		if ev.Type == relay.EventStartFailed || ev.Type == relay.EventLost {
			log.Warn(ev.Message, args...)
			return
		}
		log.Info(ev.Message, args...)
	})
}

// statusMessage is the JSON published on the MQTT status and events topics.
type statusMessage struct {
	Event     string       `json:"event,omitempty"`
	Message   string       `json:"message"`
	Status    relay.Status `json:"status"`
	RequestID string       `json:"request_id,omitempty"`
	Timestamp string       `json:"timestamp"`
}

func newStatusMessage(event, message string, st relay.Status, at time.Time) statusMessage {
	return statusMessage{
		Event:     event,
		Message:   message,
		Status:    st,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// publisher is the part of *mqtt.Client the MQTT observer uses.
type publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// mqttObserver publishes relay events to the bus. Lifecycle changes also
// replace the retained status; health checks only go to the events topic.
type mqttObserver struct {
	client publisher
	topics mqtt.Topics
	log    *logging.Logger
}

func (o *mqttObserver) RelayEvent(_ context.Context, ev relay.Event) {
	payload, err := json.Marshal(newStatusMessage(string(ev.Type), ev.Message, ev.Status, ev.Time))
	if err != nil {
		o.log.Error("encoding relay event", "error", err)
		return
	}

	if ev.Type != relay.EventHealthChecked && ev.Type != relay.EventConfigUpdated {
		if err := o.client.PublishRetained(o.topics.Status(), payload); err != nil {
			o.log.Debug("publishing relay status", "error", err)
		}
	}
	if err := o.client.PublishEvent(o.topics.Events(), payload); err != nil {
		o.log.Debug("publishing relay event", "error", err)
	}
}

// probeWriter is the part of *influxdb.Client the telemetry observer uses.
type probeWriter interface {
	WriteProbe(s influxdb.ProbeSample)
	WriteHealth(port int, portAccessible, relayOnline bool)
	Flush()
}

// influxObserver records probe results as time series. The write buffer is
// flushed when a run ends so its last samples are not held back.
type influxObserver struct {
	client probeWriter
}

func (o *influxObserver) RelayEvent(_ context.Context, ev relay.Event) {
	if ev.Probe != nil {
		o.client.WriteProbe(influxdb.ProbeSample{
			Strategy: ev.Strategy,
			Probe:    ev.Probe.Kind,
			Port:     ev.Probe.Port,
			Alive:    ev.Probe.Alive,
			Latency:  ev.Probe.Latency,
			Time:     ev.Time,
		})
	}
	switch ev.Type {
	case relay.EventHealthChecked:
		o.client.WriteHealth(ev.Status.Port, ev.Status.State != relay.StateStopped, ev.Status.Running)
	case relay.EventStopped, relay.EventLost:
		o.client.Flush()
	}
}

// relayControl is the launcher surface driven by MQTT commands.
type relayControl interface {
	Start(ctx context.Context) (relay.Status, error)
	Stop(ctx context.Context) (relay.Status, error)
	Status(ctx context.Context) (relay.Status, error)
}

// commandHandler dispatches commands received on the MQTT command topic.
// The relay operation runs in its own goroutine because Start blocks for
// the settle delay and paho delivers messages in order on one goroutine.
func commandHandler(ctx context.Context, launcher relayControl, client publisher, topics mqtt.Topics, log *logging.Logger) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		cmd, err := mqtt.ParseCommand(payload)
		if err != nil {
			return err
		}
		log.Info("relay command received", "action", cmd.Action, "request_id", cmd.RequestID)

		go func() {
			opCtx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			var st relay.Status
			var opErr error
			switch cmd.Action {
			case mqtt.ActionStart:
				st, opErr = launcher.Start(opCtx)
			case mqtt.ActionStop:
				st, opErr = launcher.Stop(opCtx)
			case mqtt.ActionStatus:
				st, opErr = launcher.Status(opCtx)
			}
			if opErr != nil {
				log.Warn("relay command failed", "action", cmd.Action, "error", opErr)
			}

			reply := newStatusMessage("command."+cmd.Action, st.Message, st, time.Now())
			reply.RequestID = cmd.RequestID
			data, err := json.Marshal(reply)
			if err != nil {
				return
			}
			if err := client.PublishEvent(topics.Events(), data); err != nil {
				log.Debug("publishing command reply", "error", err)
			}
		}()
		return nil
	}
}

// pruneHistory deletes events older than retention once at startup and
// then daily until ctx is cancelled. Zero retention keeps everything.
func pruneHistory(ctx context.Context, repo history.Repository, retentionDays int, log *logging.Logger) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("pruning relay history", "error", err)
			return
		}
		if n > 0 {
			log.Info("pruned relay history", "deleted", n, "retention_days", retentionDays)
		}
	}

	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
