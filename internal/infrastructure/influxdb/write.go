package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementProbe  = "relay_probe"
	MeasurementHealth = "relay_health"
)

// ProbeSample is one liveness probe of the relay.
type ProbeSample struct {
	Strategy string
	Probe    string
	Port     int
	Alive    bool
	Latency  time.Duration
	Time     time.Time
}

// WriteProbe records a liveness probe. The write is non-blocking; points are
// batched and sent asynchronously.
//
// Example:
//
//	client.WriteProbe(influxdb.ProbeSample{
//	    Strategy: "docker", Probe: "tcp", Port: 8080,
//	    Alive: true, Latency: 3 * time.Millisecond,
//	})
func (c *Client) WriteProbe(s ProbeSample) {
	tags := map[string]string{
		"probe": s.Probe,
	}
	if s.Strategy != "" {
		tags["strategy"] = s.Strategy
	}

	c.WritePointWithTime(MeasurementProbe, tags, map[string]interface{}{
		"alive":      s.Alive,
		"latency_ms": float64(s.Latency.Microseconds()) / 1000,
		"port":       s.Port,
	}, s.Time)
}

// WriteHealth records the outcome of a relay health check.
func (c *Client) WriteHealth(port int, portAccessible, relayOnline bool) {
	c.WritePoint(MeasurementHealth, map[string]string{}, map[string]interface{}{
		"port":            port,
		"port_accessible": portAccessible,
		"relay_online":    relayOnline,
	})
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("relay_restarts",
//	    map[string]string{"strategy": "docker"},
//	    map[string]interface{}{"count": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// A zero timestamp means now.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
