// Package influxdb records relay probe telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every start probe,
// status poll and health check becomes a point, so probe latency and
// relay availability can be graphed over time.
//
// # Measurements
//
//	relay_probe   tags: instance, strategy, probe   fields: alive, latency_ms, port
//	relay_health  tags: instance                    fields: port, port_accessible, relay_online
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Instance.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteProbe(influxdb.ProbeSample{Probe: "tcp", Port: 8080, Alive: true})
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write errors are delivered to the SetOnError callback.
package influxdb
