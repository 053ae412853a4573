// Package monitor is the subscriber role: it subscribes to telemetry topics
// once the broker accepts the session, writes one line per received message
// to the log file and optionally forwards each message to InfluxDB and the
// SQLite archive.
//
// A Monitor is an mqtt.Handler and is driven by Client.RunLoop:
//
//	mon, _ := monitor.New(monitor.Config{Topics: topics, Client: client, Sink: sink})
//	return client.RunLoop(ctx, mqtt.RunForeground, mon)
package monitor
