// Package influxdb forwards received telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Every numeric
// message becomes one point in the "telemetry" measurement, tagged with
// device, sensor type and topic.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//	err = client.Forward(ctx, msg)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to influxdb.batch_size and influxdb.flush_interval.
package influxdb
