package influxdb

import (
	"context"
	"errors"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Measurement is the InfluxDB measurement every telemetry point is written to.
const Measurement = "telemetry"

// PointFromReceived converts a received message into a point.
//
//	tags:   device_id, sensor_type, topic, unit (when present)
//	fields: value (extended) or temperature / humidity (legacy)
//
// Parameters:
//   - msg: Decoded message; ReceivedAt becomes the point time (now if zero)
//
// Returns:
//   - *write.Point: Point in the "telemetry" measurement
//   - error: ErrNoFields for raw payloads and objects with no numeric field
func PointFromReceived(msg telemetry.Received) (*write.Point, error) {
	d := msg.Decoded
	if d.Raw {
		return nil, ErrNoFields
	}

	fields := make(map[string]interface{})
	switch d.Shape() {
	case telemetry.ShapeExtended:
		if v, err := d.Float("value"); err == nil {
			fields["value"] = v
		}
	default:
		for _, key := range []string{"temperature", "humidity"} {
			if v, err := d.Float(key); err == nil {
				fields[key] = v
			}
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	tags := map[string]string{
		"sensor_type": d.SensorType(),
		"topic":       msg.Topic,
	}
	if d.Has("device_id") {
		tags["device_id"] = d.Get("device_id")
	}
	if d.Has("unit") {
		tags["unit"] = d.Get("unit")
	}

	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(Measurement, tags, fields, ts), nil
}

// Forward queues msg for writing. Messages without numeric fields are
// skipped. Delivery errors are reported through SetOnError.
func (c *Client) Forward(_ context.Context, msg telemetry.Received) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point, err := PointFromReceived(msg)
	if errors.Is(err, ErrNoFields) {
		return nil
	}
	if err != nil {
		return err
	}

	c.writeAPI.WritePoint(point)
	return nil
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
