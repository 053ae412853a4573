package telemetry

import (
	"math"
	"time"
)

// TimestampLayout is the local date-time format carried in payloads.
const TimestampLayout = "2006-01-02 15:04:05"

// Sensor types understood by the publisher.
const (
	SensorCurrentOutput = "current_output"
	SensorWaterLevel    = "water_level"

	// SensorClimate selects the legacy temperature/humidity payload.
	SensorClimate = "climate"
)

// NotAvailable replaces any field missing from a decoded payload.
const NotAvailable = "N/A"

// Reading is one sampled value in the extended wire shape.
// Field order matches the JSON object produced by Encode.
type Reading struct {
	ID         string  `json:"id"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Timestamp  string  `json:"timestamp"`
	DeviceID   string  `json:"device_id"`
}

// ClimateReading is the legacy two-value payload.
type ClimateReading struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	DeviceID    string  `json:"device_id"`
}

// SensorSpec describes how values for one sensor type are generated.
type SensorSpec struct {
	Type      string
	Min       float64
	Max       float64
	Unit      string
	Precision int
}

// Contains reports whether v lies inside [Min, Max].
func (s SensorSpec) Contains(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// Round rounds v to the spec's precision.
func (s SensorSpec) Round(v float64) float64 {
	return Round(v, s.Precision)
}

var (
	// TemperatureSpec is the climate payload's temperature channel.
	TemperatureSpec = SensorSpec{Type: "temperature", Min: 20, Max: 30, Unit: "°C", Precision: 2}

	// HumiditySpec is the climate payload's humidity channel.
	HumiditySpec = SensorSpec{Type: "humidity", Min: 40, Max: 70, Unit: "%", Precision: 2}
)

var sensorSpecs = map[string]SensorSpec{
	SensorCurrentOutput: {Type: SensorCurrentOutput, Min: 0.1, Max: 0.2, Unit: "A", Precision: 4},
	SensorWaterLevel:    {Type: SensorWaterLevel, Min: 10, Max: 20, Unit: "meter", Precision: 2},
}

// LookupSensor returns the spec for an extended sensor type.
// Climate is not included; it has its own payload shape.
func LookupSensor(sensorType string) (SensorSpec, bool) {
	spec, ok := sensorSpecs[sensorType]
	return spec, ok
}

// IsKnownSensor reports whether the publisher can sample sensorType.
func IsKnownSensor(sensorType string) bool {
	if sensorType == SensorClimate {
		return true
	}
	_, ok := sensorSpecs[sensorType]
	return ok
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// FormatTimestamp renders t in TimestampLayout using t's location.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Received is one message taken off a subscription, decoded.
type Received struct {
	Topic      string
	ReceivedAt time.Time
	Decoded    Decoded
}
