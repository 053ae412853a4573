package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// wire is the JSON codec for payloads. UseNumber keeps numeric fields in
// the exact text they arrived with so a decoded line shows "55", not "55.0".
var wire = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Encode serialises an extended reading. Value is rounded to the sensor's
// precision when the sensor type is known.
func Encode(r Reading) ([]byte, error) {
	if spec, ok := LookupSensor(r.SensorType); ok {
		r.Value = spec.Round(r.Value)
	}

	data, err := wire.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding %s reading: %w", r.SensorType, err)
	}
	return data, nil
}

// EncodeClimate serialises a legacy climate reading.
func EncodeClimate(r ClimateReading) ([]byte, error) {
	r.Temperature = TemperatureSpec.Round(r.Temperature)
	r.Humidity = HumiditySpec.Round(r.Humidity)

	data, err := wire.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding climate reading: %w", err)
	}
	return data, nil
}

// Shape classifies a decoded payload.
type Shape int

const (
	// ShapeRaw is anything that is not a JSON object.
	ShapeRaw Shape = iota

	// ShapeLegacy is a JSON object without a sensor_type key.
	ShapeLegacy

	// ShapeExtended is a JSON object carrying sensor_type.
	ShapeExtended
)

// Decoded is the result of Decode. It never represents a failure: a payload
// that is not a JSON object is kept verbatim with Raw set.
type Decoded struct {
	// Raw is true when the payload was not a JSON object.
	Raw bool

	// Payload is the payload as received, decoded as UTF-8.
	Payload string

	fields map[string]string
}

// Decode parses a payload. Field values are kept in their textual form:
// strings as-is, numbers as written on the wire, nested values as compact
// JSON. A JSON null counts as missing.
func Decode(payload []byte) Decoded {
	d := Decoded{Payload: string(payload)}

	var obj map[string]any
	if err := wire.Unmarshal(payload, &obj); err != nil || obj == nil {
		d.Raw = true
		return d
	}

	d.fields = make(map[string]string, len(obj))
	for k, v := range obj {
		if v == nil {
			continue
		}
		d.fields[k] = fieldText(v)
	}

	return d
}

func fieldText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		s, err := wire.MarshalToString(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return s
	default:
		return fmt.Sprint(x)
	}
}

// Shape reports which payload shape was decoded.
func (d Decoded) Shape() Shape {
	switch {
	case d.Raw:
		return ShapeRaw
	case d.Has("sensor_type"):
		return ShapeExtended
	default:
		return ShapeLegacy
	}
}

// Get returns the textual value of key, or NotAvailable if it is missing.
func (d Decoded) Get(key string) string {
	if v, ok := d.fields[key]; ok {
		return v
	}
	return NotAvailable
}

// Has reports whether key was present and not null.
func (d Decoded) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Keys returns the present field names in sorted order.
func (d Decoded) Keys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float parses key as a float64.
func (d Decoded) Float(key string) (float64, error) {
	if d.Raw {
		return 0, ErrRawPayload
	}
	v, ok := d.fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrNotNumeric, key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrNotNumeric, key, v)
	}
	return f, nil
}

// Reading returns the extended reading carried by the payload.
// String fields that are missing read as NotAvailable; value must be numeric.
func (d Decoded) Reading() (Reading, error) {
	if d.Raw {
		return Reading{}, ErrRawPayload
	}

	value, err := d.Float("value")
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		ID:         d.Get("id"),
		SensorType: d.Get("sensor_type"),
		Value:      value,
		Unit:       d.Get("unit"),
		Timestamp:  d.Get("timestamp"),
		DeviceID:   d.Get("device_id"),
	}, nil
}

// Climate returns the legacy climate reading carried by the payload.
func (d Decoded) Climate() (ClimateReading, error) {
	if d.Raw {
		return ClimateReading{}, ErrRawPayload
	}

	temp, err := d.Float("temperature")
	if err != nil {
		return ClimateReading{}, err
	}
	hum, err := d.Float("humidity")
	if err != nil {
		return ClimateReading{}, err
	}

	return ClimateReading{
		Timestamp:   d.Get("timestamp"),
		Temperature: temp,
		Humidity:    hum,
		DeviceID:    d.Get("device_id"),
	}, nil
}

// SensorType returns the payload's sensor_type, SensorClimate for a legacy
// object, or "" for a raw payload.
func (d Decoded) SensorType() string {
	switch d.Shape() {
	case ShapeExtended:
		return d.Get("sensor_type")
	case ShapeLegacy:
		return SensorClimate
	default:
		return ""
	}
}
