// Package telemetry defines sensor readings and their JSON wire format.
//
// Two payload shapes travel on the broker:
//
//	legacy:   {"timestamp","temperature","humidity","device_id"}
//	extended: {"id","sensor_type","value","unit","timestamp","device_id"}
//
// Encode and EncodeClimate always emit every field. Decode never fails:
// missing fields read as "N/A" and anything that is not a JSON object is
// kept as a raw string so it can still be logged.
package telemetry
