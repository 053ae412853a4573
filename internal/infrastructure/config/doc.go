// Package config handles loading and validating telemetry configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading .env files into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The defaults reproduce the field scripts: broker localhost:1883,
// keepalive 60s, topic iot/sensor/data, log file iot_data_log.txt,
// one climate reading every 5 seconds.
//
// Security Considerations:
//   - Broker credentials and InfluxDB tokens should be set via environment
//     variables or a .env file, not committed YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load(os.Getenv("TELEMETRY_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerAddress())
package config
