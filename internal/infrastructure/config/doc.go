// Package config handles loading and validating scale telemetry configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading a local .env file for development setups
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via MQTT_USERNAME / MQTT_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// The device list itself is not part of this package; see scale.LoadDevices.
package config
