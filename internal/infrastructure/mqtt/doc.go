// Package mqtt provides MQTT client connectivity for the scale telemetry service.
//
// This package manages:
//   - Connection to the broker over tcp, ssl, ws or wss with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - CONNACK reason reporting for refused connections
//
// # Architecture
//
// Requesters publish commands to pesanet/devices/{id}/command and read
// answers from pesanet/devices/{id}/response. This package knows the topic
// scheme but nothing about scales; routing lives in internal/bridge.
//
//	Requester ↔ MQTT Broker ↔ scale-telemetry ↔ serial scales
//
// # Security Considerations
//
//   - Enable TLS (MQTT_USE_SSL=true) for brokers outside the local network
//   - Credentials come from MQTT_USERNAME / MQTT_PASSWORD
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.DeviceResponse("scale-01")
//	client.Publish(topic, []byte(`{"status":"ok"}`), 1, false)
package mqtt
