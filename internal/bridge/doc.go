// Package bridge connects the MQTT command namespace to the scale supervisor.
//
// Requesters publish {"command": "get_weight"} to
// pesanet/devices/{device_id}/command and receive a response on
// pesanet/devices/{device_id}/response:
//
//	┌─────────────┐   MQTT   ┌─────────────┐  ReadWeight  ┌──────────────┐  serial
//	│  Requester  │◄────────►│   Router    │─────────────►│  Supervisor  │◄────────► Scale
//	└─────────────┘          └─────────────┘              └──────────────┘
//
// # Key Responsibilities
//
//   - Subscribe once to the wildcard command topic
//   - Drop malformed topics and commands for unregistered devices with a warning
//   - Answer bad payloads and unknown commands with an error response
//   - Run reads on a bounded worker pool, one in flight per device
//   - Publish every response at QoS 1; publish failures are only logged
//   - Report service health on a retained topic
//
// # Thread Safety
//
// All exported types are safe for concurrent use. RegisterDevice may be
// called from a reconnect task while messages are being dispatched.
package bridge
