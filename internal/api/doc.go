// Package api implements the read-only HTTP status API for scale-telemetry.
//
// Endpoints:
//   - GET /api/v1/health               service status and version
//   - GET /api/v1/devices              every configured scale with link state
//   - GET /api/v1/devices/{id}         one scale
//   - GET /api/v1/devices/{id}/events  link-event journal for one scale
//   - GET /api/v1/metrics              runtime, router and supervisor counters
//
// Weights are never served here; they are only requested over MQTT.
//
// # Graceful Degradation
//
// The journal is optional. Without it the events endpoint returns 404 and
// everything else works.
package api
