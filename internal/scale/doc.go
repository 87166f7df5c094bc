// Package scale talks to weighing scales on serial lines.
//
// It covers three layers:
//   - Frame decoding (decode.go): pure functions turning a captured read
//     into a weight, for the "standard" text encoding and the "padded"
//     fixed-width binary encoding
//   - Links (link.go): one serial connection per scale, with the
//     encoding-specific read and retry policy
//   - Supervision (supervisor.go): connection state per device, the inline
//     reconnect-and-retry on transport failure, and background reconnection
//     for devices that are down
//
// Decode failures and transport failures are different error types on
// purpose: only a *TransportError triggers reconnection.
//
//	if errors.Is(err, scale.ErrNoFrameMarker) { ... }  // data problem
//	var te *scale.TransportError
//	if errors.As(err, &te) { ... }                   // link problem
package scale
