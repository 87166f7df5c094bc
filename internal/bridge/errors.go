package bridge

import "errors"

// Routing errors. The message is dropped and nothing is published.
var (
	// ErrMalformedTopic is logged for a topic that is not a device command topic.
	ErrMalformedTopic = errors.New("bridge: malformed topic")

	// ErrUnregisteredDevice is logged for a command to a device the router does not know.
	ErrUnregisteredDevice = errors.New("bridge: unregistered device")
)

// Payload errors. These are answered with an error response.
var (
	// ErrInvalidJSON is returned when a command payload is not a JSON object.
	ErrInvalidJSON = errors.New("bridge: invalid command payload")

	// ErrUnknownCommand is returned for any command other than get_weight.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrDeviceBusy is returned when a read is already running for the device.
	ErrDeviceBusy = errors.New("bridge: device busy")
)

// ErrNoBus is returned by NewRouter when no bus is supplied.
var ErrNoBus = errors.New("bridge: bus is required")
