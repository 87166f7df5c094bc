package scale

import (
	"errors"
	"fmt"
)

// Decode failures. The device is still reachable when these occur.
var (
	// ErrNoNumericToken is returned when a standard line has no number in it.
	ErrNoNumericToken = errors.New("scale: no numeric token in frame")

	// ErrNoFrameMarker is returned when a padded read has no marker+digits pattern.
	ErrNoFrameMarker = errors.New("scale: no frame marker in frame")
)

// Transport failures. These trigger reconnection.
var (
	// ErrOpenFailed is returned when the serial port cannot be opened.
	ErrOpenFailed = errors.New("scale: open failed")

	// ErrReadFailed is returned when the port errors during a read.
	ErrReadFailed = errors.New("scale: read failed")

	// ErrClosed is returned when reading from a link that is not open.
	ErrClosed = errors.New("scale: link closed")
)

// Configuration and lookup errors.
var (
	// ErrUnknownDevice is returned for a device id the supervisor does not manage.
	ErrUnknownDevice = errors.New("scale: unknown device")

	// ErrNoDevices is returned when the device list is empty.
	ErrNoDevices = errors.New("scale: no devices configured")

	// ErrInvalidDevice is returned for a device entry that fails validation.
	ErrInvalidDevice = errors.New("scale: invalid device")

	// ErrDuplicateDevice is returned when two entries share a device id.
	ErrDuplicateDevice = errors.New("scale: duplicate device id")
)

// DecodeError reports a frame that could not be decoded.
// Kind is ErrNoNumericToken or ErrNoFrameMarker.
type DecodeError struct {
	Kind error
	Raw  []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (got %q)", e.Kind, e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// TransportError reports a failure of the serial link itself.
// Kind is ErrOpenFailed, ErrReadFailed or ErrClosed.
type TransportError struct {
	Kind error
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Port)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Port, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransport reports whether err is (or wraps) a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err is (or wraps) a *DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
