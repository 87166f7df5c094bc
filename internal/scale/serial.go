package scale

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// maxFrameBytes bounds one delimited read so a scale streaming garbage
// without a delimiter cannot hold a worker forever.
const maxFrameBytes = 512

// Port is the part of a serial port a link needs.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	// Read returns (0, nil) when the read timeout expires with no data.
	Read(p []byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

// Opener opens a serial port for a device.
type Opener interface {
	Open(address string, baudRate int, readTimeout time.Duration) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(address string, baudRate int, readTimeout time.Duration) (Port, error)

// Open calls f.
func (f OpenerFunc) Open(address string, baudRate int, readTimeout time.Duration) (Port, error) {
	return f(address, baudRate, readTimeout)
}

// SerialOpener opens real serial ports with go.bug.st/serial, 8N1.
type SerialOpener struct{}

// Open opens address at baudRate and applies readTimeout to every read.
func (SerialOpener) Open(address string, baudRate int, readTimeout time.Duration) (Port, error) {
	port, err := serial.Open(address, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}
	return port, nil
}

// readUntil reads one byte at a time until delim, a read timeout, or
// maxFrameBytes. A timeout returns whatever arrived so far with a nil
// error; the decoder then reports the missing token or marker.
func readUntil(port Port, delim byte) ([]byte, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)

	for len(buf) < maxFrameBytes {
		n, err := port.Read(one)
		if err != nil {
			return buf, err
		}
		if n == 0 {
			return buf, nil
		}
		buf = append(buf, one[0])
		if one[0] == delim {
			return buf, nil
		}
	}
	return buf, nil
}
