package scale

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Encoding selects how a scale frames its readings.
type Encoding string

// Supported encodings.
const (
	// EncodingStandard is a newline-terminated text line containing a number.
	EncodingStandard Encoding = "standard"

	// EncodingPadded is a carriage-return-terminated binary frame with a
	// fixed-width, zero-padded weight field.
	EncodingPadded Encoding = "padded"
)

// Defaults applied to device entries that omit a field.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = time.Second
)

// Descriptor identifies one configured scale. It is built once at startup
// and never mutated; ID is the key for every lookup.
type Descriptor struct {
	ID          string
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Encoding    Encoding
}

// delimiter returns the byte that ends one frame for this device.
func (d Descriptor) delimiter() byte {
	if d.Encoding == EncodingPadded {
		return paddedDelimiter
	}
	return standardDelimiter
}

// deviceEntry is the on-disk shape of one device. Pointers distinguish an
// omitted field (default applies) from an explicit zero (rejected).
type deviceEntry struct {
	DeviceID     string   `yaml:"device_id"`
	SerialPort   string   `yaml:"serial_port"`
	BaudRate     *int     `yaml:"baudrate"`
	Timeout      *float64 `yaml:"timeout"`
	WeightFormat string   `yaml:"weight_format"`
}

// LoadDevices reads the device list from path.
//
// The file is a JSON (or YAML) array of objects:
//
//	[{"device_id": "scale-01", "serial_port": "/dev/ttyUSB0",
//	  "baudrate": 9600, "timeout": 1.0, "weight_format": "standard"}]
//
// baudrate, timeout (seconds) and weight_format are optional. Every
// problem in the file is reported, joined into one error.
func LoadDevices(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("device config file not found: %s (create it from devices.json.example): %w", path, err)
		}
		return nil, fmt.Errorf("reading device config %s: %w", path, err)
	}

	var entries []deviceEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing device config %s: %w", path, err)
	}

	return parseDevices(entries, path)
}

// parseDevices validates raw entries and applies defaults. source names
// the origin in error messages.
func parseDevices(entries []deviceEntry, source string) ([]Descriptor, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s contains no devices", ErrNoDevices, source)
	}

	var errs []error
	seen := make(map[string]bool, len(entries))
	devices := make([]Descriptor, 0, len(entries))

	for i, e := range entries {
		d, err := e.descriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", i, err))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("device %d: %w: %q", i, ErrDuplicateDevice, d.ID))
			continue
		}
		seen[d.ID] = true
		devices = append(devices, d)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return devices, nil
}

func (e deviceEntry) descriptor() (Descriptor, error) {
	d := Descriptor{
		ID:          strings.TrimSpace(e.DeviceID),
		Port:        strings.TrimSpace(e.SerialPort),
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		Encoding:    EncodingStandard,
	}

	if d.ID == "" {
		return d, fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if strings.ContainsAny(d.ID, "/+#") {
		return d, fmt.Errorf("%w: device_id %q must not contain '/', '+' or '#'", ErrInvalidDevice, d.ID)
	}
	if d.Port == "" {
		return d, fmt.Errorf("%w: %s: serial_port is required", ErrInvalidDevice, d.ID)
	}

	if e.BaudRate != nil {
		if *e.BaudRate <= 0 {
			return d, fmt.Errorf("%w: %s: baudrate must be positive", ErrInvalidDevice, d.ID)
		}
		d.BaudRate = *e.BaudRate
	}

	if e.Timeout != nil {
		if *e.Timeout <= 0 {
			return d, fmt.Errorf("%w: %s: timeout must be positive", ErrInvalidDevice, d.ID)
		}
		d.ReadTimeout = time.Duration(*e.Timeout * float64(time.Second))
	}

	if e.WeightFormat != "" {
		switch enc := Encoding(strings.ToLower(e.WeightFormat)); enc {
		case EncodingStandard, EncodingPadded:
			d.Encoding = enc
		default:
			return d, fmt.Errorf("%w: %s: weight_format %q (want %q or %q)",
				ErrInvalidDevice, d.ID, e.WeightFormat, EncodingStandard, EncodingPadded)
		}
	}

	return d, nil
}
