package scale

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDevices(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDevices(t *testing.T) {
	path := writeDevices(t, `[
		{"device_id": "scale-01", "serial_port": "/dev/ttyUSB0"},
		{"device_id": "scale-02", "serial_port": "/dev/ttyUSB1", "baudrate": 19200,
		 "timeout": 0.5, "weight_format": "padded"}
	]`)

	devices, err := LoadDevices(path)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, Descriptor{
		ID:          "scale-01",
		Port:        "/dev/ttyUSB0",
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		Encoding:    EncodingStandard,
	}, devices[0])

	assert.Equal(t, Descriptor{
		ID:          "scale-02",
		Port:        "/dev/ttyUSB1",
		BaudRate:    19200,
		ReadTimeout: 500 * time.Millisecond,
		Encoding:    EncodingPadded,
	}, devices[1])
}

func TestLoadDevices_YAML(t *testing.T) {
	path := writeDevices(t, `
- device_id: dock-a
  serial_port: COM3
  weight_format: STANDARD
`)

	devices, err := LoadDevices(path)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "COM3", devices[0].Port)
	assert.Equal(t, EncodingStandard, devices[0].Encoding)
}

func TestLoadDevices_MissingFile(t *testing.T) {
	_, err := LoadDevices(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "devices.json.example")
}

func TestLoadDevices_Malformed(t *testing.T) {
	_, err := LoadDevices(writeDevices(t, `{"device_id": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing device config")
}

func TestLoadDevices_Empty(t *testing.T) {
	_, err := LoadDevices(writeDevices(t, `[]`))
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestLoadDevices_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"missing id", `[{"serial_port": "/dev/ttyUSB0"}]`, ErrInvalidDevice},
		{"missing port", `[{"device_id": "a"}]`, ErrInvalidDevice},
		{"wildcard in id", `[{"device_id": "a/+", "serial_port": "/dev/x"}]`, ErrInvalidDevice},
		{"zero baud", `[{"device_id": "a", "serial_port": "/dev/x", "baudrate": 0}]`, ErrInvalidDevice},
		{"negative timeout", `[{"device_id": "a", "serial_port": "/dev/x", "timeout": -1}]`, ErrInvalidDevice},
		{"unknown format", `[{"device_id": "a", "serial_port": "/dev/x", "weight_format": "hex"}]`, ErrInvalidDevice},
		{"duplicate id", `[{"device_id": "a", "serial_port": "/dev/x"}, {"device_id": "a", "serial_port": "/dev/y"}]`, ErrDuplicateDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDevices(writeDevices(t, tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadDevices_ReportsEveryProblem(t *testing.T) {
	path := writeDevices(t, `[
		{"device_id": "", "serial_port": "/dev/x"},
		{"device_id": "ok", "serial_port": "/dev/y"},
		{"device_id": "b", "serial_port": ""}
	]`)

	_, err := LoadDevices(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device 0")
	assert.Contains(t, err.Error(), "device 2")
	assert.NotContains(t, err.Error(), "device 1")
}
