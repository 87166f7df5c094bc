package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CommandGetWeight is the only command the router understands.
const CommandGetWeight = "get_weight"

// Response messages.
const (
	MsgWeightRead     = "Weight read successfully"
	MsgInvalidCommand = "Invalid command format"
	MsgDeviceBusy     = "Device busy: a read is already in progress"

	msgUnknownCommandPrefix = "Unknown command: "
	msgReadErrorPrefix      = "Error reading weight: "
)

// CommandEnvelope is the inbound command payload.
// Topic: pesanet/devices/{device_id}/command
type CommandEnvelope struct {
	Command string `json:"command"`
}

// ResponseStatus is the outcome carried in a response.
type ResponseStatus string

const (
	// StatusOK indicates the weight was read.
	StatusOK ResponseStatus = "ok"

	// StatusError indicates the command failed; Weight is null.
	StatusError ResponseStatus = "error"
)

// ResponseEnvelope is published once per handled command.
// Topic: pesanet/devices/{device_id}/response
type ResponseEnvelope struct {
	DeviceID string `json:"deviceId"`

	// Weight is rounded to one decimal place, or nil on error.
	Weight *float64 `json:"weight"`

	Status  ResponseStatus `json:"status"`
	Message string         `json:"message"`

	// TimestampMillis is wall-clock time at construction, in Unix milliseconds.
	TimestampMillis int64 `json:"timestampMillis"`
}

// NewWeightResponse builds a success response.
func NewWeightResponse(deviceID string, weight float64, now time.Time) ResponseEnvelope {
	rounded := RoundWeight(weight)
	return ResponseEnvelope{
		DeviceID:        deviceID,
		Weight:          &rounded,
		Status:          StatusOK,
		Message:         MsgWeightRead,
		TimestampMillis: now.UnixMilli(),
	}
}

// NewErrorResponse builds an error response with a null weight.
func NewErrorResponse(deviceID, message string, now time.Time) ResponseEnvelope {
	return ResponseEnvelope{
		DeviceID:        deviceID,
		Status:          StatusError,
		Message:         message,
		TimestampMillis: now.UnixMilli(),
	}
}

// RoundWeight rounds to one decimal place. The exact binary value is
// rounded, ties to even, so 2.25 becomes 2.2 and 45.35 becomes 45.4.
func RoundWeight(w float64) float64 {
	// FormatFloat output always parses back.
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(w, 'f', 1, 64), 64) //nolint:errcheck
	return rounded
}

// UnknownCommandMessage is the response message for an unrecognised command.
func UnknownCommandMessage(command string) string {
	return msgUnknownCommandPrefix + command
}

// ReadErrorMessage is the response message for a failed read.
func ReadErrorMessage(err error) string {
	return msgReadErrorPrefix + err.Error()
}

// parseCommand decodes a command payload. Anything that is not a JSON
// object, including a bare null, is ErrInvalidJSON; a command other than
// get_weight is ErrUnknownCommand, with the command still returned for
// the message.
func parseCommand(payload []byte) (string, error) {
	var cmd *CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if cmd == nil {
		return "", fmt.Errorf("%w: payload is null", ErrInvalidJSON)
	}
	if cmd.Command != CommandGetWeight {
		return cmd.Command, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd.Command, nil
}
