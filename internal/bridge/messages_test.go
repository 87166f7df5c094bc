package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWeightResponse(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	resp := NewWeightResponse("scale-01", 45.26, now)

	require.NotNil(t, resp.Weight)
	assert.Equal(t, 45.3, *resp.Weight)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, MsgWeightRead, resp.Message)
	assert.Equal(t, int64(1767225600123), resp.TimestampMillis)
}

func TestNewErrorResponse_NullWeight(t *testing.T) {
	resp := NewErrorResponse("scale-01", MsgInvalidCommand, time.Now())

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "weight")
	assert.Nil(t, raw["weight"])
	assert.Equal(t, "error", raw["status"])
	assert.Equal(t, "scale-01", raw["deviceId"])
	assert.Contains(t, raw, "timestampMillis")
}

func TestResponseEnvelope_RoundTrip(t *testing.T) {
	for _, w := range []float64{0, 0.05, 12.34, -2.55, 149.99, 123456} {
		orig := NewWeightResponse("d", w, time.UnixMilli(1700000000000))

		data, err := json.Marshal(orig)
		require.NoError(t, err)

		var got ResponseEnvelope
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, orig, got)
	}
}

func TestRoundWeight(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{45.26, 45.3},
		{45.24, 45.2},
		{60, 60},
		{-2.46, -2.5},
		{0.04, 0},
		// Ties on the exact binary value go to even, as scales printing two
		// decimals expect.
		{2.25, 2.2},
		{0.15, 0.1},
		{-2.25, -2.2},
		{12.25, 12.2},
		{45.35, 45.4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundWeight(tt.in), "RoundWeight(%v)", tt.in)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand([]byte(`{"command": "get_weight"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandGetWeight, cmd)

	cmd, err = parseCommand([]byte(`{"command": "tare", "extra": 1}`))
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, "tare", cmd)

	for _, payload := range []string{`not json`, `[1,2]`, `{"command": 5}`, ``, `null`, ` null `} {
		_, err := parseCommand([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidJSON, "payload %q", payload)
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Unknown command: tare", UnknownCommandMessage("tare"))
	assert.Equal(t, "Error reading weight: boom", ReadErrorMessage(errors.New("boom")))
}
