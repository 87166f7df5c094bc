package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	require.NoError(t, json.Unmarshal(p.Payload, &msg))
	return msg
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		devices    DeviceCounter
		wantStatus HealthStatus
		wantReason string
	}{
		{"all up", true, fakeCounter{2, 2}, HealthHealthy, ""},
		{"bus down", false, fakeCounter{2, 2}, HealthDegraded, "MQTT disconnected"},
		{"device down", true, fakeCounter{1, 3}, HealthDegraded, "2 of 3 devices disconnected"},
		{"no counter", true, nil, HealthHealthy, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewMockBus()
			bus.setConnected(tt.connected)
			h := NewHealthReporter(HealthReporterConfig{ClientID: "svc", Publisher: bus, Devices: tt.devices})

			status, reason := h.determineStatus()
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	bus := NewMockBus()
	h := NewHealthReporter(HealthReporterConfig{
		ClientID:  "scale-telemetry",
		Version:   "1.2.3",
		Publisher: bus,
		Devices:   fakeCounter{1, 2},
	})

	require.NoError(t, h.PublishNow())

	pubs := bus.GetPublished()
	require.Len(t, pubs, 1)
	assert.Equal(t, "pesanet/services/scale-telemetry/health", pubs[0].Topic)
	assert.Equal(t, h.Topic(), pubs[0].Topic)
	assert.True(t, pubs[0].Retained)
	assert.Equal(t, byte(1), pubs[0].QoS)

	msg := decodeHealth(t, pubs[0])
	assert.Equal(t, HealthDegraded, msg.Status)
	assert.Equal(t, "1.2.3", msg.Version)
	assert.Equal(t, 1, msg.DevicesConnected)
	assert.Equal(t, 2, msg.DevicesTotal)
}

func TestHealthReporter_StartStop(t *testing.T) {
	bus := NewMockBus()
	h := NewHealthReporter(HealthReporterConfig{
		ClientID:  "svc",
		Interval:  10 * time.Millisecond,
		Publisher: bus,
		Devices:   fakeCounter{1, 1},
	})

	require.NoError(t, h.PublishStarting())
	h.Start(context.Background())
	bus.waitForPublishes(t, 3)

	h.Stop()
	h.Stop()

	pubs := bus.GetPublished()
	assert.Equal(t, HealthStarting, decodeHealth(t, pubs[0]).Status)
	assert.Equal(t, HealthHealthy, decodeHealth(t, pubs[1]).Status)
	assert.Equal(t, HealthStopping, decodeHealth(t, pubs[len(pubs)-1]).Status)
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	assert.NoError(t, h.PublishNow())
	assert.Equal(t, DefaultHealthInterval, h.interval)
}
