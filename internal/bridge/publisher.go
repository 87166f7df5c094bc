package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/mqtt"
)

// responseQoS is at-least-once: the broker acknowledges delivery to
// itself, not to any subscriber.
const responseQoS = 1

// Publisher builds response envelopes and publishes them to the device's
// response topic. A failed publish is logged and returned but never
// retried; the requester re-issues the command.
type Publisher struct {
	bus    Publishing
	logger Logger
	topics mqtt.Topics
	now    func() time.Time
}

// Publishing is the publish half of the bus.
type Publishing interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// NewPublisher creates a publisher on bus. logger may be nil.
func NewPublisher(bus Publishing, logger Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger, now: time.Now}
}

// PublishWeight publishes a success response for deviceID.
func (p *Publisher) PublishWeight(deviceID string, weight float64) error {
	return p.publish(NewWeightResponse(deviceID, weight, p.now()))
}

// PublishError publishes an error response for deviceID.
func (p *Publisher) PublishError(deviceID, message string) error {
	return p.publish(NewErrorResponse(deviceID, message, p.now()))
}

func (p *Publisher) publish(resp ResponseEnvelope) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		p.logError("failed to marshal response", "device_id", resp.DeviceID, "error", err)
		return fmt.Errorf("marshal response: %w", err)
	}

	topic := p.topics.DeviceResponse(resp.DeviceID)
	if err := p.bus.Publish(topic, payload, responseQoS, false); err != nil {
		p.logError("failed to publish response",
			"device_id", resp.DeviceID,
			"topic", topic,
			"status", resp.Status,
			"error", err)
		return err
	}
	return nil
}

func (p *Publisher) logError(msg string, keysAndValues ...any) {
	if p.logger != nil {
		p.logger.Error(msg, keysAndValues...)
	}
}
