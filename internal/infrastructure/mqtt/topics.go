package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the scale telemetry namespace.
//
// Device topics use the scheme: pesanet/devices/{device_id}/{channel}
// Service topics use the scheme: pesanet/services/{client_id}/{channel}
const (
	// TopicPrefix is the root of every topic this service touches.
	TopicPrefix = "pesanet"

	// TopicPrefixDevices is the base for per-device command/response topics.
	TopicPrefixDevices = "pesanet/devices"

	// TopicPrefixServices is the base for service status and health topics.
	TopicPrefixServices = "pesanet/services"
)

// Device topic channels.
const (
	ChannelCommand  = "command"
	ChannelResponse = "response"
)

// deviceTopicSegments is the segment count of a device topic:
// pesanet / devices / {device_id} / {channel}.
const deviceTopicSegments = 4

// deviceIDSegment is the position of the device id in a device topic.
const deviceIDSegment = 2

// Topics provides builders for scale telemetry MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmd := topics.DeviceCommand("scale-01")
//	// Returns: "pesanet/devices/scale-01/command"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceCommand returns the topic requesters publish commands to.
//
// Example: pesanet/devices/scale-01/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, ChannelCommand)
}

// DeviceResponse returns the topic responses for a device are published to.
//
// Example: pesanet/devices/scale-01/response
func (Topics) DeviceResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, ChannelResponse)
}

// =============================================================================
// Service Topics
// =============================================================================

// ServiceStatus returns the retained online/offline topic for a client.
//
// Example: pesanet/services/scale-telemetry-service/status
func (Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixServices, clientID)
}

// ServiceHealth returns the retained health topic for a client.
//
// Example: pesanet/services/scale-telemetry-service/health
func (Topics) ServiceHealth(clientID string) string {
	return fmt.Sprintf("%s/%s/health", TopicPrefixServices, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching every device's command topic.
//
// Pattern: pesanet/devices/+/command
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, ChannelCommand)
}

// =============================================================================
// Parsing
// =============================================================================

// ParseDeviceTopic splits a device topic into its device id and channel.
//
// It reports false when the topic does not have exactly four segments,
// does not start with pesanet/devices, or carries an empty device id.
func ParseDeviceTopic(topic string) (deviceID, channel string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != deviceTopicSegments {
		return "", "", false
	}
	if parts[0] != TopicPrefix || parts[1] != "devices" {
		return "", "", false
	}
	if parts[deviceIDSegment] == "" {
		return "", "", false
	}
	return parts[deviceIDSegment], parts[3], true
}
