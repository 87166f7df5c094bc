//go:build integration

package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883 (tcp).
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			Transport: config.TransportTCP,
			ClientID:  clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			MaxDelay: 5,
		},
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("scale-int-connect"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_ConnectRefusedPort(t *testing.T) {
	cfg := integrationConfig("scale-int-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("scale-int-sub-track"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := Topics{}.AllDeviceCommands()
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

// TestIntegration_CommandRoundtrip publishes to one device's command topic
// and receives it through the wildcard subscription.
func TestIntegration_CommandRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("scale-int-pub"), nil)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("scale-int-sub"), nil)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	type delivery struct {
		topic   string
		payload string
	}
	received := make(chan delivery, 1)
	var once sync.Once

	err = sub.Subscribe(Topics{}.AllDeviceCommands(), 1, func(topic string, p []byte) error {
		once.Do(func() { received <- delivery{topic, string(p)} })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(Topics{}.DeviceCommand("scale-int"), []byte(`{"command":"get_weight"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.topic != "pesanet/devices/scale-int/command" {
			t.Errorf("topic = %q", got.topic)
		}
		if got.payload != `{"command":"get_weight"}` {
			t.Errorf("payload = %q", got.payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
