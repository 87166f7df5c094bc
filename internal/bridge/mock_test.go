package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesanet/scale-telemetry/internal/scale"
)

// MockBus implements Bus for testing.
type MockBus struct {
	mu         sync.Mutex
	published  []mockPublish
	subscribed []string
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error

	// publishGate, when set, holds every Publish until it is closed.
	publishGate chan struct{}

	unsubscribed []string
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockBus() *MockBus {
	return &MockBus{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	gate := m.publishGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockBus) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockBus) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *MockBus) getUnsubscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribed...)
}

func (m *MockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBus) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MockBus) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// Deliver simulates the broker delivering a message that matched the
// subscription pattern.
func (m *MockBus) Deliver(pattern, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// responses decodes every published response.
func (m *MockBus) responses(t *testing.T) []ResponseEnvelope {
	t.Helper()
	var out []ResponseEnvelope
	for _, p := range m.GetPublished() {
		var resp ResponseEnvelope
		require.NoError(t, json.Unmarshal(p.Payload, &resp))
		out = append(out, resp)
	}
	return out
}

// waitForPublishes blocks until at least n messages are published.
func (m *MockBus) waitForPublishes(t *testing.T, n int) []mockPublish {
	t.Helper()
	require.Eventually(t, func() bool { return len(m.GetPublished()) >= n }, 2*time.Second, 5*time.Millisecond)
	return m.GetPublished()
}

// fakeReader is a WeightReader with a scripted result. When gate is set
// each read blocks until it is closed.
type fakeReader struct {
	mu     sync.Mutex
	weight float64
	err    error
	gate   chan struct{}
	calls  []string
}

func (f *fakeReader) ReadWeight(ctx context.Context, deviceID string) (float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, deviceID)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.weight, f.err
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errStubTransport = errors.New("stub transport failure")

func testDevice(id string) scale.Descriptor {
	return scale.Descriptor{ID: id, Port: "/dev/tty-" + id, BaudRate: 9600, ReadTimeout: time.Second, Encoding: scale.EncodingStandard}
}

// fakeCounter implements DeviceCounter.
type fakeCounter struct {
	connected, total int
}

func (c fakeCounter) Counts() (int, int) { return c.connected, c.total }

// recordingLogger implements Logger and keeps each message with its level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordingLogger) getEntries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}
