package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/mqtt"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

// Router defaults.
const (
	// DefaultShutdownGrace bounds how long Stop waits for in-flight reads.
	DefaultShutdownGrace = 5 * time.Second

	// commandQoS is the subscription QoS for the command wildcard.
	commandQoS = 1
)

// Bus is the MQTT surface the router needs.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// EventHandler receives bus events. The bus client invokes these
// sequentially from its delivery goroutine, so none of them may block.
type EventHandler interface {
	OnConnect()
	OnMessage(topic string, payload []byte)
	OnDisconnect(err error)
}

// WeightReader reads the current weight of a device.
// *scale.Supervisor satisfies it.
type WeightReader interface {
	ReadWeight(ctx context.Context, deviceID string) (float64, error)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// registration is one entry in the known-device table.
type registration struct {
	desc   scale.Descriptor
	reader WeightReader
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// Bus is the MQTT client. Required.
	Bus Bus

	// PoolSize bounds concurrent reads. Normally the configured device
	// count; values below 1 become 1.
	PoolSize int

	// ShutdownGrace bounds how long Stop waits for in-flight reads.
	// Defaults to DefaultShutdownGrace.
	ShutdownGrace time.Duration

	Logger Logger
}

// RouterMetrics holds router counters for the status API.
type RouterMetrics struct {
	Commands        int64 `json:"commands"`
	ResponsesOK     int64 `json:"responses_ok"`
	ResponsesError  int64 `json:"responses_error"`
	Dropped         int64 `json:"dropped"`
	BusyRejections  int64 `json:"busy_rejections"`
	PublishFailures int64 `json:"publish_failures"`
	InFlight        int   `json:"in_flight"`
	Registered      int   `json:"registered"`
}

// Router demultiplexes device commands from the bus and dispatches reads.
//
// Thread Safety: all methods are safe for concurrent use.
type Router struct {
	bus       Bus
	publisher *Publisher
	logger    Logger
	topics    mqtt.Topics
	grace     time.Duration
	pool      *semaphore.Weighted

	// Known devices. Written by RegisterDevice (possibly from a reconnect
	// task), read on every message.
	devices   map[string]registration
	devicesMu sync.RWMutex

	// inFlight holds the ids with a read running or queued.
	inFlight   map[string]struct{}
	inFlightMu sync.Mutex

	// stopping and wg.Add are guarded together so no dispatch starts
	// after Stop begins waiting.
	stopping bool
	stateMu  sync.Mutex

	subscribed bool
	subMu      sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	commands        atomic.Int64
	responsesOK     atomic.Int64
	responsesError  atomic.Int64
	dropped         atomic.Int64
	busyRejections  atomic.Int64
	publishFailures atomic.Int64
}

// NewRouter creates a router with no registered devices.
// Call RegisterDevice for each connected device, then Start.
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Bus == nil {
		return nil, ErrNoBus
	}

	size := opts.PoolSize
	if size < 1 {
		size = 1
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		bus:       opts.Bus,
		publisher: NewPublisher(opts.Bus, opts.Logger),
		logger:    opts.Logger,
		grace:     grace,
		pool:      semaphore.NewWeighted(int64(size)),
		devices:   make(map[string]registration),
		inFlight:  make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start subscribes to the command wildcard. The bus client restores the
// subscription after a reconnect, so Start subscribes only once.
func (r *Router) Start(_ context.Context) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.subscribed {
		return nil
	}

	topic := r.topics.AllDeviceCommands()
	if err := r.bus.Subscribe(topic, commandQoS, r.OnMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	r.subscribed = true

	r.logInfo("subscribed to commands", "topic", topic, "devices", r.registeredCount())
	return nil
}

// Stop stops accepting commands and waits up to the shutdown grace for
// in-flight reads to publish. Reads still running after that are
// abandoned. Safe to call more than once.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.stateMu.Lock()
		r.stopping = true
		r.stateMu.Unlock()

		r.unsubscribe()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logInfo("router stopped")
		case <-time.After(r.grace):
			r.logWarn("shutdown grace elapsed, abandoning in-flight reads",
				"grace", r.grace,
				"in_flight", r.inFlightCount())
		}
		r.cancel()
	})
}

// unsubscribe removes the command subscription so the broker stops
// delivering commands nobody will answer.
func (r *Router) unsubscribe() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if !r.subscribed {
		return
	}
	r.subscribed = false

	topic := r.topics.AllDeviceCommands()
	if err := r.bus.Unsubscribe(topic); err != nil {
		r.logWarn("unsubscribe from commands failed", "topic", topic, "error", err)
	}
}

// RegisterDevice adds a device to the known set. Registering an id again
// replaces its reader. Devices are never removed.
func (r *Router) RegisterDevice(desc scale.Descriptor, reader WeightReader) {
	r.devicesMu.Lock()
	_, existed := r.devices[desc.ID]
	r.devices[desc.ID] = registration{desc: desc, reader: reader}
	r.devicesMu.Unlock()

	if existed {
		r.logDebug("device re-registered", "device_id", desc.ID)
		return
	}
	r.logInfo("device registered", "device_id", desc.ID, "port", desc.Port, "encoding", desc.Encoding)
}

// IsRegistered reports whether deviceID receives commands.
func (r *Router) IsRegistered(deviceID string) bool {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	_, ok := r.devices[deviceID]
	return ok
}

// OnConnect logs the bus coming up. Subscriptions are restored by the
// bus client.
func (r *Router) OnConnect() {
	r.logInfo("bus connected", "devices", r.registeredCount())
}

// OnDisconnect logs the bus going down. A nil err is a clean disconnect.
func (r *Router) OnDisconnect(err error) {
	if err != nil {
		r.logWarn("bus connection lost", "error", err)
		return
	}
	r.logInfo("bus disconnected")
}

// OnMessage handles one inbound command. It blocks on neither serial I/O
// nor the bus: reads go to the worker pool and every response is
// published from its own goroutine.
func (r *Router) OnMessage(topic string, payload []byte) {
	deviceID, channel, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || channel != mqtt.ChannelCommand {
		r.dropped.Add(1)
		r.logWarn("dropping message", "topic", topic, "error", ErrMalformedTopic)
		return
	}

	r.devicesMu.RLock()
	reg, known := r.devices[deviceID]
	r.devicesMu.RUnlock()
	if !known {
		r.dropped.Add(1)
		r.logWarn("dropping message", "device_id", deviceID, "error", ErrUnregisteredDevice)
		return
	}

	r.commands.Add(1)

	command, err := parseCommand(payload)
	switch {
	case errors.Is(err, ErrInvalidJSON):
		r.logWarn("invalid command payload", "device_id", deviceID, "error", err)
		r.replyError(deviceID, MsgInvalidCommand)
		return
	case errors.Is(err, ErrUnknownCommand):
		r.logWarn("unknown command", "device_id", deviceID, "command", command)
		r.replyError(deviceID, UnknownCommandMessage(command))
		return
	}

	if !r.beginRead(deviceID) {
		r.busyRejections.Add(1)
		r.logWarn("rejecting command", "device_id", deviceID, "error", ErrDeviceBusy)
		r.replyError(deviceID, MsgDeviceBusy)
		return
	}

	if !r.track() {
		r.endRead(deviceID)
		r.dropped.Add(1)
		r.logDebug("dropping command during shutdown", "device_id", deviceID)
		return
	}

	requestID := uuid.NewString()
	r.logDebug("read dispatched", "device_id", deviceID, "request_id", requestID)
	go r.dispatch(reg, requestID)
}

// dispatch runs one read on the worker pool and publishes the result.
func (r *Router) dispatch(reg registration, requestID string) {
	id := reg.desc.ID
	defer r.wg.Done()
	defer r.endRead(id)

	if err := r.pool.Acquire(r.ctx, 1); err != nil {
		r.logWarn("read abandoned", "device_id", id, "request_id", requestID, "error", err)
		return
	}
	defer r.pool.Release(1)

	start := time.Now()
	weight, err := reg.reader.ReadWeight(r.ctx, id)
	elapsed := time.Since(start)

	if err != nil {
		r.logWarn("weight read failed",
			"device_id", id,
			"request_id", requestID,
			"duration", elapsed,
			"error", err)
		r.respondError(id, ReadErrorMessage(err))
		return
	}

	r.logInfo("weight read",
		"device_id", id,
		"request_id", requestID,
		"weight", RoundWeight(weight),
		"duration", elapsed)

	if err := r.publisher.PublishWeight(id, weight); err != nil {
		r.publishFailures.Add(1)
		return
	}
	r.responsesOK.Add(1)
}

// replyError publishes an error response off the delivery goroutine. A
// QoS 1 publish waits for the broker's acknowledgement, and the bus client
// delivers messages one at a time.
func (r *Router) replyError(deviceID, message string) {
	if !r.track() {
		r.dropped.Add(1)
		r.logDebug("dropping error response during shutdown", "device_id", deviceID)
		return
	}
	go func() {
		defer r.wg.Done()
		r.respondError(deviceID, message)
	}()
}

func (r *Router) respondError(deviceID, message string) {
	if err := r.publisher.PublishError(deviceID, message); err != nil {
		r.publishFailures.Add(1)
		return
	}
	r.responsesError.Add(1)
}

// track registers a dispatch with the wait group unless Stop has begun.
func (r *Router) track() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.stopping {
		return false
	}
	r.wg.Add(1)
	return true
}

// beginRead marks deviceID in flight. It reports false if it already was.
func (r *Router) beginRead(deviceID string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if _, busy := r.inFlight[deviceID]; busy {
		return false
	}
	r.inFlight[deviceID] = struct{}{}
	return true
}

func (r *Router) endRead(deviceID string) {
	r.inFlightMu.Lock()
	delete(r.inFlight, deviceID)
	r.inFlightMu.Unlock()
}

func (r *Router) inFlightCount() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return len(r.inFlight)
}

func (r *Router) registeredCount() int {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	return len(r.devices)
}

// Metrics returns router counters for the status API.
func (r *Router) Metrics() RouterMetrics {
	return RouterMetrics{
		Commands:        r.commands.Load(),
		ResponsesOK:     r.responsesOK.Load(),
		ResponsesError:  r.responsesError.Load(),
		Dropped:         r.dropped.Load(),
		BusyRejections:  r.busyRejections.Load(),
		PublishFailures: r.publishFailures.Load(),
		InFlight:        r.inFlightCount(),
		Registered:      r.registeredCount(),
	}
}

func (r *Router) logDebug(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, keysAndValues...)
	}
}

func (r *Router) logInfo(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Router) logWarn(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, keysAndValues...)
	}
}

var _ EventHandler = (*Router)(nil)
