package scale

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultReconnectInterval is the pause between background reconnect attempts.
const DefaultReconnectInterval = 5 * time.Second

// recordTimeout bounds one journal write.
const recordTimeout = 2 * time.Second

// Status is the connection state of one device.
type Status string

// Connection states. Disconnected and Reconnecting both deny reads; a
// device is Reconnecting while a background task is retrying it.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// LinkEvent names a connection-state transition worth journaling.
type LinkEvent string

// Link events.
const (
	EventConnected       LinkEvent = "connected"
	EventDisconnected    LinkEvent = "disconnected"
	EventReconnectFailed LinkEvent = "reconnect_failed"
	EventReadFailed      LinkEvent = "read_failed"
)

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// EventRecorder persists link events. It is optional.
type EventRecorder interface {
	RecordLinkEvent(ctx context.Context, deviceID string, event LinkEvent, detail string) error
}

// DeviceStatus is a point-in-time view of one device.
type DeviceStatus struct {
	Descriptor Descriptor
	Status     Status
	LastError  string
	Since      time.Time
}

// Stats holds supervisor counters.
type Stats struct {
	ReconnectAttempts  int64 `json:"reconnect_attempts"`
	ReconnectSuccesses int64 `json:"reconnect_successes"`
	InlineReconnects   int64 `json:"inline_reconnects"`
}

// device is the per-device state. mu serialises every use of link, so a
// read, an inline reconnect and a background reconnect never interleave.
type device struct {
	mu      sync.Mutex
	link    *Link
	status  Status
	lastErr error
	since   time.Time
}

func (d *device) setStatus(status Status, err error) {
	if d.status != status {
		d.since = time.Now()
	}
	d.status = status
	d.lastErr = err
}

// Options configures a Supervisor.
type Options struct {
	// Devices is the full configured device list. Ids must be unique.
	Devices []Descriptor

	// Opener opens serial ports. Defaults to SerialOpener.
	Opener Opener

	// ReconnectInterval is the pause between background attempts.
	// Defaults to DefaultReconnectInterval.
	ReconnectInterval time.Duration

	Logger   Logger
	Recorder EventRecorder
}

// Supervisor owns every device link and its connection state.
//
// Thread Safety: all methods are safe for concurrent use. Calls for one
// device are serialised; calls for different devices run in parallel.
type Supervisor struct {
	devices  map[string]*device
	order    []string
	interval time.Duration
	logger   Logger
	recorder EventRecorder

	onReconnect func(Descriptor)
	callbackMu  sync.RWMutex

	// tasks holds the ids with an active background reconnect task.
	tasks   map[string]struct{}
	closed  bool
	tasksMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	reconnectAttempts  atomic.Int64
	reconnectSuccesses atomic.Int64
	inlineReconnects   atomic.Int64
}

// NewSupervisor creates a supervisor with every device Disconnected.
// Call ConnectAll to open the ports.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if len(opts.Devices) == 0 {
		return nil, ErrNoDevices
	}

	opener := opts.Opener
	if opener == nil {
		opener = SerialOpener{}
	}
	interval := opts.ReconnectInterval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		devices:  make(map[string]*device, len(opts.Devices)),
		order:    make([]string, 0, len(opts.Devices)),
		interval: interval,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		tasks:    make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	now := time.Now()
	for _, desc := range opts.Devices {
		if _, dup := s.devices[desc.ID]; dup {
			cancel()
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDevice, desc.ID)
		}
		s.devices[desc.ID] = &device{
			link:   NewLink(desc, opener),
			status: StatusDisconnected,
			since:  now,
		}
		s.order = append(s.order, desc.ID)
	}

	return s, nil
}

// SetOnReconnect sets the callback run after a background task connects a
// device. The router uses it to register the device for commands.
func (s *Supervisor) SetOnReconnect(fn func(Descriptor)) {
	s.callbackMu.Lock()
	s.onReconnect = fn
	s.callbackMu.Unlock()
}

// ConnectAll opens every device in parallel and returns the ones that
// failed, in configuration order. Failures are logged, never fatal.
func (s *Supervisor) ConnectAll(ctx context.Context) (connected, failed []Descriptor) {
	results := make([]error, len(s.order))

	g, _ := errgroup.WithContext(ctx)
	for i, id := range s.order {
		g.Go(func() error {
			results[i] = s.Connect(id)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return an error

	for i, id := range s.order {
		desc := s.devices[id].link.Descriptor()
		if results[i] != nil {
			failed = append(failed, desc)
			continue
		}
		connected = append(connected, desc)
	}
	return connected, failed
}

// Connect opens one device's port. It is a no-op for a connected device.
func (s *Supervisor) Connect(id string) error {
	d, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return s.connectLocked(id, d)
}

// connectLocked opens the link. d.mu must be held.
func (s *Supervisor) connectLocked(id string, d *device) error {
	if d.status == StatusConnected && d.link.IsOpen() {
		return nil
	}

	if err := d.link.Connect(); err != nil {
		status := StatusDisconnected
		if s.hasTask(id) {
			status = StatusReconnecting
		}
		d.setStatus(status, err)
		s.logWarn("device connect failed", "device_id", id, "port", d.link.Descriptor().Port, "error", err)
		return err
	}

	d.setStatus(StatusConnected, nil)
	s.logInfo("device connected", "device_id", id, "port", d.link.Descriptor().Port)
	s.record(id, EventConnected, d.link.Descriptor().Port)
	return nil
}

// ReadWeight reads the current weight from a device.
//
// A decode failure is returned as is and the device stays Connected. A
// transport failure (including a read on a device that is down) gets
// exactly one inline reconnect-and-retry: the broken port is closed, a
// fresh one opened and the read repeated once. If that fails too the
// device is handed to a background reconnect task and the error returned.
//
// ctx is only checked before the read starts; an in-flight serial read is
// bounded by the device's read timeout, not by ctx.
func (s *Supervisor) ReadWeight(ctx context.Context, id string) (float64, error) {
	d, ok := s.devices[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	weight, err := d.link.Read()
	if err == nil {
		s.logDebug("weight read", "device_id", id, "weight", weight, "attempts", d.link.LastAttempts())
		return weight, nil
	}
	if !IsTransport(err) {
		d.lastErr = err
		s.logWarn("weight decode failed", "device_id", id, "attempts", d.link.LastAttempts(), "error", err)
		s.record(id, EventReadFailed, err.Error())
		return 0, err
	}

	s.logWarn("serial error during read, reconnecting", "device_id", id, "error", err)
	s.inlineReconnects.Add(1)

	s.closeLink(id, d)
	d.setStatus(StatusDisconnected, err)

	if err := d.link.Connect(); err != nil {
		s.markDown(id, d, err)
		return 0, err
	}
	d.setStatus(StatusConnected, nil)
	s.logInfo("device reconnected", "device_id", id)
	s.record(id, EventConnected, "inline reconnect")

	weight, err = d.link.Read()
	if err == nil {
		return weight, nil
	}
	if IsTransport(err) {
		s.closeLink(id, d)
		s.markDown(id, d, err)
		return 0, err
	}

	d.lastErr = err
	s.record(id, EventReadFailed, err.Error())
	return 0, err
}

// markDown records a device as down after a failed inline reconnect and
// makes sure a background task is retrying it. d.mu must be held.
func (s *Supervisor) markDown(id string, d *device, err error) {
	status := StatusDisconnected
	if s.startTask(id, d) {
		status = StatusReconnecting
	}
	d.setStatus(status, err)
	s.logError("device unavailable", "device_id", id, "error", err)
	s.record(id, EventDisconnected, err.Error())
}

// Supervise starts a background task that reconnects a device every
// reconnect interval until it succeeds or the supervisor closes. On
// success the OnReconnect callback runs and the task ends.
//
// It reports whether a task is running for id afterwards. At most one
// task exists per device; a second call while one runs is a no-op.
func (s *Supervisor) Supervise(id string) bool {
	d, ok := s.devices[id]
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status == StatusConnected {
		return false
	}
	if !s.startTask(id, d) {
		return false
	}
	d.setStatus(StatusReconnecting, d.lastErr)
	return true
}

// startTask registers and launches the reconnect task for id unless one
// already runs. Lock order is d.mu before tasksMu; the task itself only
// takes d.mu after startTask has returned.
func (s *Supervisor) startTask(id string, d *device) bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	if s.closed {
		return false
	}
	if _, running := s.tasks[id]; running {
		return true
	}

	s.tasks[id] = struct{}{}
	s.wg.Add(1)
	go s.reconnectLoop(id, d)

	s.logInfo("background reconnect started", "device_id", id, "interval", s.interval)
	return true
}

func (s *Supervisor) endTask(id string) {
	s.tasksMu.Lock()
	delete(s.tasks, id)
	s.tasksMu.Unlock()
}

func (s *Supervisor) hasTask(id string) bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// reconnectLoop is the body of one background reconnect task.
func (s *Supervisor) reconnectLoop(id string, d *device) {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.endTask(id)
			return
		case <-timer.C:
		}

		if s.tryReconnect(id, d) {
			s.notifyReconnect(d.link.Descriptor())
			return
		}
		timer.Reset(s.interval)
	}
}

// tryReconnect makes one background attempt. It returns true once the
// device is connected, including when an inline reconnect got there
// first. The task is deregistered under d.mu so a read failing right
// after cannot mistake a finishing task for a live one.
func (s *Supervisor) tryReconnect(id string, d *device) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status == StatusConnected && d.link.IsOpen() {
		s.endTask(id)
		return true
	}

	s.logInfo("retrying device connection", "device_id", id, "port", d.link.Descriptor().Port)
	s.reconnectAttempts.Add(1)

	if err := d.link.Connect(); err != nil {
		d.setStatus(StatusReconnecting, err)
		s.logWarn("reconnect attempt failed", "device_id", id, "error", err)
		s.record(id, EventReconnectFailed, err.Error())
		return false
	}

	s.reconnectSuccesses.Add(1)
	d.setStatus(StatusConnected, nil)
	s.endTask(id)
	s.logInfo("device connected after retry", "device_id", id)
	s.record(id, EventConnected, "background reconnect")
	return true
}

func (s *Supervisor) notifyReconnect(desc Descriptor) {
	s.callbackMu.RLock()
	fn := s.onReconnect
	s.callbackMu.RUnlock()
	if fn != nil {
		fn(desc)
	}
}

// Disconnect closes a device's port. It is idempotent and never fails;
// close errors are logged.
func (s *Supervisor) Disconnect(id string) {
	d, ok := s.devices[id]
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	wasOpen := d.link.IsOpen()
	s.closeLink(id, d)
	if !s.hasTask(id) {
		d.setStatus(StatusDisconnected, d.lastErr)
	}
	if wasOpen {
		s.logInfo("device disconnected", "device_id", id)
		s.record(id, EventDisconnected, "closed")
	}
}

// closeLink closes the link, logging a close error. d.mu must be held.
func (s *Supervisor) closeLink(id string, d *device) {
	if err := d.link.Close(); err != nil {
		s.logDebug("closing serial port", "device_id", id, "error", err)
	}
}

// Close stops every background task, waits for them to exit and closes
// all ports. It is safe to call more than once.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.tasksMu.Lock()
		s.closed = true
		s.tasksMu.Unlock()

		s.cancel()
		s.wg.Wait()

		for _, id := range s.order {
			s.Disconnect(id)
		}
	})
}

// Descriptors returns every configured device in configuration order.
func (s *Supervisor) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.devices[id].link.Descriptor())
	}
	return out
}

// Status returns the current view of one device.
func (s *Supervisor) Status(id string) (DeviceStatus, bool) {
	d, ok := s.devices[id]
	if !ok {
		return DeviceStatus{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st := DeviceStatus{
		Descriptor: d.link.Descriptor(),
		Status:     d.status,
		Since:      d.since,
	}
	if d.lastErr != nil {
		st.LastError = d.lastErr.Error()
	}
	return st, true
}

// Snapshot returns every device's status in configuration order.
//
// A device mid-read holds its lock for up to its read timeout, so a
// snapshot can take that long.
func (s *Supervisor) Snapshot() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(s.order))
	for _, id := range s.order {
		st, _ := s.Status(id)
		out = append(out, st)
	}
	return out
}

// Counts returns how many devices are connected out of the total.
func (s *Supervisor) Counts() (connected, total int) {
	for _, st := range s.Snapshot() {
		if st.Status == StatusConnected {
			connected++
		}
	}
	return connected, len(s.order)
}

// Stats returns the supervisor counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		ReconnectAttempts:  s.reconnectAttempts.Load(),
		ReconnectSuccesses: s.reconnectSuccesses.Load(),
		InlineReconnects:   s.inlineReconnects.Load(),
	}
}

func (s *Supervisor) record(id string, event LinkEvent, detail string) {
	if s.recorder == nil {
		return
	}
	// Not derived from s.ctx: Close records the final disconnects after
	// cancelling it.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.recorder.RecordLinkEvent(ctx, id, event, detail); err != nil {
		s.logDebug("recording link event", "device_id", id, "event", event, "error", err)
	}
}

func (s *Supervisor) logDebug(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, kv...)
	}
}

func (s *Supervisor) logInfo(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Info(msg, kv...)
	}
}

func (s *Supervisor) logWarn(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, kv...)
	}
}

func (s *Supervisor) logError(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Error(msg, kv...)
	}
}
