package scale

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnplugged = errors.New("device reports readiness to read but returned no data")

// fakePort is a scripted serial port. backlog is dropped by
// ResetInputBuffer; stream is what arrives afterwards. An empty stream
// behaves like a read timeout.
type fakePort struct {
	mu      sync.Mutex
	backlog []byte
	stream  []byte
	readErr error
	resets  int
	closed  bool
}

func newFakePort(stream string) *fakePort {
	return &fakePort{stream: []byte(stream)}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.readErr != nil {
		return 0, p.readErr
	}

	src := &p.backlog
	if len(*src) == 0 {
		src = &p.stream
	}
	if len(*src) == 0 {
		return 0, nil
	}
	n := copy(b, *src)
	*src = (*src)[n:]
	return n, nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.backlog = nil
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeOpener hands out results from open in call order. The last entry
// repeats once the script runs out.
type fakeOpener struct {
	mu     sync.Mutex
	script []openResult
	calls  int
	args   []openArgs
}

type openResult struct {
	port *fakePort
	err  error
}

type openArgs struct {
	address string
	baud    int
	timeout time.Duration
}

func newFakeOpener(results ...openResult) *fakeOpener {
	return &fakeOpener{script: results}
}

func opens(p *fakePort) openResult { return openResult{port: p} }

func refuses(msg string) openResult {
	return openResult{err: errors.New(msg)}
}

func (o *fakeOpener) Open(address string, baud int, timeout time.Duration) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.args = append(o.args, openArgs{address, baud, timeout})
	i := o.calls
	if i >= len(o.script) {
		i = len(o.script) - 1
	}
	o.calls++

	r := o.script[i]
	if r.err != nil {
		return nil, r.err
	}
	return r.port, nil
}

func (o *fakeOpener) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// fakeRecorder collects link events.
type fakeRecorder struct {
	mu     sync.Mutex
	events []LinkEvent
}

func (r *fakeRecorder) RecordLinkEvent(_ context.Context, _ string, event LinkEvent, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRecorder) all() []LinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LinkEvent(nil), r.events...)
}

func standardDevice(id string) Descriptor {
	return Descriptor{ID: id, Port: "/dev/tty-" + id, BaudRate: 9600, ReadTimeout: 50 * time.Millisecond, Encoding: EncodingStandard}
}

func paddedDevice(id string) Descriptor {
	d := standardDevice(id)
	d.Encoding = EncodingPadded
	return d
}

func paddedFrameString(weight int) string {
	return string(EncodePadded(float64(weight)))
}
