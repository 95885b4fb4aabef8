package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wafa/internal/storage"
	"wafa/internal/transport"
	"wafa/pkg/logx"
)

type sentPayload struct {
	dest string
	p    transport.Payload
}

type fakeSocket struct {
	events chan transport.Event

	mu      sync.Mutex
	sent    []sentPayload
	sendErr error
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{events: make(chan transport.Event, 16)}
}

func (s *fakeSocket) Events() <-chan transport.Event { return s.events }

func (s *fakeSocket) Send(_ context.Context, dest string, p transport.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentPayload{dest: dest, p: p})
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) payloads() []sentPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentPayload(nil), s.sent...)
}

func (s *fakeSocket) close(reason transport.DisconnectReason) {
	s.events <- transport.Event{Connection: &transport.ConnectionUpdate{
		Phase:      transport.PhaseClose,
		Disconnect: &transport.DisconnectError{Reason: reason, Err: errors.New("test close")},
	}}
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	auths   []transport.Auth
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, auth transport.Auth) (transport.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	d.auths = append(d.auths, auth)
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

// fakeScheduler records reconnects without firing them.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (f *fakeScheduler) schedule(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return func() bool { return true }
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *fakeScheduler) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	m     *Manager
	d     *fakeDialer
	sched *fakeScheduler
	store *storage.CredentialStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		d:     &fakeDialer{},
		sched: &fakeScheduler{},
		store: storage.NewCredentialStore(storage.NewMemory()),
	}
	h.m = New(Config{ReconnectDelay: DefaultReconnectDelay, Scheduler: h.sched.schedule}, h.d, h.store, nil, logx.Nop())
	if err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.m.Stop(ctx)
	})
	return h
}
