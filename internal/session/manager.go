// Package session owns the single connection to the messaging network.
//
// A Manager dials a transport socket, turns its events into status changes,
// persists credentials, republishes inbound messages on the event bus and
// reconnects after every close. Sends read a snapshot of the current socket
// and may run concurrently with everything else.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdp/qrterminal/v3"

	"wafa/internal/eventbus"
	"wafa/internal/observability"
	"wafa/internal/storage"
	"wafa/internal/transport"
	"wafa/pkg/logx"
)

const DefaultReconnectDelay = 15 * time.Second

// Store is the credential store as the manager sees it.
type Store interface {
	transport.KeyStore
	LoadCredentials(ctx context.Context) (*storage.Credentials, error)
	SaveCredentials(ctx context.Context, c *storage.Credentials) error
	Clear(ctx context.Context) error
}

// Scheduler runs f once after d and returns a func that cancels it.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Config struct {
	ReconnectDelay time.Duration
	// QR renders pairing codes as a terminal QR code on QRWriter.
	QR       bool
	QRWriter io.Writer
	// Scheduler defaults to time.AfterFunc.
	Scheduler Scheduler
}

// InboundMessage is an accepted message from the network.
type InboundMessage struct {
	Destination  string
	SelfAuthored bool
	Text         string
}

// StatusChange is the payload of eventbus.TypeStatusChanged.
type StatusChange struct {
	From Status
	To   Status
}

type socketRef struct {
	gen    uint64
	socket transport.Socket
}

type socketEvent struct {
	gen uint64
	ev  transport.Event
}

type Manager struct {
	cfg    Config
	dialer transport.Dialer
	store  Store
	bus    eventbus.Bus
	log    logx.Logger

	status atomic.Int32
	format atomic.Value // transport.Format
	sock   atomic.Pointer[socketRef]

	events    chan socketEvent
	reconnect chan struct{}

	// loop-owned
	gen         uint64
	pending     bool
	cancelTimer func() bool

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, dialer transport.Dialer, store Store, bus eventbus.Bus, log logx.Logger) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = afterFunc
	}
	if cfg.QRWriter == nil {
		cfg.QRWriter = logx.Stdout()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		store:     store,
		bus:       bus,
		log:       log.With(logx.String("comp", "session")),
		events:    make(chan socketEvent, 64),
		reconnect: make(chan struct{}, 1),
	}
	m.format.Store(transport.FormatPlain)
	m.status.Store(int32(StatusConnecting))
	return m
}

// Start runs the session creation procedure and the event loop. Storage
// errors are returned; a failed dial is retried after the reconnect delay.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("session: already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	observability.SetSessionStatus(m.Status().String(), statusLabels())

	if err := m.connect(m.ctx); err != nil {
		if errors.Is(err, storage.ErrStorage) {
			m.cancel()
			return newError(KindStorage, "could not load credentials", err)
		}
		m.log.Error("dial failed", logx.Err(err))
		m.setStatus(StatusError)
		m.scheduleReconnect()
	}

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop ends the event loop, cancels a pending reconnect and closes the live
// socket.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.cancelTimer != nil {
		m.cancelTimer()
	}
	if ref := m.sock.Swap(nil); ref != nil {
		return ref.socket.Close()
	}
	return nil
}

func (m *Manager) Status() Status { return Status(m.status.Load()) }

func (m *Manager) Health() error { return Health(m.Status()) }

// Current returns the live socket, or nil before the first dial.
func (m *Manager) Current() transport.Socket {
	if ref := m.sock.Load(); ref != nil {
		return ref.socket
	}
	return nil
}

// SetFormat selects how Send marks up text and captions.
func (m *Manager) SetFormat(f transport.Format) { m.format.Store(f) }

func (m *Manager) textFormat() transport.Format {
	f, _ := m.format.Load().(transport.Format)
	return f
}

func (m *Manager) setStatus(s Status) {
	old := Status(m.status.Swap(int32(s)))
	if old == s {
		return
	}
	m.log.Debug("status changed", logx.String("from", old.String()), logx.String("to", s.String()))
	observability.SetSessionStatus(s.String(), statusLabels())
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeStatusChanged, Data: StatusChange{From: old, To: s}})
}

// connect loads credentials, dials a new socket and makes it current. The
// previous socket is abandoned; its own close is what got us here.
func (m *Manager) connect(ctx context.Context) error {
	creds, err := m.store.LoadCredentials(ctx)
	if err != nil {
		return err
	}
	sock, err := m.dialer.Dial(ctx, transport.Auth{Creds: creds, Keys: m.store})
	if err != nil {
		return err
	}
	m.gen++
	m.sock.Store(&socketRef{gen: m.gen, socket: sock})

	m.wg.Add(1)
	go m.pump(m.gen, sock)
	return nil
}

func (m *Manager) pump(gen uint64, sock transport.Socket) {
	defer m.wg.Done()
	ch := sock.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			select {
			case m.events <- socketEvent{gen: gen, ev: ev}:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnect:
			m.pending = false
			m.log.Info("reconnecting")
			if err := m.connect(m.ctx); err != nil {
				m.log.Error("reconnect failed", logx.Err(err))
				if errors.Is(err, storage.ErrStorage) {
					m.storageFailed("load credentials", err)
				}
				m.setStatus(StatusError)
				m.scheduleReconnect()
			}
		case se := <-m.events:
			if se.gen != m.gen {
				m.log.Debug("stale socket event dropped", logx.Int64("gen", int64(se.gen)))
				continue
			}
			m.handle(se.ev)
		}
	}
}

func (m *Manager) handle(ev transport.Event) {
	switch {
	case ev.Creds != nil:
		m.saveCreds(ev.Creds)
	case ev.Connection != nil:
		m.onConnection(ev.Connection)
	case ev.Messages != nil:
		m.onMessages(ev.Messages)
	}
}

func (m *Manager) saveCreds(c *storage.Credentials) {
	if err := m.store.SaveCredentials(m.ctx, c); err != nil {
		m.storageFailed("save credentials", err)
	}
}

func (m *Manager) storageFailed(op string, err error) {
	m.log.Error("credential store failed", logx.String("op", op), logx.Err(err))
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeStorageFailed, Data: newError(KindStorage, op, err)})
}

func (m *Manager) onConnection(u *transport.ConnectionUpdate) {
	if u.PairingCode != "" {
		m.showPairingCode(u.PairingCode)
		m.setStatus(StatusAwaitingPairing)
		return
	}

	switch u.Phase {
	case transport.PhaseConnecting:
		m.setStatus(StatusConnecting)
	case transport.PhaseOpen:
		m.log.Info("connected")
		m.setStatus(StatusConnected)
	case transport.PhaseClose:
		m.onClose(u.Disconnect)
	}
}

func (m *Manager) onClose(de *transport.DisconnectError) {
	m.setStatus(StatusError)

	var reason transport.DisconnectReason
	if de != nil {
		reason = de.Reason
	}
	m.log.Warn("connection closed", logx.String("reason", reason.String()), logx.Err(closeErr(de)))

	if de != nil && reason == transport.ReasonLoggedOut {
		m.log.Error("logged out, wiping credential store")
		if err := m.store.Clear(m.ctx); err != nil {
			m.storageFailed("clear", err)
		}
		m.setStatus(StatusLoggedOut)
	} else if s, ok := disconnectStatus[reason]; ok && de != nil {
		m.setStatus(s)
	}

	m.scheduleReconnect()
}

func closeErr(de *transport.DisconnectError) error {
	if de == nil {
		return nil
	}
	return de.Err
}

// scheduleReconnect arms one deferred reconnect. The timer only posts a
// request; the loop performs the dial.
func (m *Manager) scheduleReconnect() {
	if m.pending {
		return
	}
	m.pending = true
	observability.RecordReconnect()
	m.log.Info("reconnect scheduled", logx.Duration("delay", m.cfg.ReconnectDelay))
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeReconnectScheduled, Data: m.cfg.ReconnectDelay})

	ctx := m.ctx
	m.cancelTimer = m.cfg.Scheduler(m.cfg.ReconnectDelay, func() {
		select {
		case m.reconnect <- struct{}{}:
		case <-ctx.Done():
		}
	})
}

func (m *Manager) showPairingCode(code string) {
	m.log.Info("pairing code issued", logx.String("code", code))
	if m.cfg.QR {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, m.cfg.QRWriter)
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypePairingCode, Data: code})
}

var errInvalidMessage = errors.New("invalid inbound message")

func (m *Manager) onMessages(b *transport.MessageBatch) {
	if b.Kind != transport.BatchNotify {
		return
	}
	for _, raw := range b.Messages {
		msg, err := parseInbound(raw)
		if err != nil {
			observability.RecordInbound("invalid")
			m.log.Warn("inbound message dropped", logx.String("id", raw.ID), logx.Err(err))
			continue
		}
		observability.RecordInbound("accepted")
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeInboundMessage, Data: msg})
	}
}

func parseInbound(raw transport.InboundMessage) (InboundMessage, error) {
	dest := raw.RemoteID
	if dest == "" {
		dest = raw.RemoteIDAlt
	}
	if dest == "" {
		return InboundMessage{}, errors.Join(errInvalidMessage, errors.New("no destination"))
	}

	// An empty conversation falls through to the extended text.
	var text *string
	switch {
	case raw.Conversation != nil && *raw.Conversation != "":
		text = raw.Conversation
	case raw.ExtendedText != nil:
		text = raw.ExtendedText
	}
	if text == nil {
		return InboundMessage{}, errors.Join(errInvalidMessage, errors.New("no text"))
	}

	return InboundMessage{
		Destination:  dest,
		SelfAuthored: raw.FromMe || strings.HasSuffix(dest, "newsletter"),
		Text:         *text,
	}, nil
}
