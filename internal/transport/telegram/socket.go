package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"wafa/internal/storage"
	"wafa/internal/transport"
	"wafa/pkg/logx"
)

// Key record categories owned by this provider.
const (
	categoryPairing = "pairing"
	idPairingCode   = "code"
	categoryPoller  = "poller"
	idPollerOffset  = "offset"
)

type socket struct {
	cfg  Config
	auth transport.Auth
	log  logx.Logger

	events chan transport.Event
	done   chan struct{}

	mu     sync.RWMutex // guards closed; emitters hold it shared
	closed bool

	closeOnce sync.Once
	bot       atomic.Pointer[tele.Bot]

	pollMu  sync.Mutex // orders startPolling against shutdown
	polling bool
	owner     atomic.Int64 // paired operator id; 0 while unpaired
	offset    atomic.Int64

	pairMu      sync.Mutex
	pairingCode string
	creds       *storage.Credentials
}

func newSocket(cfg Config, auth transport.Auth, log logx.Logger) *socket {
	s := &socket{
		cfg:    cfg,
		auth:   auth,
		log:    log,
		events: make(chan transport.Event, 64),
		done:   make(chan struct{}),
		creds:  auth.Creds,
	}
	if auth.Creds.Registered && auth.Creds.Me != nil {
		if id, err := strconv.ParseInt(auth.Creds.Me.ID, 10, 64); err == nil {
			s.owner.Store(id)
		}
	}
	return s
}

func (s *socket) Events() <-chan transport.Event { return s.events }

// Close stops polling without reporting a disconnect.
func (s *socket) Close() error {
	s.shutdown()
	return nil
}

func (s *socket) emit(ev transport.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *socket) emitPhase(p transport.Phase) {
	s.emit(transport.Event{Connection: &transport.ConnectionUpdate{Phase: p}})
}

// fail reports a close and shuts the socket down.
func (s *socket) fail(reason transport.DisconnectReason, err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.log.Warn("socket closing", logx.String("reason", reason.String()), logx.Err(err))
	s.emit(transport.Event{Connection: &transport.ConnectionUpdate{
		Phase:      transport.PhaseClose,
		Disconnect: &transport.DisconnectError{Reason: reason, Err: err},
	}})
	s.shutdown()
}

func (s *socket) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.pollMu.Lock()
		if b := s.bot.Load(); b != nil && s.polling {
			// Stop blocks until Start's loop takes the request.
			go b.Stop()
		}
		s.pollMu.Unlock()
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}

func (s *socket) run(ctx context.Context) {
	s.emitPhase(transport.PhaseConnecting)

	if err := s.loadOffset(ctx); err != nil {
		s.fail(transport.ReasonBadSession, err)
		return
	}

	lp := &tele.LongPoller{Timeout: s.cfg.PollTimeout, LastUpdateID: int(s.offset.Load())}
	poller := tele.NewMiddlewarePoller(lp, func(u *tele.Update) bool {
		s.noteOffset(u.ID)
		return true
	})
	bot, err := tele.NewBot(tele.Settings{
		Token:   s.cfg.Token,
		URL:     s.cfg.APIURL,
		Poller:  poller,
		OnError: s.onError,
	})
	if err != nil {
		s.fail(classify(err), err)
		return
	}
	s.bot.Store(bot)
	s.register(bot)

	select {
	case <-s.done:
		return
	default:
	}

	platform := "telegram:" + bot.Me.Username
	switch {
	case s.creds.Registered && s.creds.Platform != "" && s.creds.Platform != platform:
		s.fail(transport.ReasonLoggedOut, errors.New("session belongs to "+s.creds.Platform))
		return
	case s.creds.Registered:
		s.log.Info("connected", logx.String("bot", bot.Me.Username))
		s.emitPhase(transport.PhaseOpen)
	default:
		code, err := s.pairingCodeFor(ctx)
		if err != nil {
			s.fail(transport.ReasonBadSession, err)
			return
		}
		s.log.Info("awaiting pairing", logx.String("bot", bot.Me.Username))
		s.emit(transport.Event{Connection: &transport.ConnectionUpdate{
			PairingCode: pairingLink(bot.Me.Username, code),
		}})
	}

	if !s.startPolling() {
		return
	}
	// Start blocks until Stop.
	bot.Start()
}

// startPolling reports whether Start may run. After it returns true,
// shutdown owns stopping the bot; before, nothing does and Stop must not be
// called since it would wait forever.
func (s *socket) startPolling() bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.polling = true
	return true
}

func pairingLink(username, code string) string {
	return "https://t.me/" + username + "?start=" + code
}

// pairingCodeFor reuses a stored code so a restart does not invalidate a
// link the operator already has.
func (s *socket) pairingCodeFor(ctx context.Context) (string, error) {
	recs, err := s.auth.Keys.Get(ctx, categoryPairing, []string{idPairingCode})
	if err != nil {
		return "", err
	}
	code := string(recs[idPairingCode])
	if code == "" {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code = hex.EncodeToString(buf)
		err := s.auth.Keys.Set(ctx, storage.Updates{
			categoryPairing: {idPairingCode: storage.KeyRecord(code)},
		})
		if err != nil {
			return "", err
		}
	}
	s.pairMu.Lock()
	s.pairingCode = code
	s.pairMu.Unlock()
	return code, nil
}

// completePairing binds the session to sender when code matches.
func (s *socket) completePairing(ctx context.Context, sender *tele.User, code string) bool {
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	if s.pairingCode == "" || sender == nil || code != s.pairingCode {
		return false
	}
	s.pairingCode = ""

	next := *s.creds
	next.Registered = true
	next.Me = &storage.Account{ID: strconv.FormatInt(sender.ID, 10), Name: sender.Username}
	if b := s.bot.Load(); b != nil {
		next.Platform = "telegram:" + b.Me.Username
	}
	s.creds = &next
	s.owner.Store(sender.ID)

	if err := s.auth.Keys.Set(ctx, storage.Updates{categoryPairing: {idPairingCode: nil}}); err != nil {
		s.log.Warn("pairing code cleanup failed", logx.Err(err))
	}
	s.log.Info("paired", logx.String("owner", next.Me.ID))
	s.emit(transport.Event{Creds: &next})
	s.emitPhase(transport.PhaseOpen)
	return true
}

func (s *socket) loadOffset(ctx context.Context) error {
	recs, err := s.auth.Keys.Get(ctx, categoryPoller, []string{idPollerOffset})
	if err != nil {
		return err
	}
	if raw, ok := recs[idPollerOffset]; ok {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err == nil {
			s.offset.Store(n)
		}
	}
	return nil
}

// noteOffset persists the last seen update id so a restart does not replay
// old messages.
func (s *socket) noteOffset(id int) {
	for {
		cur := s.offset.Load()
		if int64(id) <= cur {
			return
		}
		if s.offset.CompareAndSwap(cur, int64(id)) {
			break
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.auth.Keys.Set(ctx, storage.Updates{
		categoryPoller: {idPollerOffset: storage.KeyRecord(strconv.Itoa(id))},
	})
	if err != nil {
		s.log.Warn("persist update offset failed", logx.Err(err))
	}
}

// onError receives poll failures (c == nil) and handler failures.
func (s *socket) onError(err error, c tele.Context) {
	if c != nil {
		s.log.Warn("update handler failed", logx.Err(err))
		return
	}
	s.fail(classify(err), err)
}
