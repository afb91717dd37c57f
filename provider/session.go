package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"

	"github.com/spooky-finn/go-spread-watcher/domain"
	promclient "github.com/spooky-finn/go-spread-watcher/infrastructure/prometheus"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "closing"
}

type SessionConfig struct {
	Venue     string
	Endpoint  string
	Transport Transport
	Adapter   domain.FeedAdapter

	// ReconnectDelay is the fixed wait between attempts. Retries are
	// unbounded: the session never gives up on a venue.
	ReconnectDelay time.Duration

	// KeepAliveTimeout forces a reconnect when no frame arrives within the
	// window. Zero disables the watchdog for feeds without a keepalive
	// contract.
	KeepAliveTimeout time.Duration

	Logger zerolog.Logger
}

// Session owns one network connection to one venue and drives its whole
// lifecycle: dial, subscribe, forward frames to the adapter, tear down,
// reconnect. Exactly one reader/dispatcher pair exists per live connection
// and both are gone before the next attempt is scheduled.
type Session struct {
	venue            string
	endpoint         string
	transport        Transport
	adapter          domain.FeedAdapter
	reconnectDelay   time.Duration
	keepAliveTimeout time.Duration
	log              zerolog.Logger

	mu       sync.Mutex
	state    State
	attempts int

	lastFrame atomic.Int64
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{
		venue:            cfg.Venue,
		endpoint:         cfg.Endpoint,
		transport:        cfg.Transport,
		adapter:          cfg.Adapter,
		reconnectDelay:   cfg.ReconnectDelay,
		keepAliveTimeout: cfg.KeepAliveTimeout,
		log:              cfg.Logger.With().Str("venue", cfg.Venue).Logger(),
		state:            Disconnected,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Run blocks until ctx is cancelled. Every exit path from a live connection
// resets the adapter (which marks the book stale) before the next attempt.
func (s *Session) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.setState(Closing)
			return
		}

		s.setState(Connecting)
		conn, err := s.transport.Dial(ctx, s.endpoint)
		if err != nil {
			s.log.Warn().Err(err).Msg("dial failed")
			if !s.waitRetry(ctx) {
				s.setState(Closing)
				return
			}
			continue
		}

		s.setState(Connected)
		s.resetAttempts()
		s.log.Info().Msg("connected")

		if err := s.subscribe(conn); err != nil {
			s.log.Warn().Err(err).Msg("subscribe handshake failed")
			conn.Close()
		} else {
			s.serve(ctx, conn)
		}

		s.adapter.Reset()

		if ctx.Err() != nil {
			s.setState(Closing)
			s.log.Info().Msg("session closed")
			return
		}

		s.setState(Disconnected)
		if !s.waitRetry(ctx) {
			s.setState(Closing)
			return
		}
	}
}

func (s *Session) subscribe(conn Conn) error {
	frames, err := s.adapter.SubscribeFrames()
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(frame); err != nil {
			return err
		}
	}
	return nil
}

// serve pumps frames until the connection dies, the keepalive window is
// missed, a handler panics, or ctx is cancelled. The reader goroutine feeds
// a queue drained here, so the adapter sees frames strictly in arrival
// order on a single goroutine.
func (s *Session) serve(ctx context.Context, conn Conn) {
	var (
		queueMu sync.Mutex
		queue   deque.Deque[[]byte]
	)
	notify := make(chan struct{}, 1)
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			s.lastFrame.Store(time.Now().UnixNano())
			queueMu.Lock()
			queue.PushBack(raw)
			queueMu.Unlock()
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}()

	defer func() {
		conn.Close()
		wg.Wait()
	}()

	reply := func(payload []byte) error {
		return conn.WriteMessage(payload)
	}

	s.lastFrame.Store(time.Now().UnixNano())
	var watchdog <-chan time.Time
	if s.keepAliveTimeout > 0 {
		ticker := time.NewTicker(s.keepAliveTimeout / 2)
		defer ticker.Stop()
		watchdog = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			s.log.Warn().Err(err).Msg("connection lost")
			return

		case <-watchdog:
			idle := time.Since(time.Unix(0, s.lastFrame.Load()))
			if idle > s.keepAliveTimeout {
				s.log.Warn().Dur("idle", idle).Msg("silent disconnect, forcing reconnect")
				return
			}

		case <-notify:
			for {
				queueMu.Lock()
				if queue.Len() == 0 {
					queueMu.Unlock()
					break
				}
				raw := queue.PopFront()
				queueMu.Unlock()

				if !s.handleFrame(raw, reply) {
					return
				}
			}
		}
	}
}

func (s *Session) handleFrame(raw []byte, reply domain.ReplyFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("frame handler panicked, forcing reconnect")
			ok = false
		}
	}()

	result, err := s.adapter.OnMessage(raw, reply)
	if err != nil {
		if domain.KindOf(err) != domain.KindState {
			promclient.ProtocolErrors.WithLabelValues(s.venue).Inc()
			s.log.Warn().Err(err).Msg("dropped frame")
		}
	}
	if result == domain.Applied {
		promclient.AppliedUpdates.WithLabelValues(s.venue).Inc()
	}
	return true
}

// waitRetry schedules the next attempt. Returns false when ctx was
// cancelled during the wait.
func (s *Session) waitRetry(ctx context.Context) bool {
	s.mu.Lock()
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()

	promclient.ReconnectAttempts.WithLabelValues(s.venue).Inc()
	s.log.Info().Int("attempt", attempts).Dur("delay", s.reconnectDelay).Msg("reconnecting")

	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.reconnectDelay):
		return true
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}
