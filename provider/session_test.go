package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg, ok := <-c.frames:
		if !ok {
			return nil, errors.New("remote closed")
		}
		return msg, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if len(t.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := t.conns[0]
	t.conns = t.conns[1:]
	return conn, nil
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type recordingAdapter struct {
	mu     sync.Mutex
	msgs   [][]byte
	resets int
}

func (a *recordingAdapter) Venue() string { return "test" }

func (a *recordingAdapter) SubscribeFrames() ([][]byte, error) {
	return [][]byte{[]byte("subscribe")}, nil
}

func (a *recordingAdapter) OnMessage(raw []byte, _ domain.ReplyFunc) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, raw)
	return domain.Applied, nil
}

func (a *recordingAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

func (a *recordingAdapter) Msgs() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.msgs))
	copy(out, a.msgs)
	return out
}

func (a *recordingAdapter) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

func newTestSession(transport Transport, adapter domain.FeedAdapter, keepAlive time.Duration) *Session {
	return NewSession(SessionConfig{
		Venue:            "test",
		Endpoint:         "wss://example.invalid",
		Transport:        transport,
		Adapter:          adapter,
		ReconnectDelay:   10 * time.Millisecond,
		KeepAliveTimeout: keepAlive,
		Logger:           zerolog.Nop(),
	})
}

func TestSessionSubscribesAndForwardsFrames(t *testing.T) {
	conn := newFakeConn()
	conn.frames <- []byte("frame-1")
	conn.frames <- []byte("frame-2")

	transport := &fakeTransport{conns: []*fakeConn{conn}}
	adapter := &recordingAdapter{}
	session := newTestSession(transport, adapter, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(adapter.Msgs()) == 2
	}, time.Second, 5*time.Millisecond)

	writes := conn.Writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, []byte("subscribe"), writes[0])
	assert.Equal(t, [][]byte{[]byte("frame-1"), []byte("frame-2")}, adapter.Msgs())
	assert.Equal(t, Connected, session.State())
	assert.Equal(t, 0, session.ReconnectAttempts())

	cancel()
	<-done
	assert.Equal(t, Closing, session.State())
}

func TestSessionReconnectsAfterConnectionLoss(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{first, second}}
	adapter := &recordingAdapter{}
	session := newTestSession(transport, adapter, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	assert.Eventually(t, func() bool {
		return transport.Dials() == 1 && session.State() == Connected
	}, time.Second, 5*time.Millisecond)

	// Remote closes: the session must reset the adapter and dial again.
	close(first.frames)

	assert.Eventually(t, func() bool {
		return transport.Dials() == 2 && session.State() == Connected
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, adapter.Resets())
	// A successful connect resets the attempt counter.
	assert.Equal(t, 0, session.ReconnectAttempts())

	// The new connection got its own subscribe handshake.
	assert.Eventually(t, func() bool {
		return len(second.Writes()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCountsAttemptsWhileVenueUnreachable(t *testing.T) {
	transport := &fakeTransport{} // every dial is refused
	adapter := &recordingAdapter{}
	session := newTestSession(transport, adapter, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	assert.Eventually(t, func() bool {
		return session.ReconnectAttempts() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionForcesReconnectOnSilentDisconnect(t *testing.T) {
	first := newFakeConn() // never sends a frame
	second := newFakeConn()
	transport := &fakeTransport{conns: []*fakeConn{first, second}}
	adapter := &recordingAdapter{}
	session := newTestSession(transport, adapter, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	assert.Eventually(t, func() bool {
		return transport.Dials() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, adapter.Resets(), 1)
}

func TestSessionClosesOnCancelDuringRetry(t *testing.T) {
	transport := &fakeTransport{}
	session := newTestSession(transport, &recordingAdapter{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return session.ReconnectAttempts() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancellation")
	}
	assert.Equal(t, Closing, session.State())
}
