package bithumb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

const restBody = `{
	"status": "0000",
	"data": {
		"bids": [{"price": "100", "quantity": "1"}, {"price": "99", "quantity": "2"}],
		"asks": [{"price": "101", "quantity": "1"}]
	}
}`

func TestPollOnceLoadsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(restBody))
	}))
	defer server.Close()

	book := domain.NewBook("btx", "btckrw")
	poller := NewPoller(book, server.URL, time.Second, zerolog.Nop())

	require.NoError(t, poller.PollOnce(context.Background()))
	require.True(t, book.Ready())

	best, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", best.Price.String())
}

func TestFailedPollKeepsPreviousSnapshot(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(restBody))
	}))
	defer server.Close()

	book := domain.NewBook("btx", "btckrw")
	poller := NewPoller(book, server.URL, time.Second, zerolog.Nop())
	require.NoError(t, poller.PollOnce(context.Background()))

	fail.Store(true)
	err := poller.PollOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))

	// Stale-but-valid: the previous snapshot is still readable.
	assert.True(t, book.Ready())
	best, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", best.Price.String())
}

func TestVenueErrorStatusIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "5500", "data": {}}`))
	}))
	defer server.Close()

	book := domain.NewBook("btx", "btckrw")
	poller := NewPoller(book, server.URL, time.Second, zerolog.Nop())

	err := poller.PollOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindProtocol, domain.KindOf(err))
	assert.False(t, book.Ready())
}
