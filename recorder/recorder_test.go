package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

type memorySink struct {
	mu      sync.Mutex
	headers [][]string
	rows    [][]string
}

func (s *memorySink) EnsureHeader(columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, columns)
	return nil
}

func (s *memorySink) AppendRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestHeaderColumns(t *testing.T) {
	book := domain.NewBook("gx", "btckrw")
	rec := New(book, &memorySink{}, 2, time.Second, zerolog.Nop())

	assert.Equal(t, []string{
		"time",
		"gx.btckrw.b1p", "gx.btckrw.b1q", "gx.btckrw.b2p", "gx.btckrw.b2q",
		"gx.btckrw.a1p", "gx.btckrw.a1q", "gx.btckrw.a2p", "gx.btckrw.a2q",
	}, rec.Header())
}

func TestSampleSkipsNotReadyBook(t *testing.T) {
	book := domain.NewBook("gx", "btckrw")
	rec := New(book, &memorySink{}, 5, time.Second, zerolog.Nop())

	_, ok := rec.Sample(time.Now())
	assert.False(t, ok)

	// Ready but empty is also skipped.
	book.LoadSnapshot(nil, nil)
	_, ok = rec.Sample(time.Now())
	assert.False(t, ok)
}

func TestSampleRowLayout(t *testing.T) {
	book := domain.NewBook("gx", "btckrw")
	book.LoadSnapshot(
		[]domain.PriceLevel{lvl("100", "1"), lvl("99", "2")},
		[]domain.PriceLevel{lvl("101", "1"), lvl("102", "2")},
	)
	rec := New(book, &memorySink{}, 2, time.Second, zerolog.Nop())

	now := time.UnixMilli(1693200000000)
	row, ok := rec.Sample(now)
	require.True(t, ok)
	assert.Equal(t, []string{
		"1693200000000",
		"100", "1", "99", "2",
		"101", "1", "102", "2",
	}, row)
}

func TestShallowBookLeavesCellsEmpty(t *testing.T) {
	book := domain.NewBook("gx", "btckrw")
	book.LoadSnapshot(
		[]domain.PriceLevel{lvl("100", "1")},
		[]domain.PriceLevel{lvl("101", "1")},
	)
	rec := New(book, &memorySink{}, 3, time.Second, zerolog.Nop())

	row, ok := rec.Sample(time.Now())
	require.True(t, ok)
	require.Len(t, row, 1+3*4)
	assert.Equal(t, "100", row[1])
	assert.Equal(t, "", row[3]) // second bid level absent, not fabricated
	assert.Equal(t, "", row[4])
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csv", "gx_spread.csv")
	sink := NewCSVSink(path)

	require.NoError(t, sink.EnsureHeader([]string{"time", "b1p"}))
	require.NoError(t, sink.AppendRow([]string{"1", "100"}))

	// Restart: the header must not be duplicated and rows must survive.
	sink = NewCSVSink(path)
	require.NoError(t, sink.EnsureHeader([]string{"time", "b1p"}))
	require.NoError(t, sink.AppendRow([]string{"2", "101"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,b1p", lines[0])
	assert.Equal(t, "1,100", lines[1])
	assert.Equal(t, "2,101", lines[2])
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	defer db.Close()

	sink := NewSQLiteSink(db, "gx_spread")
	require.NoError(t, sink.EnsureHeader([]string{"time", "gx.btckrw.b1p"}))
	// Re-ensuring must be harmless.
	require.NoError(t, sink.EnsureHeader([]string{"time", "gx.btckrw.b1p"}))
	require.NoError(t, sink.AppendRow([]string{"1693200000000", "100"}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "gx_spread"`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	multi := MultiSink{a, b}

	require.NoError(t, multi.EnsureHeader([]string{"time"}))
	require.NoError(t, multi.AppendRow([]string{"1"}))

	assert.Len(t, a.rows, 1)
	assert.Len(t, b.rows, 1)
}
