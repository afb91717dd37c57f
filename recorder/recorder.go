// Package recorder samples the top levels of a book onto a durable
// append-only sink on a fixed period, regardless of how often the book
// itself updates.
package recorder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/spooky-finn/go-spread-watcher/domain"
	promclient "github.com/spooky-finn/go-spread-watcher/infrastructure/prometheus"
)

// Sink is the durable append-only collaborator. Both methods must be safe
// to call repeatedly without corrupting prior content.
type Sink interface {
	EnsureHeader(columns []string) error
	AppendRow(row []string) error
}

type Recorder struct {
	book     *domain.Book
	sink     Sink
	depth    int
	interval time.Duration
	log      zerolog.Logger
}

func New(book *domain.Book, sink Sink, depth int, interval time.Duration, log zerolog.Logger) *Recorder {
	return &Recorder{
		book:     book,
		sink:     sink,
		depth:    depth,
		interval: interval,
		log:      log.With().Str("venue", book.Venue).Logger(),
	}
}

// Header columns follow the venue.pair naming of the downstream analysis
// files: time, b1p..bNq, then a1p..aNq.
func (r *Recorder) Header() []string {
	columns := []string{"time"}
	for i := 1; i <= r.depth; i++ {
		columns = append(columns,
			fmt.Sprintf("%s.%s.b%dp", r.book.Venue, r.book.Pair, i),
			fmt.Sprintf("%s.%s.b%dq", r.book.Venue, r.book.Pair, i),
		)
	}
	for i := 1; i <= r.depth; i++ {
		columns = append(columns,
			fmt.Sprintf("%s.%s.a%dp", r.book.Venue, r.book.Pair, i),
			fmt.Sprintf("%s.%s.a%dq", r.book.Venue, r.book.Pair, i),
		)
	}
	return columns
}

// Run writes the header once, then appends one row per tick. A sink failure
// skips that cycle and retries on the next; it never stops the recorder.
// After cancellation no further rows are written.
func (r *Recorder) Run(ctx context.Context) {
	if err := r.sink.EnsureHeader(r.Header()); err != nil {
		r.log.Error().Err(err).Msg("sink header write failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			row, ok := r.Sample(now)
			if !ok {
				continue
			}
			if err := r.sink.AppendRow(row); err != nil {
				r.log.Warn().Err(err).Msg("sink append failed, skipping cycle")
			}
		}
	}
}

// Sample builds one row from the current book. Nothing is emitted while the
// book is not ready or its top is empty, and a shallow book yields empty
// cells past its depth, never fabricated levels.
func (r *Recorder) Sample(now time.Time) ([]string, bool) {
	if !r.book.Ready() {
		return nil, false
	}

	bids, asks, full := r.book.TopN(r.depth)
	if len(bids) == 0 || len(asks) == 0 {
		return nil, false
	}
	if !full {
		r.log.Debug().
			Int("bids", len(bids)).
			Int("asks", len(asks)).
			Int("depth", r.depth).
			Msg("book shallower than requested depth")
	}

	promclient.BestBid.WithLabelValues(r.book.Venue).Set(bids[0].Price.InexactFloat64())
	promclient.BestAsk.WithLabelValues(r.book.Venue).Set(asks[0].Price.InexactFloat64())
	promclient.DiscardedDeltas.WithLabelValues(r.book.Venue).Set(float64(r.book.Discarded()))

	row := []string{strconv.FormatInt(now.UnixMilli(), 10)}
	row = appendSide(row, bids, r.depth)
	row = appendSide(row, asks, r.depth)
	return row, true
}

func appendSide(row []string, levels []domain.PriceLevel, depth int) []string {
	for i := 0; i < depth; i++ {
		if i < len(levels) {
			row = append(row, levels[i].Price.String(), levels[i].Quantity.String())
		} else {
			row = append(row, "", "")
		}
	}
	return row
}
