package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Book is a single venue's replica of the order book for one trading pair.
//
// Invariants held after every operation: bids strictly descending by price,
// asks strictly ascending, no duplicate price within a side. The book is
// written only by its owning feed adapter; the recorder and the spread
// evaluator read it from their own goroutines, so every accessor takes the
// mutex and the read accessors return copies.
type Book struct {
	Venue string
	Pair  string

	mu         sync.RWMutex
	bids       []PriceLevel
	asks       []PriceLevel
	ready      bool
	lastUpdate time.Time
	discarded  uint64
}

func NewBook(venue, pair string) *Book {
	return &Book{Venue: venue, Pair: pair}
}

// LoadSnapshot replaces both sides wholesale and marks the book ready.
// Input order does not matter; each side is sorted into book order and
// zero-quantity rows are dropped.
func (b *Book) LoadSnapshot(bids, asks []PriceLevel) {
	bids = normalizeSide(bids, bidAhead)
	asks = normalizeSide(asks, askAhead)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = bids
	b.asks = asks
	b.ready = true
	b.lastUpdate = time.Now()
}

// ReplaceAll has the same effect as LoadSnapshot. Full-replace feeds re-send
// the whole book on every message instead of once per connection.
func (b *Book) ReplaceAll(bids, asks []PriceLevel) {
	b.LoadSnapshot(bids, asks)
}

// ApplyDelta inserts, updates or removes a single level. A zero quantity
// removes the level at that price (no-op if absent). Deltas received before
// the first full load are dropped and counted.
func (b *Book) ApplyDelta(side Side, price, quantity decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		b.discarded++
		return ErrNotReady
	}

	levels := b.bids
	ahead := bidAhead
	if side == Ask {
		levels = b.asks
		ahead = askAhead
	}

	if quantity.IsZero() {
		levels = removeLevel(levels, price)
	} else {
		levels = mergeLevel(levels, PriceLevel{Price: price, Quantity: quantity}, ahead)
	}

	if side == Ask {
		b.asks = levels
	} else {
		b.bids = levels
	}
	b.lastUpdate = time.Now()
	return nil
}

// MarkStale flips the book back to not-ready. Called by the session on every
// disconnect so that readers never see a partially updated book across a
// reconnect.
func (b *Book) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
}

func (b *Book) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// BestBid returns the highest bid. ok is false on an empty side; a thin book
// is legitimate, not an error.
func (b *Book) BestBid() (PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready || len(b.bids) == 0 {
		return PriceLevel{}, false
	}
	return b.bids[0], true
}

func (b *Book) BestAsk() (PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready || len(b.asks) == 0 {
		return PriceLevel{}, false
	}
	return b.asks[0], true
}

// TopN copies up to n levels per side. full is false when either side holds
// fewer than n levels; the shorter slices are returned as-is, never padded.
func (b *Book) TopN(n int) (bids, asks []PriceLevel, full bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = copyLevels(b.bids, n)
	asks = copyLevels(b.asks, n)
	full = len(bids) == n && len(asks) == n
	return bids, asks, full
}

// Discarded reports how many deltas were dropped because the book was not
// ready at the time.
func (b *Book) Discarded() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.discarded
}

func (b *Book) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// bidAhead and askAhead report whether price a sorts before price b on the
// respective side.
func bidAhead(a, b decimal.Decimal) bool { return a.GreaterThan(b) }
func askAhead(a, b decimal.Decimal) bool { return a.LessThan(b) }

// mergeLevel keeps the side sorted without a trailing sort pass: exact match
// updates in place, a price beyond either end is prepended/appended, and a
// price between two adjacent levels is spliced in.
func mergeLevel(levels []PriceLevel, lvl PriceLevel, ahead func(a, b decimal.Decimal) bool) []PriceLevel {
	if len(levels) == 0 {
		return append(levels, lvl)
	}
	if ahead(lvl.Price, levels[0].Price) {
		return append([]PriceLevel{lvl}, levels...)
	}
	if ahead(levels[len(levels)-1].Price, lvl.Price) {
		return append(levels, lvl)
	}
	for i := range levels {
		if levels[i].Price.Equal(lvl.Price) {
			levels[i].Quantity = lvl.Quantity
			return levels
		}
		if i < len(levels)-1 && ahead(levels[i].Price, lvl.Price) && ahead(lvl.Price, levels[i+1].Price) {
			levels = append(levels, PriceLevel{})
			copy(levels[i+2:], levels[i+1:])
			levels[i+1] = lvl
			return levels
		}
	}
	return levels
}

func removeLevel(levels []PriceLevel, price decimal.Decimal) []PriceLevel {
	for i := range levels {
		if levels[i].Price.Equal(price) {
			return append(levels[:i], levels[i+1:]...)
		}
	}
	return levels
}

// normalizeSide sorts a snapshot side into book order, dropping zero
// quantities and duplicate prices (the later row wins).
func normalizeSide(levels []PriceLevel, ahead func(a, b decimal.Decimal) bool) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Quantity.IsZero() {
			continue
		}
		dup := false
		for i := range out {
			if out[i].Price.Equal(lvl.Price) {
				out[i].Quantity = lvl.Quantity
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return ahead(out[i].Price, out[j].Price)
	})
	return out
}

func copyLevels(levels []PriceLevel, n int) []PriceLevel {
	if n > len(levels) {
		n = len(levels)
	}
	out := make([]PriceLevel, n)
	copy(out, levels[:n])
	return out
}
