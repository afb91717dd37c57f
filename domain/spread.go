package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	BidSide Direction = "bid"
	AskSide Direction = "ask"
)

// SpreadSample is one observed fee-adjusted profitable spread. Ephemeral:
// emitted and forgotten.
type SpreadSample struct {
	Time         time.Time
	Direction    Direction
	RawSpread    decimal.Decimal
	FeeThreshold decimal.Decimal
}

// VenueFees holds a venue's signed fee rates per side. A negative rate
// models a rebate.
type VenueFees struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// SpreadEvaluator compares the best prices of two venues' books. The
// scenario is a holding spread: rest an order on venue A, take on venue B.
type SpreadEvaluator struct {
	a, b       *Book
	feeA, feeB VenueFees
}

func NewSpreadEvaluator(a, b *Book, feeA, feeB VenueFees) *SpreadEvaluator {
	return &SpreadEvaluator{a: a, b: b, feeA: feeA, feeB: feeB}
}

// Evaluate computes both directions once. Both books must be ready with a
// non-empty top of book, otherwise nothing is emitted. The fee threshold is
// ceiling-rounded so the fee assumption always errs against the trade.
func (e *SpreadEvaluator) Evaluate(now time.Time) []SpreadSample {
	aBid, okA := e.a.BestBid()
	bBid, okB := e.b.BestBid()
	aAsk, okC := e.a.BestAsk()
	bAsk, okD := e.b.BestAsk()
	if !okA || !okB || !okC || !okD {
		return nil
	}

	var samples []SpreadSample

	bidSpread := aBid.Price.Sub(bBid.Price)
	bidFee := feeThreshold(aBid.Price, e.feeA.Bid, bBid.Price, e.feeB.Bid)
	if bidSpread.GreaterThan(bidFee) {
		samples = append(samples, SpreadSample{
			Time:         now,
			Direction:    BidSide,
			RawSpread:    bidSpread,
			FeeThreshold: bidFee,
		})
	}

	askSpread := aAsk.Price.Sub(bAsk.Price)
	askFee := feeThreshold(aAsk.Price, e.feeA.Ask, bAsk.Price, e.feeB.Ask)
	if askSpread.GreaterThan(askFee) {
		samples = append(samples, SpreadSample{
			Time:         now,
			Direction:    AskSide,
			RawSpread:    askSpread,
			FeeThreshold: askFee,
		})
	}

	return samples
}

// Run evaluates on a fixed period until ctx is cancelled, handing every
// sample to emit.
func (e *SpreadEvaluator) Run(ctx context.Context, interval time.Duration, emit func(SpreadSample)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, sample := range e.Evaluate(now) {
				emit(sample)
			}
		}
	}
}

// feeThreshold = ceil(-priceA*feeA + priceB*feeB).
func feeThreshold(priceA, feeA, priceB, feeB decimal.Decimal) decimal.Decimal {
	return priceA.Neg().Mul(feeA).Add(priceB.Mul(feeB)).Ceil()
}
