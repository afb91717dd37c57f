// Package gopax speaks the Gopax public websocket protocol. Gopax sends the
// full book once in the SubscribeToOrderBook response and only deltas
// (OrderBookEvent) afterwards, plus a primus ping that must be answered on
// the same connection or the venue silently stops sending.
package gopax

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

const (
	msgSubscribe      = "SubscribeToOrderBook"
	msgOrderBookEvent = "OrderBookEvent"
	pingPrefix        = "primus::ping::"
	pongPrefix        = "primus::pong::"
)

type levelEntry struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

type orderBookPayload struct {
	Bid []levelEntry `json:"bid"`
	Ask []levelEntry `json:"ask"`
}

type eventMessage struct {
	ID    string           `json:"i"`
	Name  string           `json:"n"`
	Order orderBookPayload `json:"o"`
}

type subscribeRequest struct {
	ID     string `json:"i"`
	Name   string `json:"n"`
	Params struct {
		TradingPairName string `json:"tradingPairName"`
	} `json:"o"`
}

type Adapter struct {
	book *domain.Book
	pair string
	log  zerolog.Logger
}

func New(book *domain.Book, pair string, log zerolog.Logger) *Adapter {
	return &Adapter{
		book: book,
		pair: pair,
		log:  log.With().Str("venue", book.Venue).Logger(),
	}
}

func (a *Adapter) Venue() string {
	return a.book.Venue
}

func (a *Adapter) SubscribeFrames() ([][]byte, error) {
	req := subscribeRequest{ID: uuid.NewString(), Name: msgSubscribe}
	req.Params.TradingPairName = a.pair

	frame, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (a *Adapter) OnMessage(raw []byte, reply domain.ReplyFunc) (domain.Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return domain.NoOp, nil
	}

	// Keepalive frames are bare JSON strings, not objects.
	if trimmed[0] == '"' {
		return a.handleKeepalive(trimmed, reply)
	}

	var msg eventMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return domain.Failed, domain.ProtocolErr(err)
	}

	switch msg.Name {
	case msgSubscribe:
		a.book.LoadSnapshot(toLevels(msg.Order.Bid), toLevels(msg.Order.Ask))
		a.log.Info().
			Int("bids", len(msg.Order.Bid)).
			Int("asks", len(msg.Order.Ask)).
			Msg("orderbook snapshot loaded")
		return domain.Applied, nil

	case msgOrderBookEvent:
		return a.applyDeltas(&msg.Order)

	case "":
		return domain.NoOp, nil
	}

	a.log.Debug().Str("name", msg.Name).Msg("ignoring frame")
	return domain.NoOp, nil
}

// applyDeltas walks bid entries before ask entries so a batch always lands
// in the same order. Entries that hit a not-ready book are dropped one by
// one (each bumps the book's discard counter) rather than aborting the
// batch.
func (a *Adapter) applyDeltas(payload *orderBookPayload) (domain.Result, error) {
	applied := false
	var firstErr error
	for _, entry := range payload.Bid {
		if err := a.book.ApplyDelta(domain.Bid, entry.Price, entry.Volume); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied = true
	}
	for _, entry := range payload.Ask {
		if err := a.book.ApplyDelta(domain.Ask, entry.Price, entry.Volume); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied = true
	}
	if applied {
		return domain.Applied, nil
	}
	return domain.NoOp, firstErr
}

func (a *Adapter) handleKeepalive(frame []byte, reply domain.ReplyFunc) (domain.Result, error) {
	var text string
	if err := json.Unmarshal(frame, &text); err != nil {
		return domain.Failed, domain.ProtocolErr(err)
	}
	if !strings.HasPrefix(text, pingPrefix) {
		return domain.NoOp, nil
	}

	token := text[len(pingPrefix):]
	pong, err := json.Marshal(pongPrefix + token)
	if err != nil {
		return domain.Failed, err
	}
	if err := reply(pong); err != nil {
		return domain.Failed, domain.TransportErr(fmt.Errorf("pong: %w", err))
	}
	return domain.NoOp, nil
}

func (a *Adapter) Reset() {
	a.book.MarkStale()
}

func toLevels(entries []levelEntry) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, len(entries))
	for i, entry := range entries {
		levels[i] = domain.NewPriceLevel(entry.Price, entry.Volume)
	}
	return levels
}
