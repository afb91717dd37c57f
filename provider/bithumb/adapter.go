// Package bithumb speaks both Bithumb public market-data feeds: the
// websocket orderbooksnapshot stream, which re-sends the full top of book on
// every update, and the REST orderbook endpoint for timer-driven polling.
package bithumb

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

const msgOrderBookSnapshot = "orderbooksnapshot"

type streamMessage struct {
	Type    string `json:"type"`
	Content struct {
		Symbol string     `json:"symbol"`
		Bids   [][]string `json:"bids"`
		Asks   [][]string `json:"asks"`
	} `json:"content"`
}

type subscribeRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Adapter consumes the replace-stream feed. Every frame maps to ReplaceAll;
// there is no delta state to track, which makes this feed the most tolerant
// of lost messages.
type Adapter struct {
	book   *domain.Book
	symbol string
	log    zerolog.Logger
}

func New(book *domain.Book, symbol string, log zerolog.Logger) *Adapter {
	return &Adapter{
		book:   book,
		symbol: symbol,
		log:    log.With().Str("venue", book.Venue).Logger(),
	}
}

func (a *Adapter) Venue() string {
	return a.book.Venue
}

func (a *Adapter) SubscribeFrames() ([][]byte, error) {
	frame, err := json.Marshal(subscribeRequest{
		Type:    msgOrderBookSnapshot,
		Symbols: []string{a.symbol},
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (a *Adapter) OnMessage(raw []byte, _ domain.ReplyFunc) (domain.Result, error) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Failed, domain.ProtocolErr(err)
	}

	// Connection greetings and subscription acks carry no type field.
	if msg.Type != msgOrderBookSnapshot {
		return domain.NoOp, nil
	}

	// Bithumb sends bids worst-first (low to high); book order wants the
	// best bid up front.
	bids, err := domain.ParsePriceLevels(reverse(msg.Content.Bids))
	if err != nil {
		return domain.Failed, domain.ProtocolErr(err)
	}
	asks, err := domain.ParsePriceLevels(msg.Content.Asks)
	if err != nil {
		return domain.Failed, domain.ProtocolErr(err)
	}

	a.book.ReplaceAll(bids, asks)
	return domain.Applied, nil
}

func (a *Adapter) Reset() {
	a.book.MarkStale()
}

func reverse(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row
	}
	return out
}
