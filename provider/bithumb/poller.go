package bithumb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

type restLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type restResponse struct {
	Status string `json:"status"`
	Data   struct {
		Bids []restLevel `json:"bids"`
		Asks []restLevel `json:"asks"`
	} `json:"data"`
}

// Poller is the snapshot-poll feed: a fixed-interval GET of the public
// orderbook endpoint, loaded wholesale into its own book. A failed or
// timed-out request leaves the previous snapshot in place — stale-but-valid
// beats an empty book.
type Poller struct {
	book     *domain.Book
	endpoint string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger
}

func NewPoller(book *domain.Book, endpoint string, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		book:     book,
		endpoint: endpoint,
		interval: interval,
		client:   &http.Client{Timeout: interval},
		log:      log.With().Str("venue", book.Venue).Logger(),
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.Warn().Err(err).Msg("orderbook poll failed, keeping previous snapshot")
			}
		}
	}
}

func (p *Poller) PollOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.TransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TransportErr(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body restResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ProtocolErr(err)
	}
	if body.Status != "0000" {
		return domain.ProtocolErr(fmt.Errorf("venue status %q", body.Status))
	}

	p.book.LoadSnapshot(toPriceLevels(body.Data.Bids), toPriceLevels(body.Data.Asks))
	return nil
}

func toPriceLevels(levels []restLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	for i, lvl := range levels {
		out[i] = domain.NewPriceLevel(lvl.Price, lvl.Quantity)
	}
	return out
}
