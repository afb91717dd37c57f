package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ReconnectAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_reconnect_attempts_total",
		Help: "scheduled reconnect attempts per venue feed",
	},
	[]string{"venue"},
)

var AppliedUpdates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "book_applied_updates_total",
		Help: "frames that mutated a venue book",
	},
	[]string{"venue"},
)

var ProtocolErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_protocol_errors_total",
		Help: "malformed or unexpected frames, dropped",
	},
	[]string{"venue"},
)

var DiscardedDeltas = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "book_discarded_deltas",
		Help: "deltas dropped because the book was not ready",
	},
	[]string{"venue"},
)

var SpreadSignals = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "spread_signals_total",
		Help: "fee-adjusted profitable spreads observed",
	},
	[]string{"direction"},
)

var BestBid = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "book_best_bid",
		Help: "best bid price per venue book",
	},
	[]string{"venue"},
)

var BestAsk = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "book_best_ask",
		Help: "best ask price per venue book",
	},
	[]string{"venue"},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(ReconnectAttempts)
	reg.MustRegister(AppliedUpdates)
	reg.MustRegister(ProtocolErrors)
	reg.MustRegister(DiscardedDeltas)
	reg.MustRegister(SpreadSignals)
	reg.MustRegister(BestBid)
	reg.MustRegister(BestAsk)
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	log.Info().Str("addr", addr).Msg("prometheus server listening")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("prometheus server stopped")
	}
}
