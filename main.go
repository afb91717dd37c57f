package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/spooky-finn/go-spread-watcher/config"
	"github.com/spooky-finn/go-spread-watcher/domain"
	"github.com/spooky-finn/go-spread-watcher/infrastructure/kafka"
	promclient "github.com/spooky-finn/go-spread-watcher/infrastructure/prometheus"
	"github.com/spooky-finn/go-spread-watcher/provider"
	"github.com/spooky-finn/go-spread-watcher/provider/bithumb"
	"github.com/spooky-finn/go-spread-watcher/provider/gopax"
	"github.com/spooky-finn/go-spread-watcher/recorder"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pair := compactPair(cfg.Pair)
	gxBook := domain.NewBook("gx", pair)
	btxBook := domain.NewBook("btx", pair)
	btxRestBook := domain.NewBook("btx", pair)

	transport := provider.NewWSTransport(seconds(cfg.Session.HandshakeTimeoutSeconds))

	gxSession := provider.NewSession(provider.SessionConfig{
		Venue:            "gx",
		Endpoint:         cfg.Gopax.WSEndpoint,
		Transport:        transport,
		Adapter:          gopax.New(gxBook, cfg.Gopax.Symbol, logger),
		ReconnectDelay:   seconds(cfg.Session.ReconnectDelaySeconds),
		KeepAliveTimeout: seconds(cfg.Session.KeepAliveTimeoutSeconds),
		Logger:           logger,
	})

	// Bithumb has no keepalive contract on the public stream; a dead
	// connection surfaces as a read error instead.
	btxSession := provider.NewSession(provider.SessionConfig{
		Venue:          "btx",
		Endpoint:       cfg.Bithumb.WSEndpoint,
		Transport:      transport,
		Adapter:        bithumb.New(btxBook, cfg.Bithumb.Symbol, logger),
		ReconnectDelay: seconds(cfg.Session.ReconnectDelaySeconds),
		Logger:         logger,
	})

	poller := bithumb.NewPoller(
		btxRestBook,
		cfg.Bithumb.RESTEndpoint,
		seconds(cfg.Session.RESTPollIntervalSeconds),
		logger,
	)

	var db *sql.DB
	if cfg.Sampling.SQLitePath != "" {
		db, err = recorder.OpenSQLite(cfg.Sampling.SQLitePath)
		if err != nil {
			logger.Error().Err(err).Msg("sqlite sink unavailable, recording to csv only")
			db = nil
		} else {
			defer db.Close()
		}
	}
	makeSink := func(name string) recorder.Sink {
		csvSink := recorder.NewCSVSink(filepath.Join(cfg.Sampling.Dir, name+".csv"))
		if db == nil {
			return csvSink
		}
		return recorder.MultiSink{csvSink, recorder.NewSQLiteSink(db, name)}
	}

	sampleInterval := seconds(cfg.Sampling.IntervalSeconds)
	recorders := []*recorder.Recorder{
		recorder.New(gxBook, makeSink("gx_spread"), cfg.Sampling.Depth, sampleInterval, logger),
		recorder.New(btxBook, makeSink("btx_spread"), cfg.Sampling.Depth, sampleInterval, logger),
		recorder.New(btxRestBook, makeSink("btx_rest_orderbook"), cfg.Sampling.Depth, sampleInterval, logger),
	}

	evaluator := domain.NewSpreadEvaluator(
		gxBook, btxBook,
		domain.VenueFees{Bid: config.Fee(cfg.Gopax.FeeBid), Ask: config.Fee(cfg.Gopax.FeeAsk)},
		domain.VenueFees{Bid: config.Fee(cfg.Bithumb.FeeBid), Ask: config.Fee(cfg.Bithumb.FeeAsk)},
	)

	var producer *kafka.Producer
	if len(cfg.Signals.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Signals.Brokers, cfg.Signals.Topic)
		defer producer.Close()
	}
	emit := func(sample domain.SpreadSample) {
		logger.Info().
			Str("direction", string(sample.Direction)).
			Str("spread", sample.RawSpread.String()).
			Str("fee", sample.FeeThreshold.String()).
			Msg("spread signal")
		promclient.SpreadSignals.WithLabelValues(string(sample.Direction)).Inc()
		if producer != nil {
			if err := producer.Publish(ctx, sample); err != nil {
				logger.Warn().Err(err).Msg("signal publish failed")
			}
		}
	}

	go promclient.StartPromClientServer(cfg.Metrics.Addr)

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	run(gxSession.Run)
	run(btxSession.Run)
	run(poller.Run)
	for _, rec := range recorders {
		run(rec.Run)
	}
	run(func(ctx context.Context) {
		evaluator.Run(ctx, seconds(cfg.Session.SpreadIntervalSeconds), emit)
	})

	logger.Info().Str("pair", cfg.Pair).Msg("spread watcher running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	wg.Wait()
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zlog.Logger
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return logger
}

// compactPair turns "BTC-KRW" into the "btckrw" used in column names.
func compactPair(pair string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(pair))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
