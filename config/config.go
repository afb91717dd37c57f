package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type VenueConfig struct {
	WSEndpoint   string `yaml:"ws_endpoint"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	Symbol       string `yaml:"symbol"`
	FeeBid       string `yaml:"fee_bid"`
	FeeAsk       string `yaml:"fee_ask"`
}

type Config struct {
	Pair string `yaml:"pair"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Sampling struct {
		IntervalSeconds int    `yaml:"interval_seconds"`
		Depth           int    `yaml:"depth"`
		Dir             string `yaml:"dir"`
		SQLitePath      string `yaml:"sqlite_path"`
	} `yaml:"sampling"`

	Session struct {
		ReconnectDelaySeconds   int `yaml:"reconnect_delay_seconds"`
		HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
		KeepAliveTimeoutSeconds int `yaml:"keepalive_timeout_seconds"`
		SpreadIntervalSeconds   int `yaml:"spread_interval_seconds"`
		RESTPollIntervalSeconds int `yaml:"rest_poll_interval_seconds"`
	} `yaml:"session"`

	Gopax   VenueConfig `yaml:"gopax"`
	Bithumb VenueConfig `yaml:"bithumb"`

	Signals struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"signals"`
}

func defaultConfig() Config {
	var c Config
	c.Pair = "BTC-KRW"
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	c.Metrics.Addr = ":8080"
	c.Sampling.IntervalSeconds = 1
	c.Sampling.Depth = 5
	c.Sampling.Dir = "./csv"
	c.Session.ReconnectDelaySeconds = 1
	c.Session.HandshakeTimeoutSeconds = 5
	c.Session.KeepAliveTimeoutSeconds = 60
	c.Session.SpreadIntervalSeconds = 1
	c.Session.RESTPollIntervalSeconds = 1
	c.Gopax.WSEndpoint = "wss://wsapi.gopax.co.kr"
	c.Gopax.Symbol = "BTC-KRW"
	c.Gopax.FeeBid = "0.0005"
	c.Gopax.FeeAsk = "0.0005"
	c.Bithumb.WSEndpoint = "wss://pubwss.bithumb.com/pub/ws"
	c.Bithumb.RESTEndpoint = "https://api.bithumb.com/public/orderbook/BTC_KRW"
	c.Bithumb.Symbol = "BTC_KRW"
	c.Bithumb.FeeBid = "0.0004"
	c.Bithumb.FeeAsk = "0.0004"
	c.Signals.Topic = "spread-signals"
	return c
}

// Load reads defaults, then the YAML file named by SPREAD_WATCHER_CONFIG
// (if any), then environment overrides. Configuration is static: nothing
// here is runtime-mutable.
func Load() (Config, error) {
	c := defaultConfig()

	if path := os.Getenv("SPREAD_WATCHER_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("SPREAD_WATCHER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SPREAD_WATCHER_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("SPREAD_WATCHER_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("SPREAD_WATCHER_CSV_DIR"); v != "" {
		c.Sampling.Dir = v
	}
	if v := os.Getenv("SPREAD_WATCHER_SQLITE_PATH"); v != "" {
		c.Sampling.SQLitePath = v
	}
	if v := os.Getenv("SPREAD_WATCHER_KAFKA_BROKERS"); v != "" {
		c.Signals.Brokers = splitCSV(v)
	}
	if v := os.Getenv("SPREAD_WATCHER_KAFKA_TOPIC"); v != "" {
		c.Signals.Topic = v
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Pair == "" {
		return fmt.Errorf("pair must be set")
	}
	if !strings.HasPrefix(c.Gopax.WSEndpoint, "ws") {
		return fmt.Errorf("invalid gopax ws endpoint: %s", c.Gopax.WSEndpoint)
	}
	if !strings.HasPrefix(c.Bithumb.WSEndpoint, "ws") {
		return fmt.Errorf("invalid bithumb ws endpoint: %s", c.Bithumb.WSEndpoint)
	}
	if c.Sampling.Depth <= 0 {
		return fmt.Errorf("sampling depth must be positive")
	}
	if c.Sampling.IntervalSeconds <= 0 {
		return fmt.Errorf("sampling interval must be positive")
	}
	if c.Session.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	for _, fee := range []string{c.Gopax.FeeBid, c.Gopax.FeeAsk, c.Bithumb.FeeBid, c.Bithumb.FeeAsk} {
		if _, err := decimal.NewFromString(fee); err != nil {
			return fmt.Errorf("invalid fee rate %q: %w", fee, err)
		}
	}
	return nil
}

// Fee parses an already validated fee rate.
func Fee(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
