package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg := config.LoadConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"server addr", cfg.Server.Addr, ":5001"},
		{"pacing min", cfg.Broker.PacingMin, time.Second},
		{"pacing max", cfg.Broker.PacingMax, 2500 * time.Millisecond},
		{"session refresh", cfg.Broker.SessionRefresh, 25 * time.Minute},
		{"cooldown", cfg.Broker.Cooldown, 300 * time.Second},
		{"max attempts", cfg.Broker.MaxAttempts, 3},
		{"retry backoff", cfg.Broker.RetryBackoff, time.Second},
		{"alert display", cfg.Broker.AlertDisplay, 30 * time.Second},
		{"scrape timeout", cfg.Dispatcher.ScrapeTimeout, 45 * time.Second},
		{"recent refresh", cfg.Dispatcher.RecentRefresh, 15 * time.Second},
		{"refresh interval", cfg.Refresher.Interval, 3 * time.Second},
		{"expiry no ev", cfg.Refresher.ExpiryNoEV, 60 * time.Second},
		{"expiry positive ev", cfg.Refresher.ExpiryPositiveEV, 180 * time.Second},
		{"max age", cfg.Refresher.MaxAge, 5 * time.Minute},
		{"rescrape after", cfg.Refresher.RescrapeAfter, 60 * time.Second},
		{"rebroadcast every", cfg.Refresher.RebroadcastEvery, 20},
		{"store capacity", cfg.Store.Capacity, 50},
		{"alerts per minute", cfg.Ingress.AlertsPerMinute, 10},
		{"dedupe ttl", cfg.Ingress.DedupeTTL, 120 * time.Second},
		{"redis disabled", cfg.Redis.URL, ""},
		{"metrics enabled", cfg.Metrics.Enabled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, tt.got)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("BROKER_RATE_LIMIT_COOLDOWN", "120")
	t.Setenv("DISPATCH_SCRAPE_TIMEOUT", "30s")
	t.Setenv("STORE_CAPACITY", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("REFRESH_INTERVAL", "not-a-duration")

	cfg := config.LoadConfig()

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Expected addr :9000, got %s", cfg.Server.Addr)
	}
	if cfg.Broker.Cooldown != 120*time.Second {
		t.Errorf("Expected plain seconds to parse, got %v", cfg.Broker.Cooldown)
	}
	if cfg.Dispatcher.ScrapeTimeout != 30*time.Second {
		t.Errorf("Expected 30s scrape timeout, got %v", cfg.Dispatcher.ScrapeTimeout)
	}
	if cfg.Store.Capacity != 5 {
		t.Errorf("Expected capacity 5, got %d", cfg.Store.Capacity)
	}
	if len(cfg.Publisher.KafkaBrokers) != 2 || cfg.Publisher.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("Expected 2 trimmed brokers, got %v", cfg.Publisher.KafkaBrokers)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics to be disabled")
	}
	if cfg.Refresher.Interval != 3*time.Second {
		t.Errorf("Expected invalid duration to fall back to default, got %v", cfg.Refresher.Interval)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"pacing inverted", func(c *config.Config) { c.Broker.PacingMin = 5 * time.Second }},
		{"no attempts", func(c *config.Config) { c.Broker.MaxAttempts = 0 }},
		{"zero capacity", func(c *config.Config) { c.Store.Capacity = 0 }},
		{"telegram without chat", func(c *config.Config) { c.Notifier.TelegramToken = "abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			cfg := config.LoadConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
