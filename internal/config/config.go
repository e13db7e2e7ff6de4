package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig identifies the running service
type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis connection configuration; empty URL disables Redis
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// PostgresConfig holds the history database DSN; empty disables history
type PostgresConfig struct {
	DSN string
}

// BrokerConfig tunes the target-book broker
type BrokerConfig struct {
	PacingMin      time.Duration
	PacingMax      time.Duration
	SessionRefresh time.Duration
	Cooldown       time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	AlertDisplay   time.Duration
}

// DispatcherConfig tunes per-event processing
type DispatcherConfig struct {
	ScrapeTimeout time.Duration
	RecentRefresh time.Duration
}

// RefresherConfig tunes the background refresh loop
type RefresherConfig struct {
	Interval           time.Duration
	ExpiryNoEV         time.Duration
	ExpiryPositiveEV   time.Duration
	MaxAge             time.Duration
	RescrapeAfter      time.Duration
	RebroadcastEvery   int
	DismissedRetention time.Duration
}

// IngressConfig tunes alert admission
type IngressConfig struct {
	AlertsPerMinute int
	DedupeTTL       time.Duration
}

// StoreConfig sizes the event store
type StoreConfig struct {
	Capacity     int
	DumpInterval time.Duration
	DumpTTL      time.Duration
}

// PinnacleConfig points at the reference odds API
type PinnacleConfig struct {
	BaseURL string
	Origin  string
	Timeout time.Duration
}

// BetBCKConfig holds target book endpoints and credentials
type BetBCKConfig struct {
	LoginPageURL    string
	LoginActionURL  string
	MainPageURL     string
	SearchActionURL string
	Username        string
	Password        string
	Timeout         time.Duration
}

// NotifierConfig enables operator notifications
type NotifierConfig struct {
	SlackWebhookURL string
	TelegramToken   string
	TelegramChatID  int64
}

// PublisherConfig enables snapshot relays
type PublisherConfig struct {
	RedisStream    string
	RedisStreamLen int64
	KafkaBrokers   []string
	KafkaTopic     string
}

// MetricsConfig toggles the metrics endpoint
type MetricsConfig struct {
	Enabled bool
}

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Broker     BrokerConfig
	Dispatcher DispatcherConfig
	Refresher  RefresherConfig
	Ingress    IngressConfig
	Store      StoreConfig
	Pinnacle   PinnacleConfig
	BetBCK     BetBCKConfig
	Notifier   NotifierConfig
	Publisher  PublisherConfig
	Metrics    MetricsConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		App: AppConfig{
			ServiceName: getEnv("SERVICE_NAME", "ev-monitor"),
			Env:         getEnv("APP_ENV", "local"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":5001"),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Broker: BrokerConfig{
			PacingMin:      getEnvDuration("BROKER_PACING_MIN", 1000*time.Millisecond),
			PacingMax:      getEnvDuration("BROKER_PACING_MAX", 2500*time.Millisecond),
			SessionRefresh: getEnvDuration("BROKER_SESSION_REFRESH", 25*time.Minute),
			Cooldown:       getEnvDuration("BROKER_RATE_LIMIT_COOLDOWN", 300*time.Second),
			MaxAttempts:    getEnvInt("BROKER_MAX_ATTEMPTS", 3),
			RetryBackoff:   getEnvDuration("BROKER_RETRY_BACKOFF", 1*time.Second),
			AlertDisplay:   getEnvDuration("BROKER_ALERT_DISPLAY", 30*time.Second),
		},
		Dispatcher: DispatcherConfig{
			ScrapeTimeout: getEnvDuration("DISPATCH_SCRAPE_TIMEOUT", 45*time.Second),
			RecentRefresh: getEnvDuration("DISPATCH_RECENT_REFRESH", 15*time.Second),
		},
		Refresher: RefresherConfig{
			Interval:           getEnvDuration("REFRESH_INTERVAL", 3*time.Second),
			ExpiryNoEV:         getEnvDuration("REFRESH_EXPIRY_NO_EV", 60*time.Second),
			ExpiryPositiveEV:   getEnvDuration("REFRESH_EXPIRY_POSITIVE_EV", 180*time.Second),
			MaxAge:             getEnvDuration("REFRESH_MAX_AGE", 5*time.Minute),
			RescrapeAfter:      getEnvDuration("REFRESH_RESCRAPE_AFTER", 60*time.Second),
			RebroadcastEvery:   getEnvInt("REFRESH_REBROADCAST_EVERY", 20),
			DismissedRetention: getEnvDuration("REFRESH_DISMISSED_RETENTION", 30*time.Minute),
		},
		Ingress: IngressConfig{
			AlertsPerMinute: getEnvInt("ALERTS_PER_MINUTE", 10),
			DedupeTTL:       getEnvDuration("ALERT_DEDUPE_TTL", 120*time.Second),
		},
		Store: StoreConfig{
			Capacity:     getEnvInt("STORE_CAPACITY", 50),
			DumpInterval: getEnvDuration("STORE_DUMP_INTERVAL", 30*time.Second),
			DumpTTL:      getEnvDuration("STORE_DUMP_TTL", 10*time.Minute),
		},
		Pinnacle: PinnacleConfig{
			BaseURL: getEnv("PINNACLE_BASE_URL", "https://swordfish-production.up.railway.app/events"),
			Origin:  getEnv("PINNACLE_ORIGIN", "https://www.pinnacleoddsdropper.com"),
			Timeout: getEnvDuration("PINNACLE_TIMEOUT", 15*time.Second),
		},
		BetBCK: BetBCKConfig{
			LoginPageURL:    getEnv("BETBCK_LOGIN_PAGE_URL", "https://betbck.com/Qubic/Login.php"),
			LoginActionURL:  getEnv("BETBCK_LOGIN_ACTION_URL", "https://betbck.com/Qubic/LoginAction.php"),
			MainPageURL:     getEnv("BETBCK_MAIN_PAGE_URL", "https://betbck.com/Qubic/StraightLoginSportSelection.php"),
			SearchActionURL: getEnv("BETBCK_SEARCH_ACTION_URL", "https://betbck.com/Qubic/PlayerGameSelection.php"),
			Username:        getEnv("BETBCK_USERNAME", ""),
			Password:        getEnv("BETBCK_PASSWORD", ""),
			Timeout:         getEnvDuration("BETBCK_TIMEOUT", 15*time.Second),
		},
		Notifier: NotifierConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:  int64(getEnvInt("TELEGRAM_CHAT_ID", 0)),
		},
		Publisher: PublisherConfig{
			RedisStream:    getEnv("PUBLISH_REDIS_STREAM", ""),
			RedisStreamLen: int64(getEnvInt("PUBLISH_REDIS_STREAM_MAXLEN", 10000)),
			KafkaBrokers:   getEnvList("KAFKA_BROKERS", nil),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "ev.snapshots"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.Broker.PacingMin > c.Broker.PacingMax {
		return fmt.Errorf("BROKER_PACING_MIN (%s) exceeds BROKER_PACING_MAX (%s)", c.Broker.PacingMin, c.Broker.PacingMax)
	}
	if c.Broker.MaxAttempts < 1 {
		return fmt.Errorf("BROKER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Store.Capacity < 1 {
		return fmt.Errorf("STORE_CAPACITY must be at least 1")
	}
	if c.Refresher.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.Ingress.AlertsPerMinute < 1 {
		return fmt.Errorf("ALERTS_PER_MINUTE must be at least 1")
	}
	if c.Notifier.TelegramToken != "" && c.Notifier.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
