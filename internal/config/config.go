package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	KafkaBrokers string
	KafkaTopic   string

	// Backend is the default transport: "http" or "browser".
	Backend         string
	SiteFile        string
	Headless        bool
	StepTimeout     time.Duration
	FinalizeTimeout time.Duration
	ProductDelay    time.Duration
	TypingDelay     time.Duration

	ChallengeTimeout  time.Duration
	ChallengeInterval time.Duration
	StrictChallenge   bool

	LogCapacity       int
	WorkerConcurrency int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("45s") or a bare number of milliseconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func Load() Config {
	appEnv := getenv("APP_ENV", "development")
	cfg := Config{
		AppEnv:        appEnv,
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       getenv("DATA_DIR", "./data"),

		SupabaseURL:        os.Getenv("NEXT_PUBLIC_SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "order-artifacts"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getenv("KAFKA_TOPIC", "order-automation"),

		Backend:  strings.ToLower(getenv("ORDER_BACKEND", "http")),
		SiteFile: getenv("SITE_FILE", "site.yaml"),
		// Visible browser in development for manual inspection.
		Headless:        getenvBool("BROWSER_HEADLESS", appEnv == "production"),
		StepTimeout:     getenvDuration("STEP_TIMEOUT", 30*time.Second),
		FinalizeTimeout: getenvDuration("FINALIZE_TIMEOUT", 60*time.Second),
		ProductDelay:    getenvDuration("PRODUCT_DELAY", 1500*time.Millisecond),
		TypingDelay:     getenvDuration("TYPING_DELAY", 80*time.Millisecond),

		ChallengeTimeout:  getenvDuration("CHALLENGE_TIMEOUT", 30*time.Second),
		ChallengeInterval: getenvDuration("CHALLENGE_INTERVAL", time.Second),
		StrictChallenge:   getenvBool("STRICT_CHALLENGE", false),

		LogCapacity:       getenvInt("LOG_CAPACITY", 1000),
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 4),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.Backend != "http" && cfg.Backend != "browser" {
		panic(fmt.Errorf("ORDER_BACKEND must be \"http\" or \"browser\", got %q", cfg.Backend))
	}
	return cfg
}
