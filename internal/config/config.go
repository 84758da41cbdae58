package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Curve reference-data API.
	CurvesAPIURL    string
	CurvesEnabled   bool
	CurvesTimeout   time.Duration
	CurvesCacheSize int
	CurvesCacheTTL  time.Duration

	// DatabaseURL enables the Postgres sink when set.
	DatabaseURL string

	// InsertPivots turns on pivot insertion for every convert request.
	InsertPivots bool
}

// Load reads configuration from environment variables, applying defaults
// where unset. Variables from an optional .env file (or ENV_FILE) are
// loaded first and never override the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(sharedcfg.EnvOrDefault("ENV_FILE", ".env"))

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	curvesTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("CURVES_TIMEOUT", "5s"))
	if err != nil || curvesTimeout <= 0 {
		return nil, errors.New("invalid CURVES_TIMEOUT")
	}

	curvesCacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("CURVES_CACHE_TTL", "1h"))
	if err != nil || curvesCacheTTL < 0 {
		return nil, errors.New("invalid CURVES_CACHE_TTL")
	}

	insertPivots, err := parseBool("INSERT_PIVOTS", false)
	if err != nil {
		return nil, err
	}

	curvesURL := os.Getenv("CURVES_API_URL")
	curvesEnabled, err := parseBool("CURVES_ENABLED", curvesURL != "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "hydrometry-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "hydrometry-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hydrometry-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CurvesAPIURL:    curvesURL,
		CurvesEnabled:   curvesEnabled,
		CurvesTimeout:   curvesTimeout,
		CurvesCacheSize: parseCacheSize(),
		CurvesCacheTTL:  curvesCacheTTL,

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		InsertPivots: insertPivots,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.CurvesEnabled && cfg.CurvesAPIURL == "" {
		return nil, errors.New("CURVES_ENABLED is true but CURVES_API_URL is not set")
	}

	return cfg, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseCacheSize() int {
	if s := os.Getenv("CURVES_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
