package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// minFreshnessWindowDays keeps the freshness window wide enough for the
// 30d-vs-prior-30d trend comparison.
const minFreshnessWindowDays = 60

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SW_DB_MAX_CONNS" default:"8"`

	DedupLookbackDays        int     `envconfig:"DEDUP_LOOKBACK_DAYS" default:"14"`
	NearDupJaccardThreshold  float64 `envconfig:"NEAR_DUP_JACCARD_THRESHOLD" default:"0.85"`
	NearDupSameHostThreshold float64 `envconfig:"NEAR_DUP_SAME_HOST_THRESHOLD" default:"0.75"`
	BatchConcurrency         int     `envconfig:"BATCH_CONCURRENCY" default:"4"`
	ScoringWeightsFile       string  `envconfig:"SCORING_WEIGHTS_FILE" default:""`

	FreshnessWindowDays  int     `envconfig:"FRESHNESS_WINDOW_DAYS" default:"60"`
	TrendMinVolume       int     `envconfig:"TREND_MIN_VOLUME" default:"10"`
	TrendBaselineMin     int     `envconfig:"TREND_BASELINE_MIN" default:"25"`
	TrendMinDeltaPercent float64 `envconfig:"TREND_MIN_DELTA_PERCENT" default:"25"`

	ExplainProvider          string `envconfig:"EXPLAIN_PROVIDER" default:"local"`
	ExplainEndpoint          string `envconfig:"EXPLAIN_ENDPOINT" default:"http://127.0.0.1:8845/v1"`
	ExplainModel             string `envconfig:"EXPLAIN_MODEL" default:"qwen2.5-7b-instruct"`
	ExplainRequestsPerMinute int    `envconfig:"EXPLAIN_REQUESTS_PER_MINUTE" default:"30"`

	MetricsTextfile string `envconfig:"METRICS_TEXTFILE" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SW_DB_MIN_CONNS (%d) cannot exceed SW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DedupLookbackDays < 1 {
		return fmt.Errorf("DEDUP_LOOKBACK_DAYS must be >= 1")
	}
	if !inUnitInterval(c.NearDupJaccardThreshold) {
		return fmt.Errorf("NEAR_DUP_JACCARD_THRESHOLD must be within [0,1]")
	}
	if !inUnitInterval(c.NearDupSameHostThreshold) {
		return fmt.Errorf("NEAR_DUP_SAME_HOST_THRESHOLD must be within [0,1]")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be >= 1")
	}
	if c.FreshnessWindowDays < minFreshnessWindowDays {
		return fmt.Errorf("FRESHNESS_WINDOW_DAYS must be >= %d", minFreshnessWindowDays)
	}
	if c.TrendMinVolume < 1 {
		return fmt.Errorf("TREND_MIN_VOLUME must be >= 1")
	}
	if c.TrendBaselineMin < 1 {
		return fmt.Errorf("TREND_BASELINE_MIN must be >= 1")
	}
	if c.TrendMinDeltaPercent < 0 {
		return fmt.Errorf("TREND_MIN_DELTA_PERCENT must be >= 0")
	}
	if c.ExplainRequestsPerMinute < 1 {
		return fmt.Errorf("EXPLAIN_REQUESTS_PER_MINUTE must be >= 1")
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
