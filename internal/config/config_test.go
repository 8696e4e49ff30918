package config

import "testing"

func validConfig() Config {
	return Config{
		Environment:              "local",
		LogLevel:                 "info",
		DatabaseURL:              "sqlite:signalwatch.db",
		DBMinConns:               1,
		DBMaxConns:               8,
		DedupLookbackDays:        14,
		NearDupJaccardThreshold:  0.85,
		NearDupSameHostThreshold: 0.75,
		BatchConcurrency:         4,
		FreshnessWindowDays:      60,
		TrendMinVolume:           10,
		TrendBaselineMin:         25,
		TrendMinDeltaPercent:     25,
		ExplainRequestsPerMinute: 30,
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"missing database url":     func(c *Config) { c.DatabaseURL = " " },
		"min conns above max":      func(c *Config) { c.DBMinConns = 9 },
		"jaccard above one":        func(c *Config) { c.NearDupJaccardThreshold = 1.2 },
		"same host below zero":     func(c *Config) { c.NearDupSameHostThreshold = -0.1 },
		"zero lookback":            func(c *Config) { c.DedupLookbackDays = 0 },
		"zero freshness":           func(c *Config) { c.FreshnessWindowDays = 0 },
		"freshness below 60d":      func(c *Config) { c.FreshnessWindowDays = 30 },
		"zero batch concurrency":   func(c *Config) { c.BatchConcurrency = 0 },
		"zero explain rate":        func(c *Config) { c.ExplainRequestsPerMinute = 0 },
		"negative delta threshold": func(c *Config) { c.TrendMinDeltaPercent = -1 },
	}

	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/signalwatch")
	t.Setenv("FRESHNESS_WINDOW_DAYS", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FreshnessWindowDays != 75 {
		t.Fatalf("unexpected freshness window: %d", cfg.FreshnessWindowDays)
	}
	if cfg.NearDupJaccardThreshold != 0.85 {
		t.Fatalf("unexpected default jaccard threshold: %f", cfg.NearDupJaccardThreshold)
	}
}
