// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the advisor configuration: one YAML document over
// documented defaults, then environment overrides, then validation.
//
// Every modeling parameter (concurrency, cache lifetimes, gap thresholds,
// scorer curves and weights) lives here and is passed down explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/enrich"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/history"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/telemetry"
)

// Environment variables read by Load.
const (
	EnvConfig      = "EVADVISOR_CONFIG"
	EnvCacheDir    = "EVADVISOR_CACHE_DIR"
	EnvMaxInFlight = "EVADVISOR_MAX_IN_FLIGHT"
	EnvLogLevel    = "EVADVISOR_LOG_LEVEL"
	EnvInfluxURL   = "INFLUXDB_URL"
	EnvInfluxToken = "INFLUXDB_TOKEN"
	EnvInfluxOrg   = "INFLUXDB_ORG"
	EnvInfluxBkt   = "INFLUXDB_BUCKET"
)

// Config is the whole advisor configuration.
type Config struct {
	Log       LogConfig        `yaml:"log" json:"log"`
	Cache     CacheConfig      `yaml:"cache" json:"cache"`
	Enrich    enrich.Config    `yaml:"enrich" json:"enrich"`
	Analysis  analysis.Config  `yaml:"analysis" json:"analysis"`
	Server    ServerConfig     `yaml:"server" json:"server"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	History   history.Config   `yaml:"history" json:"history"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir" json:"dir"`
	JSON  bool   `yaml:"json" json:"json"`
}

// CacheConfig configures the cache store and its persistent tier.
type CacheConfig struct {
	// Dir holds the badger database. Ignored when InMemory.
	Dir      string          `yaml:"dir" json:"dir" validate:"required_if=InMemory false"`
	InMemory bool            `yaml:"in_memory" json:"in_memory"`
	TTL      cache.TTLPolicy `yaml:"ttl" json:"ttl"`

	// GCInterval is the badger value-log GC period. Zero disables it.
	GCInterval time.Duration `yaml:"gc_interval" json:"gc_interval" validate:"gte=0"`
}

// ServerConfig configures `evadvisor serve`.
type ServerConfig struct {
	Addr           string        `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gt=0"`
}

// Default returns the documented defaults.
//
//	log:       info, text to stderr, no file
//	cache:     ~/.evadvisor/cache, raw-api 24h, reference 7d, GC every 10m
//	enrich:    8 in flight, 30s per fetch, 500 m amenities, 800 m access
//	analysis:  4 areas at once, equal overall weights, 2 km / 500 gap
//	           thresholds on a 1 km grid, top 10
//	server:    :8080, 30s read, 5m write, 2m per request, 8 MiB bodies
//	telemetry: prometheus metrics, no traces
//	history:   disabled
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			Dir:        "~/.evadvisor/cache",
			TTL:        cache.DefaultTTLPolicy(),
			GCInterval: 10 * time.Minute,
		},
		Enrich:   enrich.DefaultConfig(),
		Analysis: analysis.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			RequestTimeout: 2 * time.Minute,
			MaxBodyBytes:   8 << 20,
		},
		Telemetry: telemetry.DefaultConfig(),
		History: history.Config{
			URL:    "http://localhost:8086",
			Org:    "evadvisor",
			Bucket: "ev-scores",
		},
	}
}

// Load reads path over Default, applies environment overrides, and
// validates the result.
//
// Description:
//
//	An empty path falls back to $EVADVISOR_CONFIG. A path that does not
//	exist yields the defaults. Unknown YAML keys are rejected so typos
//	do not silently fall back to defaults.
//
// Outputs:
//
//	Config - The effective configuration, also on validation failure.
//	error - Read or parse failure, bad environment value, or a
//	        *ValidationError.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Cache.Dir = ExpandPath(cfg.Cache.Dir)
	cfg.Log.Dir = ExpandPath(cfg.Log.Dir)
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv(EnvMaxInFlight); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxInFlight, err)
		}
		cfg.Enrich.MaxInFlight = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvInfluxURL); v != "" {
		cfg.History.URL = v
	}
	if v := os.Getenv(EnvInfluxToken); v != "" {
		cfg.History.Token = v
	}
	if v := os.Getenv(EnvInfluxOrg); v != "" {
		cfg.History.Org = v
	}
	if v := os.Getenv(EnvInfluxBkt); v != "" {
		cfg.History.Bucket = v
	}
	return nil
}

// Write saves cfg as YAML, creating parent directories.
func Write(path string, cfg Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// =============================================================================
// Validation
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	check := func(name string, err error) {
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	check("analysis.weights", c.Analysis.Weights.Validate())
	check("analysis.climate", c.Analysis.Climate.Validate())
	check("analysis.infrastructure", c.Analysis.Infrastructure.Validate())
	check("analysis.equity", c.Analysis.Equity.Validate())
	check("analysis.gaps", c.Analysis.Gaps.Validate())

	if c.Cache.TTL.RawAPI <= 0 || c.Cache.TTL.Reference <= 0 {
		problems = append(problems, "cache.ttl: raw_api and reference must be positive")
	}
	if c.Analysis.Convenience.AmenityRadiusM > c.Enrich.AmenityRadiusM {
		problems = append(problems, "analysis.convenience.amenity_radius_m exceeds enrich.amenity_radius_m")
	}
	if c.Analysis.Convenience.AccessRadiusM > c.Enrich.AccessRadiusM {
		problems = append(problems, "analysis.convenience.access_radius_m exceeds enrich.access_radius_m")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}
