// Package config
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	DockerBinary string `validate:"required"`
	DfBinary     string `validate:"required"`

	Verbose        bool
	ReportFailures bool
	StepTimeout    time.Duration `validate:"gte=0"`
	MeasurePath    string        `validate:"required"`

	HistoryDB string

	Interval time.Duration `validate:"gte=0"`
	DailyAt  string        `validate:"omitempty,datetime=15:04"`
}

// ValidationError maps an env variable name to a readable message.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

var envNames = map[string]string{
	"LogLevel":     "LOG_LEVEL",
	"LogFormat":    "LOG_FORMAT",
	"DockerBinary": "RECLAIM_DOCKER_BIN",
	"DfBinary":     "RECLAIM_DF_BIN",
	"StepTimeout":  "RECLAIM_STEP_TIMEOUT",
	"MeasurePath":  "RECLAIM_MEASURE_PATH",
	"Interval":     "RECLAIM_INTERVAL",
	"DailyAt":      "RECLAIM_DAILY_AT",
}

var validate = validator.New()

func Load() (*Config, error) {
	godotenv.Load()

	errs := ValidationError{}

	cfg := &Config{
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DockerBinary:   getEnv("RECLAIM_DOCKER_BIN", "docker"),
		DfBinary:       getEnv("RECLAIM_DF_BIN", "df"),
		Verbose:        parseBool("RECLAIM_VERBOSE", errs),
		ReportFailures: parseBool("RECLAIM_REPORT_FAILURES", errs),
		StepTimeout:    parseDuration("RECLAIM_STEP_TIMEOUT", errs),
		MeasurePath:    getEnv("RECLAIM_MEASURE_PATH", "/"),
		HistoryDB:      os.Getenv("RECLAIM_HISTORY_DB"),
		Interval:       parseDuration("RECLAIM_INTERVAL", errs),
		DailyAt:        strings.TrimSpace(os.Getenv("RECLAIM_DAILY_AT")),
	}

	for field, msg := range cfg.Validate() {
		if _, exists := errs[field]; !exists {
			errs[field] = msg
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}

// Validate returns nil when the config is usable.
func (c *Config) Validate() ValidationError {
	errs := ValidationError{}

	if err := validate.Struct(c); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				name := envNames[fieldError.Field()]
				switch fieldError.Tag() {
				case "required":
					errs[name] = "must not be empty"
				case "oneof":
					errs[name] = fmt.Sprintf("must be one of: %s", fieldError.Param())
				case "gte":
					errs[name] = "must not be negative"
				case "datetime":
					errs[name] = "must be a HH:MM time"
				default:
					errs[name] = "is invalid"
				}
			}
		}
	}

	if c.Interval > 0 && c.DailyAt != "" {
		errs["RECLAIM_INTERVAL"] = "cannot be combined with RECLAIM_DAILY_AT"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c *Config) Scheduled() bool {
	return c.Interval > 0 || c.DailyAt != ""
}

func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

// DailyTime splits DailyAt into hour and minute. It must only be called
// on a validated config.
func (c *Config) DailyTime() (hour, minute int) {
	t, err := time.Parse("15:04", c.DailyAt)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, errs ValidationError) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		errs[key] = "must be a boolean"
		return false
	}
	return v
}

func parseDuration(key string, errs ValidationError) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || raw == "0" {
		return 0
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		errs[key] = "must be a duration such as 30s or 6h"
		return 0
	}
	return d
}
