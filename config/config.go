// Package config loads and exposes immutable runtime configuration for the
// scoring engine: per-category point values, daily limits, monthly caps,
// empathy weights, and the transport endpoints the service depends on.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Category identifies one of the six interaction kinds the engine scores.
type Category string

const (
	CategoryPost     Category = "posts"
	CategoryLike     Category = "likes"
	CategoryComment  Category = "comments"
	CategoryReferral Category = "referrals"
	CategoryTip      Category = "tipping"
	CategoryCrypto   Category = "crypto"
)

// Categories lists every category in a stable order, used wherever the
// engine needs to iterate all six (cohort runs, normalized-score sums).
var Categories = []Category{
	CategoryPost, CategoryLike, CategoryComment,
	CategoryReferral, CategoryTip, CategoryCrypto,
}

// Config holds all engine configuration values. Constructed once at startup
// by Load and passed by pointer into every component; nothing re-reads the
// environment after boot.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis backs the Score Store ledger and post-refund sidecar.
	RedisURL string

	// Quality Scorer upstream.
	QualityModelURL     string
	QualityModelAPIKey  string
	QualityModelTimeout time.Duration
	QualityMaxRetries   int
	QualityRetryBase    time.Duration
	QualityDefaultScore int

	// Webhook dispatcher.
	WebhookTimeout    time.Duration
	WebhookMaxRetries int
	WebhookRetryBase  time.Duration
	WebhookRetryCap   time.Duration

	// Task queue.
	QueueWorkers          int
	QueueCapacity         int
	QueueVisibilityTimeout time.Duration

	// Cohort engine cadence, seconds.
	CohortIntervalSec int

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string

	// Point values, per category.
	PointValue map[Category]float64

	// Daily limits (interactions per 24h), per category.
	DailyLimit map[Category]int

	// Monthly point caps, per category.
	MonthlyCap map[Category]float64

	// Empathy weights applied to lifetime interaction counts.
	EmpathyWeight map[Category]float64

	// Streak weight applied to pre-reset consecutive_activity_days.
	StreakWeight float64

	// Fraction of non-qualified users selected as the empathy cohort.
	EmpathyFraction float64

	// Post-specific bonus scaling.
	QualityBonusMax     float64
	OriginalityBonusMax float64

	// Gibberish classifier thresholds.
	ConsonantRunThreshold     float64
	MeanTokenLengthThreshold  float64
	MLClassifierConfidence    float64

	// Content Index duplicate-rejection distance threshold.
	DuplicateDistanceThreshold float64
}

// Load reads configuration from environment variables and an optional .env
// file, falling back to compiled-in defaults.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("SCORING_GRACEFUL_TIMEOUT_SEC", 15)

	return &Config{
		Addr:            getEnv("SCORING_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		RedisURL: getEnv("REDIS_URL", "redis://redis:6379"),

		QualityModelURL:     getEnv("QUALITY_MODEL_URL", "http://localhost:9000/v1/rate"),
		QualityModelAPIKey:  getEnv("QUALITY_MODEL_API_KEY", ""),
		QualityModelTimeout: time.Duration(getEnvInt("QUALITY_MODEL_TIMEOUT_SEC", 60)) * time.Second,
		QualityMaxRetries:   getEnvInt("QUALITY_MAX_RETRIES", 3),
		QualityRetryBase:    time.Duration(getEnvInt("QUALITY_RETRY_BASE_SEC", 2)) * time.Second,
		QualityDefaultScore: getEnvInt("QUALITY_DEFAULT_SCORE", 5),

		WebhookTimeout:    time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SEC", 10)) * time.Second,
		WebhookMaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 5),
		WebhookRetryBase:  time.Duration(getEnvInt("WEBHOOK_RETRY_BASE_SEC", 1)) * time.Second,
		WebhookRetryCap:   time.Duration(getEnvInt("WEBHOOK_RETRY_CAP_SEC", 60)) * time.Second,

		QueueWorkers:          getEnvInt("QUEUE_WORKERS", 4),
		QueueCapacity:         getEnvInt("QUEUE_CAPACITY", 1024),
		QueueVisibilityTimeout: time.Duration(getEnvInt("QUEUE_VISIBILITY_TIMEOUT_SEC", 300)) * time.Second,

		CohortIntervalSec: getEnvInt("COHORT_INTERVAL_SEC", 86400),

		MaxBodyBytes: int64(getEnvInt("SCORING_MAX_BODY_BYTES", 4*1024*1024)),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		PointValue: map[Category]float64{
			CategoryPost:     getEnvFloat("POINT_VALUE_POST", 0.5),
			CategoryLike:     getEnvFloat("POINT_VALUE_LIKE", 0.1),
			CategoryComment:  getEnvFloat("POINT_VALUE_COMMENT", 0.1),
			CategoryReferral: getEnvFloat("POINT_VALUE_REFERRAL", 10),
			CategoryTip:      getEnvFloat("POINT_VALUE_TIP", 0.5),
			CategoryCrypto:   getEnvFloat("POINT_VALUE_CRYPTO", 0.5),
		},
		DailyLimit: map[Category]int{
			CategoryPost:     getEnvInt("DAILY_LIMIT_POST", 2),
			CategoryLike:     getEnvInt("DAILY_LIMIT_LIKE", 5),
			CategoryComment:  getEnvInt("DAILY_LIMIT_COMMENT", 5),
			CategoryReferral: getEnvInt("DAILY_LIMIT_REFERRAL", 1),
			CategoryTip:      getEnvInt("DAILY_LIMIT_TIP", 1),
			CategoryCrypto:   getEnvInt("DAILY_LIMIT_CRYPTO", 3),
		},
		MonthlyCap: map[Category]float64{
			CategoryPost:     getEnvFloat("MONTHLY_CAP_POST", 30),
			CategoryLike:     getEnvFloat("MONTHLY_CAP_LIKE", 15),
			CategoryComment:  getEnvFloat("MONTHLY_CAP_COMMENT", 15),
			CategoryReferral: getEnvFloat("MONTHLY_CAP_REFERRAL", 10),
			CategoryTip:      getEnvFloat("MONTHLY_CAP_TIP", 20),
			CategoryCrypto:   getEnvFloat("MONTHLY_CAP_CRYPTO", 20),
		},
		EmpathyWeight: map[Category]float64{
			CategoryPost:     getEnvFloat("EMPATHY_WEIGHT_POST", 0.25),
			CategoryLike:     getEnvFloat("EMPATHY_WEIGHT_LIKE", 0.08),
			CategoryComment:  getEnvFloat("EMPATHY_WEIGHT_COMMENT", 0.08),
			CategoryReferral: getEnvFloat("EMPATHY_WEIGHT_REFERRAL", 0.05),
			CategoryTip:      getEnvFloat("EMPATHY_WEIGHT_TIP", 0.05),
			CategoryCrypto:   getEnvFloat("EMPATHY_WEIGHT_CRYPTO", 0.09),
		},
		StreakWeight:    getEnvFloat("STREAK_WEIGHT", 0.5),
		EmpathyFraction: getEnvFloat("EMPATHY_FRACTION", 0.10),

		QualityBonusMax:     getEnvFloat("QUALITY_BONUS_MAX", 1.0),
		OriginalityBonusMax: getEnvFloat("ORIGINALITY_BONUS_MAX", 0.25),

		ConsonantRunThreshold:    getEnvFloat("GIBBERISH_CONSONANT_RUN_THRESHOLD", 0.85),
		MeanTokenLengthThreshold: getEnvFloat("GIBBERISH_MEAN_TOKEN_LENGTH_THRESHOLD", 20),
		MLClassifierConfidence:   getEnvFloat("GIBBERISH_ML_CONFIDENCE_THRESHOLD", 0.85),

		DuplicateDistanceThreshold: getEnvFloat("DUPLICATE_DISTANCE_THRESHOLD", 0.1),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MonthlyCapTotal sums the monthly caps across all six categories.
func (c *Config) MonthlyCapTotal() float64 {
	var total float64
	for _, cat := range Categories {
		total += c.MonthlyCap[cat]
	}
	return total
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
