package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the compliance gate.
type Config struct {
	Port string

	// Database
	DBPath string

	// Strategy rule files
	RulesDir   string
	Strategies []string

	// Approval workflow
	AutoApprove           bool
	RequireManualApproval bool

	// Built-in risk evaluator
	RiskMaxPositionFraction float64
	RiskMaxTotalExposure    float64
	RiskMaxDrawdown         float64
	RiskMinCashFraction     float64

	// Paper broker
	BrokerFeeRate float64

	// Synthetic signal feed for local development
	UseMockFeed bool

	// Auth
	JWTSecret string

	// API rate limiting (requests per second per client)
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		DBPath:                  getEnv("DB_PATH", "./data/gate.db"),
		RulesDir:                getEnv("RULES_DIR", "./rules"),
		Strategies:              splitAndTrim(getEnv("STRATEGIES", "default")),
		AutoApprove:             getEnv("AUTO_APPROVE", "false") == "true",
		RequireManualApproval:   getEnv("REQUIRE_MANUAL_APPROVAL", "true") == "true",
		RiskMaxPositionFraction: getEnvFloat("RISK_MAX_POSITION_FRACTION", 0.20),
		RiskMaxTotalExposure:    getEnvFloat("RISK_MAX_TOTAL_EXPOSURE", 0.80),
		RiskMaxDrawdown:         getEnvFloat("RISK_MAX_DRAWDOWN", 0.15),
		RiskMinCashFraction:     getEnvFloat("RISK_MIN_CASH_FRACTION", 0),
		BrokerFeeRate:           getEnvFloat("BROKER_FEE_RATE", 0.0004),
		UseMockFeed:             getEnv("USE_MOCK_FEED", "false") == "true",
		JWTSecret:               getEnv("JWT_SECRET", "dev-secret"),
		RateLimitRPS:            getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:          getEnvInt("RATE_LIMIT_BURST", 40),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
