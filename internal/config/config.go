// Package config loads process configuration from the environment, the
// same shape as the teacher's internal/config: a .env file is loaded if
// present, then typed getters populate a Config struct with sane defaults,
// followed by a Validate pass that enforces the spec's fatal-configuration
// invariants.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/indiatrader/core/internal/domain"
)

// Config holds application configuration (spec §6).
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Persistence
	DataDir string

	// Broker credentials (opaque adapter boundary)
	BrokerAPIKey    string
	BrokerAPISecret string
	BrokerBaseURL   string
	BrokerStreamURL string

	// Signal pipeline
	FeatureSetVersion string
	Timeframes        []string
	TimeframeWeights  map[string]float64
	EnsembleMethod    domain.EnsembleMethod
	LabelThresholds   LabelThresholds
	LevelStyle        string
	LevelConstants    map[string]LevelConstants
	LabelHorizonBars  int // open question #1: horizon for label generation, pinned here

	// Market-data cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Snapshotter
	SnapshotInterval  time.Duration
	SessionEndTime    string // "HH:MM" local time
	SnapshotRetention time.Duration

	// Performance tracker
	TrackerWindowDays    int
	MinObservations      int
	TrackerRederiveEvery time.Duration

	// Order router
	PaperSlippageBps float64
	MaxOrderQuantity float64
	MaxPositionValue float64
	StartingCash     float64
	Symbols          []string

	// Logging
	LogLevel string
}

// LabelThresholds overrides the defaults in §4.3.
type LabelThresholds struct {
	StrongBuyProb  float64
	BuyProb        float64
	StrongSellProb float64
	SellProb       float64
	MinConfidence  float64 // open question #3: pinned to 0.60 (documented below)
}

// LevelConstants are the ATR multipliers for one trading style.
type LevelConstants struct {
	KSL float64
	KT1 float64
	KT2 float64
}

// Load reads configuration from environment variables, validates it, and
// returns a fatal error (exit code 64, spec §6) on any violation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("PORT", 8080),
		DevMode: getEnvAsBool("DEV_MODE", false),

		DataDir: getEnv("DATA_DIR", "./data"),

		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET", ""),
		BrokerBaseURL:   getEnv("BROKER_BASE_URL", ""),
		BrokerStreamURL: getEnv("BROKER_STREAM_URL", ""),

		FeatureSetVersion: getEnv("FEATURE_SET_VERSION", "v1"),
		Timeframes:        getEnvAsList("TIMEFRAMES", []string{"5m", "1h", "1d"}),
		EnsembleMethod:    domain.EnsembleMethod(getEnv("ENSEMBLE_METHOD", string(domain.EnsembleWeightedAverage))),
		LevelStyle:        getEnv("LEVEL_STYLE", "swing"),
		// Open question: the source defaults min_confidence to two different
		// values (0.55 and 0.70) across files. We pin 0.60 below — the
		// threshold that also gates the STRONG_BUY/STRONG_SELL labels in
		// §4.3 — rather than re-derive it per call.
		LabelHorizonBars: getEnvAsInt("LABEL_HORIZON_BARS", 5),

		CacheTTL:      getEnvAsDuration("CACHE_TTL", 10*time.Second),
		CacheCapacity: getEnvAsInt("CACHE_CAPACITY", 2000),

		SnapshotInterval:  getEnvAsDuration("SNAPSHOT_INTERVAL", 15*time.Minute),
		SessionEndTime:    getEnv("SESSION_END_TIME", "15:30"),
		SnapshotRetention: getEnvAsDuration("SNAPSHOT_RETENTION", 365*24*time.Hour),

		TrackerWindowDays:    getEnvAsInt("TRACKER_WINDOW_DAYS", 90),
		MinObservations:      getEnvAsInt("MIN_OBSERVATIONS", 20),
		TrackerRederiveEvery: getEnvAsDuration("TRACKER_REDERIVE_EVERY", 1*time.Hour),

		PaperSlippageBps: getEnvAsFloat("PAPER_SLIPPAGE_BPS", 5),
		MaxOrderQuantity: getEnvAsFloat("MAX_ORDER_QUANTITY", 10000),
		MaxPositionValue: getEnvAsFloat("MAX_POSITION_VALUE", 5_000_000),
		StartingCash:     getEnvAsFloat("STARTING_CASH", 1_000_000),
		Symbols:          getEnvAsList("SYMBOLS", []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK"}),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.TimeframeWeights = defaultTimeframeWeights(cfg.Timeframes)
	cfg.LabelThresholds = LabelThresholds{
		StrongBuyProb:  getEnvAsFloat("LABEL_STRONG_BUY_PROB", 0.70),
		BuyProb:        getEnvAsFloat("LABEL_BUY_PROB", 0.55),
		StrongSellProb: getEnvAsFloat("LABEL_STRONG_SELL_PROB", 0.30),
		SellProb:       getEnvAsFloat("LABEL_SELL_PROB", 0.45),
		MinConfidence:  getEnvAsFloat("LABEL_MIN_CONFIDENCE", 0.60),
	}
	cfg.LevelConstants = map[string]LevelConstants{
		"intraday": {KSL: 1.0, KT1: 1.5, KT2: 2.5},
		"swing":    {KSL: 1.5, KT1: 2.5, KT2: 4.0},
		"position": {KSL: 2.5, KT1: 4.0, KT2: 6.0},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fatal-configuration-error invariants named in §3
// and §6: timeframe weights must sum to 1, the ensemble method must be
// recognised, and the selected level style must exist.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	var sum float64
	for _, w := range c.TimeframeWeights {
		if w < 0 {
			return fmt.Errorf("timeframe weight must be >= 0, got %v", w)
		}
		sum += w
	}
	if len(c.TimeframeWeights) > 0 && (sum < 1-1e-9 || sum > 1+1e-9) {
		return fmt.Errorf("timeframe weights must sum to 1, got %v", sum)
	}

	switch c.EnsembleMethod {
	case domain.EnsembleWeightedAverage, domain.EnsembleMajorityVote, domain.EnsembleStacking:
	default:
		return fmt.Errorf("unknown ensemble_method: %s", c.EnsembleMethod)
	}

	if _, ok := c.LevelConstants[c.LevelStyle]; !ok {
		return fmt.Errorf("unknown level_style: %s", c.LevelStyle)
	}

	return nil
}

// defaultTimeframeWeights emphasises the last (primary, typically daily)
// timeframe, per spec §4.3 "typically emphasising the dashboard's primary
// timeframe".
func defaultTimeframeWeights(timeframes []string) map[string]float64 {
	weights := make(map[string]float64, len(timeframes))
	if len(timeframes) == 0 {
		return weights
	}
	if len(timeframes) == 1 {
		weights[timeframes[0]] = 1.0
		return weights
	}
	primaryWeight := 0.5
	remaining := 1 - primaryWeight
	each := remaining / float64(len(timeframes)-1)
	for i, tf := range timeframes {
		if i == len(timeframes)-1 {
			weights[tf] = primaryWeight
		} else {
			weights[tf] = each
		}
	}
	return weights
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
