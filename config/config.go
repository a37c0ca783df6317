package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins string
	OperatorToken  string
	BroadcasterID  string

	SemanticMatchMode    string // http | chat | off
	SemanticMatchURL     string
	SemanticMatchToken   string
	SemanticMatchModel   string
	SemanticMatchTimeout time.Duration
	SemanticMatchRate    float64
	SemanticMatchBurst   int

	RevealDelay        time.Duration
	PollInterval       time.Duration
	ValidationCacheTTL time.Duration
	CachePruneEvery    time.Duration

	Stopwords    []string // nil keeps the built-in list
	MinTokenLen  int
	PluralMinLen int

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		OperatorToken:  getEnv("OPERATOR_TOKEN", ""),
		BroadcasterID:  getEnv("BROADCASTER_ID", "default"),

		SemanticMatchMode:    strings.ToLower(getEnv("SEMANTIC_MATCH_MODE", "off")),
		SemanticMatchURL:     getEnv("SEMANTIC_MATCH_URL", ""),
		SemanticMatchToken:   getEnv("SEMANTIC_MATCH_TOKEN", ""),
		SemanticMatchModel:   getEnv("SEMANTIC_MATCH_MODEL", "gpt-4o-mini"),
		SemanticMatchTimeout: getDuration("SEMANTIC_MATCH_TIMEOUT", 5*time.Second),
		SemanticMatchRate:    getFloat("SEMANTIC_MATCH_RATE", 5),
		SemanticMatchBurst:   getInt("SEMANTIC_MATCH_BURST", 10),

		RevealDelay:        getDuration("REVEAL_DELAY", 10*time.Second),
		PollInterval:       getDuration("POLL_INTERVAL", 60*time.Second),
		ValidationCacheTTL: getDuration("VALIDATION_CACHE_TTL", 24*time.Hour),
		CachePruneEvery:    getDuration("VALIDATION_CACHE_PRUNE_EVERY", 10*time.Minute),

		Stopwords:    getList("MATCH_STOPWORDS"),
		MinTokenLen:  getInt("MATCH_MIN_TOKEN_LEN", 3),
		PluralMinLen: getInt("MATCH_PLURAL_MIN_LEN", 4),

		R2AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2Bucket:          getEnv("R2_BUCKET_NAME", ""),
		CDNBaseURL:        getEnv("CDN_BASE_URL", ""),
	}
}

// R2Enabled reports whether sponsor logo uploads can be served.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.WithField("module", "config").Warnf("invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("module", "config").Warnf("invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.WithField("module", "config").Warnf("invalid %s=%q, using %g", key, raw, fallback)
		return fallback
	}
	return f
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
