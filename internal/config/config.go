package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jsykora/bioindex/internal/match"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Server    ServerConfig
	Search    SearchConfig
	Policy    match.Policy
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the face HNSW index (optional, if empty index is rebuilt on startup)
}

type ExtractorConfig struct {
	URL string // signature extraction service, defaults to http://localhost:8000
}

type ServerConfig struct {
	Addr           string   // listen address, defaults to :8080
	APIKey         string   // shared key clients exchange for a session
	SessionSecret  string   // HMAC key for session cookies
	SessionTTL     time.Duration
	AllowedOrigins []string // CORS whitelist; localhost is always allowed
}

type SearchConfig struct {
	EmbeddingDim int           // defaults to 512
	Timeout      time.Duration // per-request search budget, defaults to 5s
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Load() *Config {
	var policy match.Policy
	if err := yaml.Unmarshal(policyYAML, &policy); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Extractor: ExtractorConfig{
			URL: envString("EXTRACTOR_URL", "http://localhost:8000"),
		},
		Server: ServerConfig{
			Addr:           envString("SERVER_ADDR", ":8080"),
			APIKey:         os.Getenv("API_KEY"),
			SessionSecret:  os.Getenv("SESSION_SECRET"),
			SessionTTL:     envDuration("SESSION_TTL", 24*time.Hour),
			AllowedOrigins: envList("ALLOWED_ORIGINS"),
		},
		Search: SearchConfig{
			EmbeddingDim: envInt("EMBEDDING_DIM", 512),
			Timeout:      envDuration("SEARCH_TIMEOUT", 5*time.Second),
		},
		Policy: policy,
	}
}
