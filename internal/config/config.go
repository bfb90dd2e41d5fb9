package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for failtriage.
type Config struct {
	TestOps   TestOpsConfig
	Cluster   ClusterConfig
	Knowledge KnowledgeConfig
	Analysis  AnalysisConfig
	Redis     RedisConfig
	Server    ServerConfig
}

type TestOpsConfig struct {
	Endpoint          string
	Token             string
	ProjectID         int64
	RequestTimeout    time.Duration
	PageSize          int
	MaxPages          int
	DetailConcurrency int
}

type ClusterConfig struct {
	Enabled bool
	// Cosine distance cut for the dendrogram, inclusive.
	Threshold float64
}

type KnowledgeConfig struct {
	Enabled     bool
	Backend     string // postgres or yaml
	DatabaseURL string
	FilePath    string
	MinScore    float64
	MaxResults  int
	Push        bool
}

type AnalysisConfig struct {
	Enabled     bool
	BaseURL     string
	FlowID      string
	APIKey      string
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	Concurrency int
	Push        bool
	CacheTTL    time.Duration
}

type RedisConfig struct {
	URL string
}

type ServerConfig struct {
	Port        int
	AuthKeyHash string
}

var validBackends = map[string]bool{
	"postgres": true,
	"yaml":     true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		TestOps: TestOpsConfig{
			Endpoint:          os.Getenv("FAILTRIAGE_ENDPOINT"),
			Token:             os.Getenv("FAILTRIAGE_TOKEN"),
			ProjectID:         envInt64("FAILTRIAGE_PROJECT_ID", 0),
			RequestTimeout:    envDurationSecs("FAILTRIAGE_REQUEST_TIMEOUT_SECS", 30*time.Second),
			PageSize:          envInt("FAILTRIAGE_PAGE_SIZE", 100),
			MaxPages:          envInt("FAILTRIAGE_MAX_PAGES", 50),
			DetailConcurrency: envInt("FAILTRIAGE_DETAIL_CONCURRENCY", 8),
		},
		Cluster: ClusterConfig{
			Enabled:   envBool("FAILTRIAGE_CLUSTERING_ENABLED", true),
			Threshold: envFloat("FAILTRIAGE_CLUSTERING_THRESHOLD", 0.4),
		},
		Knowledge: KnowledgeConfig{
			Enabled:     envBool("FAILTRIAGE_KB_ENABLED", true),
			Backend:     envString("FAILTRIAGE_KB_BACKEND", "yaml"),
			DatabaseURL: os.Getenv("FAILTRIAGE_KB_DATABASE_URL"),
			FilePath:    os.Getenv("FAILTRIAGE_KB_FILE"),
			MinScore:    envFloat("FAILTRIAGE_KB_MIN_SCORE", 0.15),
			MaxResults:  envInt("FAILTRIAGE_KB_MAX_RESULTS", 5),
			Push:        envBool("FAILTRIAGE_KB_PUSH", false),
		},
		Analysis: AnalysisConfig{
			Enabled:     envBool("FAILTRIAGE_ANALYSIS_ENABLED", false),
			BaseURL:     os.Getenv("FAILTRIAGE_ANALYSIS_URL"),
			FlowID:      os.Getenv("FAILTRIAGE_ANALYSIS_FLOW_ID"),
			APIKey:      os.Getenv("FAILTRIAGE_ANALYSIS_API_KEY"),
			Timeout:     envDurationSecs("FAILTRIAGE_ANALYSIS_TIMEOUT_SECS", 60*time.Second),
			MaxRetries:  envInt("FAILTRIAGE_ANALYSIS_MAX_RETRIES", 3),
			BaseDelay:   envDuration("FAILTRIAGE_ANALYSIS_BASE_DELAY", time.Second),
			Concurrency: envInt("FAILTRIAGE_ANALYSIS_CONCURRENCY", 3),
			Push:        envBool("FAILTRIAGE_ANALYSIS_PUSH", false),
			CacheTTL:    envDuration("FAILTRIAGE_ANALYSIS_CACHE_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL: os.Getenv("FAILTRIAGE_REDIS_URL"),
		},
		Server: ServerConfig{
			Port:        envInt("FAILTRIAGE_PORT", 8080),
			AuthKeyHash: os.Getenv("FAILTRIAGE_AUTH_KEY_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TestOps.Endpoint == "" {
		return fmt.Errorf("FAILTRIAGE_ENDPOINT is required")
	}
	if !strings.HasPrefix(c.TestOps.Endpoint, "http://") && !strings.HasPrefix(c.TestOps.Endpoint, "https://") {
		return fmt.Errorf("FAILTRIAGE_ENDPOINT must start with http:// or https://, got %q", c.TestOps.Endpoint)
	}
	if c.TestOps.Token == "" {
		return fmt.Errorf("FAILTRIAGE_TOKEN is required")
	}
	if c.TestOps.ProjectID <= 0 {
		return fmt.Errorf("FAILTRIAGE_PROJECT_ID is required")
	}
	if c.TestOps.PageSize <= 0 || c.TestOps.MaxPages <= 0 {
		return fmt.Errorf("FAILTRIAGE_PAGE_SIZE and FAILTRIAGE_MAX_PAGES must be positive")
	}

	if c.Cluster.Threshold < 0 || c.Cluster.Threshold > 1 {
		return fmt.Errorf("FAILTRIAGE_CLUSTERING_THRESHOLD must be in [0,1], got %v", c.Cluster.Threshold)
	}

	if c.Knowledge.Enabled {
		if !validBackends[c.Knowledge.Backend] {
			return fmt.Errorf("FAILTRIAGE_KB_BACKEND must be postgres or yaml, got %q", c.Knowledge.Backend)
		}
		if c.Knowledge.Backend == "postgres" && c.Knowledge.DatabaseURL == "" {
			return fmt.Errorf("FAILTRIAGE_KB_DATABASE_URL is required when FAILTRIAGE_KB_BACKEND is postgres")
		}
		if c.Knowledge.Backend == "yaml" && c.Knowledge.FilePath == "" {
			return fmt.Errorf("FAILTRIAGE_KB_FILE is required when FAILTRIAGE_KB_BACKEND is yaml")
		}
	}

	if c.Analysis.Enabled {
		if c.Analysis.BaseURL == "" || c.Analysis.FlowID == "" {
			return fmt.Errorf("FAILTRIAGE_ANALYSIS_URL and FAILTRIAGE_ANALYSIS_FLOW_ID are required when analysis is enabled")
		}
		if c.Analysis.MaxRetries < 0 {
			return fmt.Errorf("FAILTRIAGE_ANALYSIS_MAX_RETRIES must be >= 0")
		}
		if c.Analysis.Concurrency <= 0 {
			return fmt.Errorf("FAILTRIAGE_ANALYSIS_CONCURRENCY must be positive")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
