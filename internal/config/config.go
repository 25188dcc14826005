// Package config assembles runtime configuration from an optional YAML file
// overridden by environment variables. No hidden globals: everything the
// components need is passed down from the loaded struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds shared runtime configuration for the API and hunter services.
type Config struct {
	Env         string `yaml:"env"`
	HTTPPort    string `yaml:"http_port"`
	MetricsAddr string `yaml:"metrics_addr"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PostgresDSN   string `yaml:"postgres_dsn"`

	RetentionTTL      time.Duration `yaml:"retention_ttl"`
	Concurrency       int           `yaml:"concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`

	UrgencyWindow time.Duration `yaml:"urgency_window"`
	UrgencyBonus  float64       `yaml:"urgency_bonus"`

	MinRewardUSD     float64 `yaml:"min_reward_usd"`
	MinAnalysisScore float64 `yaml:"min_analysis_score"`

	BloomSize   uint64 `yaml:"bloom_size"`
	BloomHashes int    `yaml:"bloom_hashes"`

	MaxRetries     int           `yaml:"max_retries"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	RateLimitCapacity int     `yaml:"rate_limit_capacity"`
	RateLimitRefill   float64 `yaml:"rate_limit_refill_per_sec"`

	GitHubToken string   `yaml:"github_token"`
	GitHubOrgs  []string `yaml:"github_orgs"`
	GitHubLabel string   `yaml:"github_label"`

	BoardSource string `yaml:"board_source"`
	BoardURL    string `yaml:"board_url"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	ArtifactDir string `yaml:"artifact_dir"`
}

// Load reads the YAML file named by HUNTER_CONFIG (if any), applies env-var
// overrides, and fills defaults suitable for local development.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("HUNTER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Env:               "dev",
		HTTPPort:          "8080",
		MetricsAddr:       ":9090",
		RedisAddr:         "localhost:6379",
		RetentionTTL:      30 * 24 * time.Hour,
		Concurrency:       4,
		PollInterval:      10 * time.Second,
		DiscoveryInterval: 15 * time.Minute,
		UrgencyWindow:     48 * time.Hour,
		UrgencyBonus:      100,
		MinRewardUSD:      10,
		MinAnalysisScore:  0.4,
		BloomSize:         2_000_000,
		BloomHashes:       7,
		MaxRetries:        3,
		BackoffInitial:    2 * time.Second,
		BackoffMax:        time.Minute,
		RateLimitCapacity: 50,
		RateLimitRefill:   20,
		GitHubLabel:       "bounty",
		S3Region:          "us-east-1",
		ArtifactDir:       "./artifacts",
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RetentionTTL = getEnvDuration("RETENTION_TTL", cfg.RetentionTTL)
	cfg.Concurrency = getEnvInt("PIPELINE_CONCURRENCY", cfg.Concurrency)
	cfg.PollInterval = getEnvDuration("PIPELINE_POLL_INTERVAL", cfg.PollInterval)
	cfg.DiscoveryInterval = getEnvDuration("DISCOVERY_INTERVAL", cfg.DiscoveryInterval)
	cfg.UrgencyWindow = getEnvDuration("URGENCY_WINDOW", cfg.UrgencyWindow)
	cfg.UrgencyBonus = getEnvFloat("URGENCY_BONUS", cfg.UrgencyBonus)
	cfg.MinRewardUSD = getEnvFloat("MIN_REWARD_USD", cfg.MinRewardUSD)
	cfg.MinAnalysisScore = getEnvFloat("MIN_ANALYSIS_SCORE", cfg.MinAnalysisScore)
	cfg.BloomSize = uint64(getEnvInt("BLOOM_SIZE", int(cfg.BloomSize)))
	cfg.BloomHashes = getEnvInt("BLOOM_HASHES", cfg.BloomHashes)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.BackoffInitial = getEnvDuration("BACKOFF_INITIAL", cfg.BackoffInitial)
	cfg.BackoffMax = getEnvDuration("BACKOFF_MAX", cfg.BackoffMax)
	cfg.RateLimitCapacity = getEnvInt("RATE_LIMIT_CAPACITY", cfg.RateLimitCapacity)
	cfg.RateLimitRefill = getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", cfg.RateLimitRefill)
	cfg.GitHubToken = getEnv("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.GitHubOrgs = getEnvList("GITHUB_ORGS", cfg.GitHubOrgs)
	cfg.GitHubLabel = getEnv("GITHUB_LABEL", cfg.GitHubLabel)
	cfg.BoardSource = getEnv("BOARD_SOURCE", cfg.BoardSource)
	cfg.BoardURL = getEnv("BOARD_URL", cfg.BoardURL)
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.ArtifactDir = getEnv("ARTIFACT_DIR", cfg.ArtifactDir)
	if v := os.Getenv("S3_PATH_STYLE"); v != "" {
		cfg.S3PathStyle = v == "1" || strings.EqualFold(v, "true")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
