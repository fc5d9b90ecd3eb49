// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "ANALYZER_CONFIG"

	portEnv              = "PORT"
	environmentEnv       = "ENVIRONMENT"
	dbDriverEnv          = "DB_DRIVER"
	dbDSNEnv             = "DATABASE_DSN"
	ocrURLEnv            = "OCR_URL"
	modelsDirEnv         = "MODELS_DIR"
	modelNameEnv         = "MODEL_NAME"
	enableSmartEnv       = "ENABLE_SMART_TIER"
	allowPrivateEnv      = "ALLOW_PRIVATE_NETWORKS"
	fetchTimeoutEnv      = "FETCH_TIMEOUT"
	fetchMaxBodyEnv      = "FETCH_MAX_BODY_BYTES"
	fetchMaxRedirectsEnv = "FETCH_MAX_REDIRECTS"
	disableCORSEnv       = "DISABLE_CORS"
)

// Config holds all service settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	OCR       OCRConfig       `yaml:"ocr"`
	Sentiment SentimentConfig `yaml:"sentiment"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	CORSEnabled bool   `yaml:"corsEnabled"`
}

// DatabaseConfig describes the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// FetchConfig bounds remote document retrieval.
type FetchConfig struct {
	Timeout              time.Duration `yaml:"timeout"`
	MaxBodyBytes         int64         `yaml:"maxBodyBytes"`
	MaxRedirects         int           `yaml:"maxRedirects"`
	AllowPrivateNetworks bool          `yaml:"allowPrivateNetworks"`
}

// OCRConfig points at the OCR sidecar.
type OCRConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// SentimentConfig controls the smart analysis tier.
type SentimentConfig struct {
	EnableSmartTier bool   `yaml:"enableSmartTier"`
	ModelsDir       string `yaml:"modelsDir"`
	ModelName       string `yaml:"modelName"`
	Download        bool   `yaml:"download"`
}

// LoadEnv loads a .env file when present. Missing files are not an error;
// the OS environment wins either way.
func LoadEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := gotenv.Load(path); err != nil {
		slog.Debug("no .env file found, using OS environment")
	}
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("cannot read config file, falling back to defaults",
				slog.String("path", path), slog.String("error", err.Error()))
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			slog.Warn("cannot parse config file, falling back to defaults",
				slog.String("path", path), slog.String("error", err.Error()))
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(environmentEnv); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv(disableCORSEnv); v != "" {
		c.Server.CORSEnabled = !envBool(v)
	}
	if v := os.Getenv(dbDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(dbDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(ocrURLEnv); v != "" {
		c.OCR.BaseURL = v
	}
	if v := os.Getenv(modelsDirEnv); v != "" {
		c.Sentiment.ModelsDir = v
	}
	if v := os.Getenv(modelNameEnv); v != "" {
		c.Sentiment.ModelName = v
	}
	if v := os.Getenv(enableSmartEnv); v != "" {
		c.Sentiment.EnableSmartTier = envBool(v)
	}
	if v := os.Getenv(allowPrivateEnv); v != "" {
		c.Fetch.AllowPrivateNetworks = envBool(v)
	}
	if v := os.Getenv(fetchTimeoutEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Fetch.Timeout = d
		}
	}
	if v := os.Getenv(fetchMaxBodyEnv); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Fetch.MaxBodyBytes = n
		}
	}
	if v := os.Getenv(fetchMaxRedirectsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Fetch.MaxRedirects = n
		}
	}
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
			CORSEnabled: true,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Fetch: FetchConfig{
			Timeout:      15 * time.Second,
			MaxBodyBytes: 5 << 20,
			MaxRedirects: 3,
		},
		OCR: OCRConfig{
			BaseURL: "http://localhost:8884",
			Timeout: 60 * time.Second,
		},
		Sentiment: SentimentConfig{
			ModelsDir: "./models",
			ModelName: "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english",
		},
	}
}
