// Package config provides unified configuration loading for scan2docx.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/scan2docx/internal/domain"
)

// Config holds all configuration for scan2docx.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Conversion    ConversionConfig    `yaml:"conversion"`
	Engines       EnginesConfig       `yaml:"engines"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	APIKey           string        `yaml:"api_key"`
}

// ConversionConfig holds the pipeline defaults.
type ConversionConfig struct {
	DPI               int      `yaml:"dpi"`
	Language          string   `yaml:"language"`
	SegMode           string   `yaml:"psm"`
	Languages         []string `yaml:"languages"`
	MaxConcurrentJobs int      `yaml:"max_concurrent_jobs"`
	MaxAttempts       int      `yaml:"max_attempts"`
	MarkFailedPages   bool     `yaml:"mark_failed_pages"`
	OutputDir         string   `yaml:"output_dir"`
}

// EnginesConfig selects and locates the rasterization and OCR engines.
type EnginesConfig struct {
	Rasterizer    string        `yaml:"rasterizer"` // fitz or poppler
	PdftoppmPath  string        `yaml:"pdftoppm_path"`
	OCR           string        `yaml:"ocr"` // tesseract or gosseract
	TesseractPath string        `yaml:"tesseract_path"`
	TessdataDir   string        `yaml:"tessdata_dir"`
	PageTimeout   time.Duration `yaml:"page_timeout"`
}

// DatabaseConfig holds job store settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	langs := make([]string, len(domain.DefaultLanguages))
	for i, l := range domain.DefaultLanguages {
		langs[i] = string(l)
	}

	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
			MaxUploadBytes:   50 << 20,
		},
		Conversion: ConversionConfig{
			DPI:               domain.DefaultDPI,
			Language:          string(domain.DefaultLanguage),
			SegMode:           strconv.Itoa(int(domain.DefaultSegmentationMode)),
			Languages:         langs,
			MaxConcurrentJobs: 2,
			MaxAttempts:       1,
			OutputDir:         ".",
		},
		Engines: EnginesConfig{
			Rasterizer:    "fitz",
			PdftoppmPath:  "pdftoppm",
			OCR:           "tesseract",
			TesseractPath: "tesseract",
			PageTimeout:   2 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/scan2docx.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        30 * time.Minute,
			MaxEntries: 64,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "scan2docx:",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	if c.Engines.Rasterizer != "fitz" && c.Engines.Rasterizer != "poppler" {
		return fmt.Errorf("invalid rasterizer: %s", c.Engines.Rasterizer)
	}

	if c.Engines.OCR != "tesseract" && c.Engines.OCR != "gosseract" {
		return fmt.Errorf("invalid ocr engine: %s", c.Engines.OCR)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Conversion.DPI < domain.MinDPI || c.Conversion.DPI > domain.MaxDPI {
		return fmt.Errorf("dpi must be between %d and %d", domain.MinDPI, domain.MaxDPI)
	}

	if len(c.Conversion.Languages) == 0 {
		return fmt.Errorf("at least one language must be configured")
	}

	if err := domain.ValidateLanguage(domain.Language(c.Conversion.Language), c.SupportedLanguages()); err != nil {
		return fmt.Errorf("default language: %w", err)
	}

	if _, err := domain.ParseSegmentationMode(c.Conversion.SegMode); err != nil {
		return fmt.Errorf("default psm: %w", err)
	}

	if c.Conversion.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1")
	}

	if c.Conversion.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	return nil
}

// SupportedLanguages returns the configured language set.
func (c *Config) SupportedLanguages() []domain.Language {
	out := make([]domain.Language, 0, len(c.Conversion.Languages))
	for _, l := range c.Conversion.Languages {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, domain.Language(l))
		}
	}
	return out
}

// DefaultSegMode returns the parsed default PSM. Validate guarantees it parses.
func (c *Config) DefaultSegMode() domain.SegmentationMode {
	m, err := domain.ParseSegmentationMode(c.Conversion.SegMode)
	if err != nil {
		return domain.DefaultSegmentationMode
	}
	return m
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("RASTERIZER"); v != "" {
		cfg.Engines.Rasterizer = v
	}

	if v := os.Getenv("PDFTOPPM_PATH"); v != "" {
		cfg.Engines.PdftoppmPath = v
	}

	if v := os.Getenv("OCR_ENGINE"); v != "" {
		cfg.Engines.OCR = v
	}

	if v := os.Getenv("TESSERACT_PATH"); v != "" {
		cfg.Engines.TesseractPath = v
	}

	if v := os.Getenv("TESSDATA_DIR"); v != "" {
		cfg.Engines.TessdataDir = v
	}

	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.Conversion.Languages = strings.Split(v, ",")
	}

	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Conversion.MaxConcurrentJobs = n
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
}
