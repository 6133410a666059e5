// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. .env.local / .env file (loaded into the environment before viper reads it)
//  3. Config file (docmirror.yaml in the working directory)
//  4. Default values
//
// Main configuration categories:
//   - CouchDB: source document store connection and change-feed database
//   - Postgres: vector mirror connection (see storage.go for DSN/URL builders)
//   - Content: path prefixes that qualify documents for indexing, site URL mapping
//   - AI: embedding model/dimensionality and chat model
//   - Chunking: strategy selection and window geometry
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrInvalidCouchDBHost indicates the CouchDB host is empty.
	ErrInvalidCouchDBHost = errors.New("invalid CouchDB host")

	// ErrInvalidCouchDBPort indicates the CouchDB port is out of range.
	ErrInvalidCouchDBPort = errors.New("invalid CouchDB port")

	// ErrInvalidCouchDBDatabase indicates the CouchDB database name is empty.
	ErrInvalidCouchDBDatabase = errors.New("invalid CouchDB database")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidEmbeddingDimension indicates the embedding dimensionality is not positive.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates the chunk geometry or strategy is unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidPathPrefix indicates an indexable path prefix is empty.
	ErrInvalidPathPrefix = errors.New("invalid path prefix")
)

// Chunker strategy identifiers used in Config.ChunkStrategy.
const (
	ChunkStrategyWords    = "words"
	ChunkStrategyHeadings = "headings"
)

// Config stores application configuration.
type Config struct {
	// CouchDB source store
	CouchDBHost     string `mapstructure:"couchdb_host"`
	CouchDBPort     int    `mapstructure:"couchdb_port"`
	CouchDBUsername string `mapstructure:"couchdb_username"`
	CouchDBPassword string `mapstructure:"couchdb_password"`
	CouchDBDatabase string `mapstructure:"couchdb_database"`

	// PostgreSQL mirror
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_username"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_database"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Content qualification and URL mapping
	BlogPrefix      string `mapstructure:"blog_prefix"`
	KBPrefix        string `mapstructure:"kb_prefix"`
	PortfolioPrefix string `mapstructure:"portfolio_prefix"`
	BaseSiteURL     string `mapstructure:"base_site_url"`

	// AI providers
	OpenAIAPIKey       string `mapstructure:"openai_api_key"`
	EmbeddingModel     string `mapstructure:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	ChatModel          string `mapstructure:"chat_model"`

	// Chunking
	ChunkStrategy string `mapstructure:"chunk_strategy"`
	ChunkSize     int    `mapstructure:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, an optional docmirror.yaml, and the
// environment. A .env.local (preferred) or .env file is loaded into the
// process environment first, matching the deployment convention.
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("docmirror")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults + env carry the load.
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv loads .env.local when present, otherwise .env. Missing files are
// not an error.
func loadDotEnv() {
	if _, err := os.Stat(".env.local"); err == nil {
		_ = godotenv.Load(".env.local")
		return
	}
	_ = godotenv.Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("couchdb_host", "localhost")
	v.SetDefault("couchdb_port", 5984)
	v.SetDefault("couchdb_username", "admin")
	v.SetDefault("couchdb_password", "")
	v.SetDefault("couchdb_database", "obsidian_db")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_username", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_database", "postgres_db")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("blog_prefix", "blog/")
	v.SetDefault("kb_prefix", "kb/")
	v.SetDefault("portfolio_prefix", "portfolio/")
	v.SetDefault("base_site_url", "http://localhost:3000")

	v.SetDefault("openai_api_key", "")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("chat_model", "gpt-4o-mini")

	v.SetDefault("chunk_strategy", ChunkStrategyWords)
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate checks the configuration for values that would make the service
// misbehave at runtime. It returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CouchDBHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidCouchDBHost)
	}
	if c.CouchDBPort < 1 || c.CouchDBPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidCouchDBPort, c.CouchDBPort)
	}
	if strings.TrimSpace(c.CouchDBDatabase) == "" {
		return fmt.Errorf("%w: database must not be empty", ErrInvalidCouchDBDatabase)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}

	switch c.ChunkStrategy {
	case ChunkStrategyWords, ChunkStrategyHeadings:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunking, c.ChunkStrategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	for _, prefix := range []string{c.BlogPrefix, c.KBPrefix, c.PortfolioPrefix} {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("%w: prefix must not be empty", ErrInvalidPathPrefix)
		}
	}

	return nil
}

// AllowedPrefixes returns the path prefixes that qualify a source document
// for change-feed ingestion.
func (c *Config) AllowedPrefixes() []string {
	return []string{c.BlogPrefix, c.KBPrefix}
}
