package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Turn      TurnConfig      `yaml:"turn"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
}

// RateLimitConfig holds per-IP token bucket settings.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	BurstSize      int      `yaml:"burst_size"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single API auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// TurnConfig holds turn loop settings.
type TurnConfig struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	WindowSize    int           `yaml:"window_size"`
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// DatabaseConfig holds the analytics database settings.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"` // default schema for SQL tools
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // 0 disables the query cache
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	Index     string `yaml:"index"`
	Namespace string `yaml:"namespace"` // default knowledge-base namespace
	TopK      int    `yaml:"top_k"`
}

// SearchConfig holds web search tool settings.
type SearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend"` // "tavily" or "searxng"
	APIKey     string        `yaml:"api_key,omitempty"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxResults int           `yaml:"max_results"`
	// RateLimitPerMin caps backend calls per minute; 0 disables the cap.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// StoreConfig holds conversation store settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.smart-query/data. Falls back to "./data" if $HOME cannot be
// determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".smart-query", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr: ":8090",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				BurstSize:      20,
			},
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Turn: TurnConfig{
			WindowSize:    6,
			MaxToolRounds: 8,
			ToolTimeout:   30 * time.Second,
			MaxTokens:     4096,
			Temperature:   0,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  256,
		},
		Vector: VectorConfig{
			TopK: 5,
		},
		Search: SearchConfig{
			Enabled:         false,
			Backend:         "tavily",
			CacheTTL:        15 * time.Minute,
			MaxResults:      5,
			RateLimitPerMin: 30,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "threads.db"),
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    50,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Process includes (merges included files into cfg).
	hasIncludes := len(cfg.Includes) > 0
	if hasIncludes {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("SMARTQUERY_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SMARTQUERY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMARTQUERY_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SMARTQUERY_SERVER_RATE_LIMIT_ENABLED"); v == "false" {
		cfg.Server.RateLimit.Enabled = false
	}
	if v := os.Getenv("SMARTQUERY_SERVER_RATE_LIMIT_REQUESTS_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("SMARTQUERY_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.RateLimit.TrustedProxies = splitAndTrim(v, ",")
	}

	if v := os.Getenv("SMARTQUERY_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	// Per-provider API key overrides: SMARTQUERY_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("SMARTQUERY_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}

	if v := os.Getenv("SMARTQUERY_TURN_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Turn.WindowSize = n
		}
	}
	if v := os.Getenv("SMARTQUERY_TURN_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Turn.MaxToolRounds = n
		}
	}
	if v := os.Getenv("SMARTQUERY_TURN_TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Turn.ToolTimeout = d
		}
	}

	if v := os.Getenv("SMARTQUERY_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SMARTQUERY_DATABASE_SCHEMA"); v != "" {
		cfg.Database.Schema = v
	}

	if v := os.Getenv("SMARTQUERY_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("SMARTQUERY_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("SMARTQUERY_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}

	if v := os.Getenv("SMARTQUERY_VECTOR_HOST"); v != "" {
		cfg.Vector.Host = v
	}
	if v := os.Getenv("SMARTQUERY_VECTOR_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := os.Getenv("SMARTQUERY_VECTOR_INDEX"); v != "" {
		cfg.Vector.Index = v
	}
	if v := os.Getenv("SMARTQUERY_VECTOR_NAMESPACE"); v != "" {
		cfg.Vector.Namespace = v
	}

	if v := os.Getenv("SMARTQUERY_SEARCH_ENABLED"); v == "true" {
		cfg.Search.Enabled = true
	}
	if v := os.Getenv("SMARTQUERY_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("SMARTQUERY_SEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.CacheTTL = d
		}
	}

	if v := os.Getenv("SMARTQUERY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	if v := os.Getenv("SMARTQUERY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SMARTQUERY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SMARTQUERY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SMARTQUERY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	secrets := []*string{
		&cfg.Embedding.APIKey,
		&cfg.Vector.APIKey,
		&cfg.Search.APIKey,
		&cfg.Database.DSN,
	}
	for _, fp := range secrets {
		if strings.HasPrefix(*fp, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("decrypt secret: %w", err)
			}
			*fp = decrypted
		}
	}

	for i := range cfg.Server.Auth.Tokens {
		tok := cfg.Server.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("auth token %s: %w", cfg.Server.Auth.Tokens[i].Name, err)
			}
			cfg.Server.Auth.Tokens[i].Token = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
