// Package config handles CoPilot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/copilot/config.yaml, /etc/copilot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "copilot", "config.yaml"))
	}

	paths = append(paths, "/etc/copilot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CoPilot configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Inference InferenceConfig `yaml:"inference"`
	Weather   WeatherConfig   `yaml:"weather"`
	Manuals   ManualsConfig   `yaml:"manuals"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// InferenceConfig defines the inference provider settings.
type InferenceConfig struct {
	BaseURL string `yaml:"base_url"` // Ollama-compatible endpoint
	Model   string `yaml:"model"`    // Chat model name
	// TitleModel generates conversation display titles. Defaults to Model.
	TitleModel string `yaml:"title_model"`
	// MaxToolRounds caps model↔tool round trips per request (default 5).
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// WeatherConfig defines the aviation and point weather backends.
type WeatherConfig struct {
	// AviationURL is the METAR/TAF API base (default: aviationweather.gov).
	AviationURL string `yaml:"aviation_url"`
	// PointURL is the point-conditions API base.
	PointURL string `yaml:"point_url"`
	// CacheTTL is how long point weather results stay cached (default 5m).
	CacheTTL string `yaml:"cache_ttl"`
}

// ManualsConfig defines the reference manual library.
type ManualsConfig struct {
	// Dir holds markdown manuals, one file per manual (far_aim.md, phak.md, ...).
	Dir string `yaml:"dir"`
	// EmbeddingURL is the Ollama endpoint used for embeddings
	// (defaults to inference.base_url).
	EmbeddingURL string `yaml:"embedding_url"`
	// EmbeddingModel names the embedding model (default: nomic-embed-text).
	EmbeddingModel string `yaml:"embedding_model"`
}

// CacheConfig selects the weather cache backend.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig defines the optional Redis cache connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // host:port (default: 127.0.0.1:6379)
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig maps API tokens to user identifiers.
type AuthConfig struct {
	// Tokens is a bearer-token → user-id map. Requests without a
	// matching token are rejected before any work is done.
	Tokens map[string]string `yaml:"tokens"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Inference: InferenceConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "qwen3:4b",
			MaxToolRounds: 5,
		},
		Weather: WeatherConfig{
			AviationURL: "https://aviationweather.gov/api/data",
			CacheTTL:    "5m",
		},
		Manuals: ManualsConfig{
			EmbeddingModel: "nomic-embed-text",
		},
		Cache:   CacheConfig{Backend: "memory"},
		DataDir: "data",
	}
}
