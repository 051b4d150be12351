// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < .env/env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all docdiff configuration.
type Config struct {
	Version int `yaml:"version"`

	Compare   CompareConfig   `yaml:"compare"`
	LLM       LLMConfig       `yaml:"llm"`
	Loader    LoaderConfig    `yaml:"loader"`
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	S3        S3Config        `yaml:"s3"`
	Voice     VoiceConfig     `yaml:"voice"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CompareConfig controls report rendering.
type CompareConfig struct {
	PreviewRows int `yaml:"preview_rows"`
	Workers     int `yaml:"workers"` // 0 or 1 = sequential
}

// LLMConfig controls the question answering backend.
type LLMConfig struct {
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"-"` // env only
	Temperature float32       `yaml:"temperature"`
	HistorySize int           `yaml:"history_size"`
	CacheSize   int           `yaml:"cache_size"` // 0 disables the answer cache
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// LoaderConfig controls file ingestion.
type LoaderConfig struct {
	Parallelism int    `yaml:"parallelism"` // 0 = auto
	CacheSize   int    `yaml:"cache_size"`
	SQLDSN      string `yaml:"sql_dsn"` // DuckDB database for sql:// sources
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port          int      `yaml:"port"`
	Host          string   `yaml:"host"`
	MaxUploadSize string   `yaml:"max_upload_size"`
	UploadDir     string   `yaml:"upload_dir"`
	CORSOrigins   []string `yaml:"cors_origins"`
}

// SessionConfig selects where conversations are kept.
type SessionConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis
	RedisAddress  string        `yaml:"redis_address"`
	RedisPassword string        `yaml:"-"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

// S3Config for s3:// sources.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// VoiceConfig names the external speech commands.
type VoiceConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RecognizeCmd  string   `yaml:"recognize_cmd"`
	RecognizeArgs []string `yaml:"recognize_args"`
	SpeakCmd      string   `yaml:"speak_cmd"`
	SpeakArgs     []string `yaml:"speak_args"`
	Language      string   `yaml:"language"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	speak := "espeak"
	if runtime.GOOS == "darwin" {
		speak = "say"
	}

	return &Config{
		Version: 1,
		Compare: CompareConfig{
			PreviewRows: 5,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			HistorySize: 10,
			CacheSize:   256,
			CacheTTL:    time.Hour,
		},
		Loader: LoaderConfig{
			CacheSize: 32,
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "localhost",
			MaxUploadSize: "100MB",
			UploadDir:     filepath.Join(homeDir, ".docdiff", "uploads"),
			CORSOrigins:   []string{"*"},
		},
		Session: SessionConfig{
			Backend:     "memory",
			RedisPrefix: "docdiff:sessions:",
			TTL:         24 * time.Hour,
		},
		Voice: VoiceConfig{
			SpeakCmd: speak,
			Language: "en-US",
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	paths     []string // Paths that were loaded
	candidate []string // Paths to try; nil means the standard hierarchy
	envFile   string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config:  Default(),
		envFile: ".env",
	}
}

// NewManagerWithPaths reads only the given files, in order, and no .env.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config:    Default(),
		candidate: paths,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	paths := m.candidate
	if paths == nil {
		paths = m.getConfigPaths()
	}
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// .env never overrides variables already set in the environment.
	if m.envFile != "" {
		if err := godotenv.Load(m.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("env file %s: %w", m.envFile, err)
		}
	}
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/docdiff/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".docdiff", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".docdiff.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	dst := m.config

	// Compare
	if src.Compare.PreviewRows != 0 {
		dst.Compare.PreviewRows = src.Compare.PreviewRows
	}
	if src.Compare.Workers != 0 {
		dst.Compare.Workers = src.Compare.Workers
	}

	// LLM
	if src.LLM.Model != "" {
		dst.LLM.Model = src.LLM.Model
	}
	if src.LLM.Temperature != 0 {
		dst.LLM.Temperature = src.LLM.Temperature
	}
	if src.LLM.HistorySize != 0 {
		dst.LLM.HistorySize = src.LLM.HistorySize
	}
	if src.LLM.CacheSize != 0 {
		dst.LLM.CacheSize = src.LLM.CacheSize
	}
	if src.LLM.CacheTTL != 0 {
		dst.LLM.CacheTTL = src.LLM.CacheTTL
	}

	// Loader
	if src.Loader.Parallelism != 0 {
		dst.Loader.Parallelism = src.Loader.Parallelism
	}
	if src.Loader.CacheSize != 0 {
		dst.Loader.CacheSize = src.Loader.CacheSize
	}
	if src.Loader.SQLDSN != "" {
		dst.Loader.SQLDSN = src.Loader.SQLDSN
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.MaxUploadSize != "" {
		dst.Server.MaxUploadSize = src.Server.MaxUploadSize
	}
	if src.Server.UploadDir != "" {
		dst.Server.UploadDir = src.Server.UploadDir
	}
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = src.Server.CORSOrigins
	}

	// Session
	if src.Session.Backend != "" {
		dst.Session.Backend = src.Session.Backend
	}
	if src.Session.RedisAddress != "" {
		dst.Session.RedisAddress = src.Session.RedisAddress
	}
	if src.Session.RedisPrefix != "" {
		dst.Session.RedisPrefix = src.Session.RedisPrefix
	}
	if src.Session.TTL != 0 {
		dst.Session.TTL = src.Session.TTL
	}

	// S3
	if src.S3.Region != "" {
		dst.S3.Region = src.S3.Region
	}
	if src.S3.Endpoint != "" {
		dst.S3.Endpoint = src.S3.Endpoint
	}
	if src.S3.UsePathStyle {
		dst.S3.UsePathStyle = true
	}

	// Voice
	if src.Voice.Enabled {
		dst.Voice.Enabled = true
	}
	if src.Voice.RecognizeCmd != "" {
		dst.Voice.RecognizeCmd = src.Voice.RecognizeCmd
		dst.Voice.RecognizeArgs = src.Voice.RecognizeArgs
	}
	if src.Voice.SpeakCmd != "" {
		dst.Voice.SpeakCmd = src.Voice.SpeakCmd
		dst.Voice.SpeakArgs = src.Voice.SpeakArgs
	}
	if src.Voice.Language != "" {
		dst.Voice.Language = src.Voice.Language
	}

	// Telemetry
	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.SamplingRatio != 0 {
		dst.Telemetry.SamplingRatio = src.Telemetry.SamplingRatio
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	c := m.config

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DOCDIFF_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v, ok := envInt("DOCDIFF_HISTORY_SIZE"); ok {
		c.LLM.HistorySize = v
	}
	if v, ok := envInt("DOCDIFF_PREVIEW_ROWS"); ok {
		c.Compare.PreviewRows = v
	}
	if v, ok := envInt("DOCDIFF_PORT"); ok {
		c.Server.Port = v
	}
	if v := os.Getenv("DOCDIFF_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCDIFF_SQL_DSN"); v != "" {
		c.Loader.SQLDSN = v
	}
	if v := os.Getenv("DOCDIFF_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("DOCDIFF_REDIS_ADDR"); v != "" {
		c.Session.RedisAddress = v
	}
	if v := os.Getenv("DOCDIFF_REDIS_PASSWORD"); v != "" {
		c.Session.RedisPassword = v
	}
	if v := os.Getenv("DOCDIFF_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" && c.S3.Region == "" {
		c.S3.Region = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".docdiff")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// ParseSize parses sizes like "100MB", "1GB" or a plain byte count.
func ParseSize(s string) (int64, error) {
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1},
	}
	for _, u := range units {
		if len(s) > len(u.suffix) && s[len(s)-len(u.suffix):] == u.suffix {
			n, err := strconv.ParseInt(s[:len(s)-len(u.suffix)], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q", s)
			}
			return n * u.mult, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n, nil
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
