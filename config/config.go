package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"phishguard/db"
	"phishguard/logging"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Model     ModelConfig     `yaml:"model"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       logging.Config  `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Training  TrainingConfig  `yaml:"training"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For header is believed. Empty means none.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type ModelConfig struct {
	Dir string `yaml:"dir"`
}

type DatabaseConfig struct {
	Path     string            `yaml:"path"`
	Recorder db.RecorderConfig `yaml:"recorder"`
}

// CacheConfig sizes the prediction cache. Size 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DatasetConfig struct {
	DataDir string `yaml:"data_dir"`
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
}

type TrainingConfig struct {
	NumTrees  int     `yaml:"num_trees"`
	Seed      int64   `yaml:"seed"`
	TestRatio float64 `yaml:"test_ratio"`
	MaxDepth  int     `yaml:"max_depth"`
	Workers   int     `yaml:"workers"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           5000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Model:    ModelConfig{Dir: "models"},
		Database: DatabaseConfig{Path: "data/phishguard.db", Recorder: db.DefaultRecorderConfig()},
		Log:      logging.DefaultConfig(),
		Cache:    CacheConfig{Size: 1024},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Dataset: DatasetConfig{
			DataDir: "data",
			Output:  "data/urls_fixed.csv",
		},
		Training: TrainingConfig{
			NumTrees:  100,
			Seed:      42,
			TestRatio: 0.3,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default value; environment variables in paths are expanded.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	config.Model.Dir = os.ExpandEnv(config.Model.Dir)
	config.Database.Path = os.ExpandEnv(config.Database.Path)
	config.Log.File = os.ExpandEnv(config.Log.File)
	config.Dataset.DataDir = os.ExpandEnv(config.Dataset.DataDir)
	config.Dataset.Input = os.ExpandEnv(config.Dataset.Input)
	config.Dataset.Output = os.ExpandEnv(config.Dataset.Output)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		def := Default()
		return &def, nil
	}
	return config, err
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	for _, proxy := range c.HTTP.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("http.trusted_proxies: %q is not an address or CIDR range", proxy)
		}
	}
	if c.Model.Dir == "" {
		return errors.New("model.dir is required")
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate_limit needs positive requests_per_second and burst")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio)
	}
	return nil
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
