// Package config holds the node configuration written by `landreg generate`
// and read by `landreg run`.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk node configuration. The node key identifies this
// node in signed checkpoints; everything else has workable defaults.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	NodeKey    string `yaml:"node_key"`
	NodeName   string `yaml:"node_name"`
	ListenHost string `yaml:"listen_host"`

	Intake IntakeConfig `yaml:"intake"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// IntakeConfig tunes the finalization batching.
type IntakeConfig struct {
	BatchMaxAge  time.Duration `yaml:"batch_max_age"`
	BatchMaxSize int           `yaml:"batch_max_size"`
	QueueDepth   int           `yaml:"queue_depth"`
}

// RateLimitConfig tunes the gateway's per-client limiter. Zero disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns a config with a workable baseline; the node key is left
// empty and must come from Generate.
func Default(dataDir string) Config {
	return Config{
		DataDir:    dataDir,
		ListenHost: "127.0.0.1",
		Intake: IntakeConfig{
			BatchMaxAge:  500 * time.Millisecond,
			BatchMaxSize: 64,
			QueueDepth:   16,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
	}
}

// Generate creates a config with a fresh node keypair.
func Generate(dataDir string) (Config, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Config{}, fmt.Errorf("generate node key: %w", err)
	}
	cfg := Default(dataDir)
	cfg.NodeKey = hex.EncodeToString(priv)
	cfg.NodeName = fmt.Sprintf("landreg-%x", priv.Public().(ed25519.PublicKey)[:4])
	return cfg, nil
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes the config as YAML with owner-only permissions, since it holds
// the node's private key.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the fields without defaults.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	key, err := hex.DecodeString(c.NodeKey)
	if err != nil {
		return fmt.Errorf("node_key is not valid hex: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("node_key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return nil
}

// PrivateKey decodes the node key. Call Validate first.
func (c Config) PrivateKey() (ed25519.PrivateKey, error) {
	key, err := hex.DecodeString(c.NodeKey)
	if err != nil {
		return nil, fmt.Errorf("decode node_key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("node_key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return ed25519.PrivateKey(key), nil
}

func (c *Config) fillDefaults() {
	def := Default(c.DataDir)
	if c.ListenHost == "" {
		c.ListenHost = def.ListenHost
	}
	if c.Intake.BatchMaxAge <= 0 {
		c.Intake.BatchMaxAge = def.Intake.BatchMaxAge
	}
	if c.Intake.BatchMaxSize <= 0 {
		c.Intake.BatchMaxSize = def.Intake.BatchMaxSize
	}
	if c.Intake.QueueDepth <= 0 {
		c.Intake.QueueDepth = def.Intake.QueueDepth
	}
}
