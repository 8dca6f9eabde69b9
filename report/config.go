package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the research workflow. The zero value is not usable; start
// from DefaultConfig or Load.
type Config struct {
	// MaxAnalysts is the roster size requested from the language model.
	// A reviewer can revise it during the feedback loop.
	MaxAnalysts int `yaml:"max_analysts"`

	// MaxTurns bounds the question/answer cycles of one interview branch.
	MaxTurns int `yaml:"max_turns"`

	// ReviewTimeout and PollInterval tune the reviewer gateway.
	ReviewTimeout time.Duration `yaml:"review_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	// RecursionLimit is the step ceiling for a run and for each branch.
	RecursionLimit int `yaml:"recursion_limit"`

	// MaxRegenerations caps the analyst regeneration loop. Zero disables
	// the cap, leaving the loop bounded only by the step ceiling.
	MaxRegenerations int `yaml:"max_regenerations"`

	// ReviewerName is the author name the gateway posts under.
	ReviewerName string `yaml:"reviewer_name"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MaxAnalysts:      3,
		MaxTurns:         4,
		ReviewTimeout:    180 * time.Second,
		PollInterval:     3 * time.Second,
		RecursionLimit:   50,
		MaxRegenerations: 0,
		ReviewerName:     "weft-workflow",
	}
}

// Load reads a YAML config, filling unset fields from DefaultConfig.
func Load(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config from disk.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Validate rejects configurations that cannot drive a run.
func (c Config) Validate() error {
	if c.MaxAnalysts < 1 {
		return fmt.Errorf("config: max_analysts must be at least 1, got %d", c.MaxAnalysts)
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("config: max_turns must be at least 1, got %d", c.MaxTurns)
	}
	if c.ReviewTimeout <= 0 {
		return fmt.Errorf("config: review_timeout must be positive, got %v", c.ReviewTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.RecursionLimit < 1 {
		return fmt.Errorf("config: recursion_limit must be at least 1, got %d", c.RecursionLimit)
	}
	if c.MaxRegenerations < 0 {
		return fmt.Errorf("config: max_regenerations must not be negative, got %d", c.MaxRegenerations)
	}
	if c.ReviewerName == "" {
		return fmt.Errorf("config: reviewer_name must not be empty")
	}
	return nil
}
