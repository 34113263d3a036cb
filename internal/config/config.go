package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session holds the configuration consumed by one loop controller session.
// The controller never mutates it; callers own the values.
type Session struct {
	// MaxIterations caps full planning/execution/validation cycles before
	// the session is forced to a failed terminal state.
	MaxIterations int `json:"max_iterations"`

	// MaxTokens bounds the context store's effective view.
	MaxTokens int `json:"max_tokens"`

	// CompressionThresholdFraction of MaxTokens at which round compression
	// starts (0 < f <= 1).
	CompressionThresholdFraction float64 `json:"compression_threshold_fraction"`

	// SummaryBudgetTokens is the per-round size budget handed to the
	// summarizer. Zero means a tenth of MaxTokens.
	SummaryBudgetTokens int `json:"summary_budget_tokens,omitempty"`

	// ArchiveAfterRounds demotes compressed rounds to archived once they are
	// this many rounds behind the newest one.
	ArchiveAfterRounds int `json:"archive_after_rounds"`

	EnableReplanning bool `json:"enable_replanning"`
	EnableReflection bool `json:"enable_reflection"`

	// ParallelExecution allows independent ready nodes of one wave to run
	// concurrently, bounded by MaxParallel.
	ParallelExecution bool `json:"parallel_execution"`
	MaxParallel       int  `json:"max_parallel,omitempty"`

	// RetryLimit is the per-node attempt budget for capability failures.
	RetryLimit int `json:"retry_limit"`

	NodeTimeoutSeconds    int `json:"node_timeout_seconds,omitempty"`
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
	LogPath  string `json:"log_path,omitempty"`
}

// Default returns a Session configuration with conservative defaults.
func Default() *Session {
	return &Session{
		MaxIterations:                8,
		MaxTokens:                    32_000,
		CompressionThresholdFraction: 0.8,
		ArchiveAfterRounds:           6,
		EnableReplanning:             true,
		EnableReflection:             false,
		ParallelExecution:            true,
		MaxParallel:                  4,
		RetryLimit:                   3,
		NodeTimeoutSeconds:           120,
		SessionTimeoutSeconds:        0,
		LogLevel:                     "info",
	}
}

// NodeTimeout returns the per-node timeout, zero when unset.
func (s *Session) NodeTimeout() time.Duration {
	return time.Duration(s.NodeTimeoutSeconds) * time.Second
}

// SessionTimeout returns the whole-session timeout, zero when unset.
func (s *Session) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutSeconds) * time.Second
}

// SummaryBudget returns the effective per-round summary budget in tokens.
func (s *Session) SummaryBudget() int {
	if s.SummaryBudgetTokens > 0 {
		return s.SummaryBudgetTokens
	}
	budget := s.MaxTokens / 10
	if budget < 1 {
		budget = 1
	}
	return budget
}

// Validate rejects configurations the controller cannot run with.
func (s *Session) Validate() error {
	if s.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", s.MaxIterations)
	}
	if s.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be >= 1, got %d", s.MaxTokens)
	}
	if s.CompressionThresholdFraction <= 0 || s.CompressionThresholdFraction > 1 {
		return fmt.Errorf("compression_threshold_fraction must be in (0, 1], got %g", s.CompressionThresholdFraction)
	}
	if s.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must be >= 0, got %d", s.RetryLimit)
	}
	if s.ParallelExecution && s.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1 when parallel_execution is enabled, got %d", s.MaxParallel)
	}
	if s.ArchiveAfterRounds < 1 {
		return fmt.Errorf("archive_after_rounds must be >= 1, got %d", s.ArchiveAfterRounds)
	}
	return nil
}

// Load reads a Session configuration from a JSON file, applying defaults
// for absent fields.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, creating parent
// directories as needed.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
