// Package config provides configuration types and loading for wenko.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Cascade, Suspension, Tools,
// Emotion, Memory.
type Config struct {
	Paths      PathsConfig      `json:"paths"`
	Model      ModelConfig      `json:"model"`
	Provider   ProviderConfig   `json:"provider"`
	Cascade    CascadeConfig    `json:"cascade"`
	Suspension SuspensionConfig `json:"suspension"`
	Tools      ToolsConfig      `json:"tools"`
	Emotion    EmotionConfig    `json:"emotion"`
	Memory     MemoryConfig     `json:"memory"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Home          string `json:"home" envconfig:"HOME"`
	StateDB       string `json:"stateDb" envconfig:"STATE_DB"`
	Conversations string `json:"conversations" envconfig:"CONVERSATIONS"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and reasoning-loop settings.
type ModelConfig struct {
	Name          string  `json:"name" envconfig:"MODEL"`
	MaxTokens     int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature   float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxIterations int     `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
}

// ProviderConfig contains settings for the OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Cascade – intent resolution
// ---------------------------------------------------------------------------

// CascadeConfig contains intent cascade settings.
type CascadeConfig struct {
	ClassifierThreshold float64 `json:"classifierThreshold" envconfig:"CLASSIFIER_THRESHOLD"`
	ClassifierModel     string  `json:"classifierModel" envconfig:"CLASSIFIER_MODEL"`
}

// SuspensionConfig contains human-in-the-loop suspension settings.
type SuspensionConfig struct {
	TTL time.Duration `json:"ttl" envconfig:"TTL"`
}

// ToolsConfig contains tool invocation settings.
type ToolsConfig struct {
	InvokeTimeout time.Duration `json:"invokeTimeout" envconfig:"INVOKE_TIMEOUT"`
	MaxAutoTier   int           `json:"maxAutoTier" envconfig:"MAX_AUTO_TIER"`
}

// EmotionConfig contains emotional state modulation settings.
type EmotionConfig struct {
	HistoryLimit int `json:"historyLimit" envconfig:"HISTORY_LIMIT"`
}

// MemoryConfig contains long-term memory settings.
type MemoryConfig struct {
	RetrieveLimit int `json:"retrieveLimit" envconfig:"RETRIEVE_LIMIT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Home:          "~/.wenko",
			StateDB:       "~/.wenko/wenko.db",
			Conversations: "~/.wenko/conversations",
		},
		Model: ModelConfig{
			Name:          "gpt-4o-mini",
			MaxTokens:     4096,
			Temperature:   0.7,
			MaxIterations: 6,
		},
		Cascade: CascadeConfig{
			ClassifierThreshold: 0.6,
		},
		Suspension: SuspensionConfig{
			TTL: 10 * time.Minute,
		},
		Tools: ToolsConfig{
			InvokeTimeout: 30 * time.Second,
			MaxAutoTier:   1,
		},
		Emotion: EmotionConfig{
			HistoryLimit: 8,
		},
		Memory: MemoryConfig{
			RetrieveLimit: 5,
		},
	}
}
