package config

import (
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// Config is the engine's fully-resolved runtime configuration.
type Config struct {
	ServerBind   ServerBindConfig   `yaml:"serverBind"`
	Agents       []model.AgentSpec  `yaml:"agents"`
	Hitl         HitlConfig         `yaml:"hitl"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Rag          RagConfig          `yaml:"rag"`
	LLM          LLMConfig          `yaml:"llm"`
	Slack        SlackConfig        `yaml:"slack"`
	Tools        []ToolConfig       `yaml:"tools"`
}

// ServerBindConfig is the HTTP listener address.
type ServerBindConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"required,gt=0"`
}

// HitlConfig configures the HITL Gate (C5).
type HitlConfig struct {
	Mode             model.HitlMode `yaml:"mode"`
	SampleRate       float64        `yaml:"sampleRate"`
	RiskKeywords     []string       `yaml:"riskKeywords"`
	CriticalKeywords []string       `yaml:"criticalKeywords"`
}

// WorkflowConfig configures the Workflow Engine (C6).
type WorkflowConfig struct {
	MaxParallelTasks   int    `yaml:"maxParallelTasks" validate:"gt=0"`
	MaxRetries         int    `yaml:"maxRetries" validate:"gte=0"`
	CheckpointInterval string `yaml:"checkpointInterval"` // "after-wave" | "after-task" | "off"
	LockTimeoutSeconds int    `yaml:"lockTimeoutSeconds" validate:"gt=0"`
	TaskTimeoutSeconds int    `yaml:"taskTimeoutSeconds" validate:"gt=0"`
}

// SubscriptionConfig configures the Subscription Registry (C7).
type SubscriptionConfig struct {
	ActiveTTLSeconds   int `yaml:"activeTtlSeconds" validate:"gt=0"`
	InactiveTTLSeconds int `yaml:"inactiveTtlSeconds" validate:"gt=0"`
	HardCapSeconds     int `yaml:"hardCapSeconds" validate:"gt=0"`
	BufferCap          int `yaml:"bufferCap" validate:"gt=0"`
}

// RagConfig configures the Context Provider's (C1) token budget.
type RagConfig struct {
	TokenBudget int `yaml:"tokenBudget" validate:"gt=0"`
}

// LLMConfig points at the external LLM backend. The engine only dials it;
// the backend itself lives outside this module.
type LLMConfig struct {
	Endpoint       string        `yaml:"endpoint" validate:"required"`
	TimeoutSeconds int           `yaml:"timeoutSeconds" validate:"gt=0"`
	timeout        time.Duration // derived, not in YAML
}

// Timeout returns the resolved request timeout.
func (l LLMConfig) Timeout() time.Duration {
	if l.timeout != 0 {
		return l.timeout
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// ToolConfig declares one external tool reachable over the Model Context
// Protocol. Exactly one of command or url selects the transport.
type ToolConfig struct {
	Name    string   `yaml:"name"`
	Tool    string   `yaml:"tool"` // tool name on the server; defaults to Name
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	URL     string   `yaml:"url,omitempty"`
}

// SlackConfig configures the optional HITL notifier.
type SlackConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TokenEnv     string `yaml:"tokenEnv"`
	Channel      string `yaml:"channel"`
	DashboardURL string `yaml:"dashboardUrl"`
}

// LockTimeout returns the resolved file-lock wait timeout.
func (w WorkflowConfig) LockTimeout() time.Duration {
	return time.Duration(w.LockTimeoutSeconds) * time.Second
}

// TaskTimeout returns the resolved per-task execution timeout.
func (w WorkflowConfig) TaskTimeout() time.Duration {
	return time.Duration(w.TaskTimeoutSeconds) * time.Second
}

// ActiveTTL returns the resolved TTL for a connected subscription.
func (s SubscriptionConfig) ActiveTTL() time.Duration {
	return time.Duration(s.ActiveTTLSeconds) * time.Second
}

// InactiveTTL returns the resolved TTL for a detached subscription.
func (s SubscriptionConfig) InactiveTTL() time.Duration {
	return time.Duration(s.InactiveTTLSeconds) * time.Second
}

// HardCap returns the resolved overall hard expiry.
func (s SubscriptionConfig) HardCap() time.Duration {
	return time.Duration(s.HardCapSeconds) * time.Second
}
