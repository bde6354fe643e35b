package config

import (
	"fmt"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// Validate checks the numeric fields (sizes, timeouts and limits must be
// positive, maxRetries may be zero, and in SampleBased mode sampleRate must
// lie in [0,1]) and that every agent's temperature falls in [0,2]. All failures are collected and reported in one
// error rather than stopping at the first.
func Validate(cfg Config) error {
	var errs []string

	if cfg.ServerBind.Port <= 0 {
		errs = append(errs, "serverBind.port must be > 0")
	}
	if cfg.Workflow.MaxParallelTasks <= 0 {
		errs = append(errs, "workflow.maxParallelTasks must be > 0")
	}
	if cfg.Workflow.MaxRetries < 0 {
		errs = append(errs, "workflow.maxRetries must be >= 0")
	}
	if cfg.Workflow.LockTimeoutSeconds <= 0 {
		errs = append(errs, "workflow.lockTimeoutSeconds must be > 0")
	}
	if cfg.Workflow.TaskTimeoutSeconds <= 0 {
		errs = append(errs, "workflow.taskTimeoutSeconds must be > 0")
	}
	switch cfg.Workflow.CheckpointInterval {
	case "after-wave", "after-task", "off":
	default:
		errs = append(errs, fmt.Sprintf("workflow.checkpointInterval must be one of after-wave|after-task|off, got %q", cfg.Workflow.CheckpointInterval))
	}

	if cfg.Subscription.ActiveTTLSeconds <= 0 {
		errs = append(errs, "subscription.activeTtlSeconds must be > 0")
	}
	if cfg.Subscription.InactiveTTLSeconds <= 0 {
		errs = append(errs, "subscription.inactiveTtlSeconds must be > 0")
	}
	if cfg.Subscription.HardCapSeconds <= 0 {
		errs = append(errs, "subscription.hardCapSeconds must be > 0")
	}
	if cfg.Subscription.BufferCap <= 0 {
		errs = append(errs, "subscription.bufferCap must be > 0")
	}

	if cfg.Rag.TokenBudget <= 0 {
		errs = append(errs, "rag.tokenBudget must be > 0")
	}

	if cfg.LLM.Endpoint == "" {
		errs = append(errs, "llm.endpoint is required")
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, "llm.timeoutSeconds must be > 0")
	}

	switch cfg.Hitl.Mode {
	case model.HitlBlocking, model.HitlAsync, model.HitlSampleBased:
	default:
		errs = append(errs, fmt.Sprintf("hitl.mode must be one of Blocking|Async|SampleBased, got %q", cfg.Hitl.Mode))
	}
	if cfg.Hitl.Mode == model.HitlSampleBased && (cfg.Hitl.SampleRate < 0 || cfg.Hitl.SampleRate > 1) {
		errs = append(errs, "hitl.sampleRate must be in [0,1]")
	}

	if len(cfg.Agents) == 0 {
		errs = append(errs, "at least one agent must be configured")
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.ID == "" {
			errs = append(errs, "agent id must not be empty")
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true
		if !a.Type.Valid() {
			errs = append(errs, fmt.Sprintf("agent %q: invalid type %q", a.ID, a.Type))
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, fmt.Sprintf("agent %q: temperature must be in [0,2], got %v", a.ID, a.Temperature))
		}
		if a.TokenBudget <= 0 {
			errs = append(errs, fmt.Sprintf("agent %q: maxTokens must be > 0", a.ID))
		}
	}

	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			errs = append(errs, "tool name must not be empty")
			continue
		}
		if (tool.Command == "") == (tool.URL == "") {
			errs = append(errs, fmt.Sprintf("tool %q: exactly one of command or url must be set", tool.Name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return newConfigErr("config.Validate", fmt.Errorf("%s", msg))
}
