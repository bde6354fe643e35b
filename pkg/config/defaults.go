package config

import "github.com/codeready-toolchain/agentflow/pkg/model"

// Default returns the built-in configuration; user YAML is merged over it.
func Default() Config {
	return Config{
		ServerBind: ServerBindConfig{Host: "0.0.0.0", Port: 8080},
		Hitl: HitlConfig{
			Mode:             model.HitlBlocking,
			SampleRate:       0.25,
			RiskKeywords:     []string{"deploy", "secret", "credential", "production", "migrate"},
			CriticalKeywords: []string{"delete", "drop table", "rm -rf", "force-push"},
		},
		Workflow: WorkflowConfig{
			MaxParallelTasks:   4,
			MaxRetries:         3,
			CheckpointInterval: "after-wave",
			LockTimeoutSeconds: 30,
			TaskTimeoutSeconds: 300,
		},
		Subscription: SubscriptionConfig{
			ActiveTTLSeconds:   300,
			InactiveTTLSeconds: 1800,
			HardCapSeconds:     3600,
			BufferCap:          1000,
		},
		Rag: RagConfig{TokenBudget: 4000},
		LLM: LLMConfig{Endpoint: "http://localhost:11434/v1/generate", TimeoutSeconds: 60},
	}
}
