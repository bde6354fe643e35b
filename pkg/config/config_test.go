package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

const sampleYAML = `
serverBind:
  host: 127.0.0.1
  port: 9090
agents:
  - id: planner-1
    type: Planning
    model: gpt-test
    systemPrompt: "decompose the query"
    temperature: 0.2
    maxTokens: 2000
hitl:
  mode: Blocking
workflow:
  maxParallelTasks: 8
subscription:
  bufferCap: 50
rag:
  tokenBudget: 8000
llm:
  endpoint: http://localhost:9999/generate
`

func TestParse_MergesOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.ServerBind.Host)
	assert.Equal(t, 9090, cfg.ServerBind.Port)
	assert.Equal(t, 8, cfg.Workflow.MaxParallelTasks)
	// Unset fields retain the built-in default.
	assert.Equal(t, 3, cfg.Workflow.MaxRetries)
	assert.Equal(t, "after-wave", cfg.Workflow.CheckpointInterval)
	assert.Equal(t, 50, cfg.Subscription.BufferCap)
	assert.Equal(t, 1800, cfg.Subscription.InactiveTTLSeconds)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "planner-1", cfg.Agents[0].ID)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("AGENTFLOW_TEST_MODEL", "env-model")
	doc := strings.Replace(sampleYAML, "gpt-test", "${AGENTFLOW_TEST_MODEL}", 1)
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Agents[0].Model)
}

func TestValidate_RejectsBadTemperature(t *testing.T) {
	cfg := Default()
	cfg.LLM.Endpoint = "http://x"
	cfg.Agents = []model.AgentSpec{{ID: "a", Type: model.AgentTypePlanning, Temperature: 3, TokenBudget: 10}}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestValidate_RequiresAtLeastOneAgent(t *testing.T) {
	cfg := Default()
	cfg.LLM.Endpoint = "http://x"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one agent")
}

func TestValidate_ToolTransportExactlyOne(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.LLM.Endpoint = "http://x"
		cfg.Agents = []model.AgentSpec{{ID: "a", Type: model.AgentTypePlanning, Temperature: 1, TokenBudget: 10}}
		return cfg
	}

	cfg := base()
	cfg.Tools = []ToolConfig{{Name: "search", Command: "mcp-search"}}
	require.NoError(t, Validate(cfg))

	cfg = base()
	cfg.Tools = []ToolConfig{{Name: "search"}}
	require.Error(t, Validate(cfg), "no transport configured")

	cfg = base()
	cfg.Tools = []ToolConfig{{Name: "search", Command: "mcp-search", URL: "http://tools"}}
	require.Error(t, Validate(cfg), "both transports configured")
}

func TestValidate_RejectsDuplicateAgentIDs(t *testing.T) {
	cfg := Default()
	cfg.LLM.Endpoint = "http://x"
	spec := model.AgentSpec{ID: "dup", Type: model.AgentTypeCoding, TokenBudget: 10}
	cfg.Agents = []model.AgentSpec{spec, spec}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent id")
}
