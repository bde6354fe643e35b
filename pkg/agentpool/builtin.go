package agentpool

import (
	"context"
	"encoding/json"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// BaseAgent is the stateless, LLM-backed implementation shared by all four
// agent types. It carries model.AgentSpec configuration and a backend client;
// its behaviour does not depend on the agent type, only on the spec.
type BaseAgent struct {
	spec   model.AgentSpec
	client *LLMClient
}

// NewBaseAgent constructs an agent for the given spec and shared client.
func NewBaseAgent(spec model.AgentSpec, client *LLMClient) *BaseAgent {
	spec.ClampTemperature()
	return &BaseAgent{spec: spec, client: client}
}

func (a *BaseAgent) ID() string                { return a.spec.ID }
func (a *BaseAgent) AgentType() model.AgentType { return a.spec.Type }
func (a *BaseAgent) Stateless() bool            { return true }

func (a *BaseAgent) Execute(ctx context.Context, actx model.AgentContext) (model.AgentResult, error) {
	req := LLMRequest{
		Model:       a.spec.Model,
		Temperature: a.spec.Temperature,
		MaxTokens:   a.spec.TokenBudget,
		Messages: []LLMMessage{
			{Role: "system", Content: a.spec.SystemPrompt},
			{Role: "user", Content: actx.Prompt()},
		},
	}

	resp, err := a.client.Generate(ctx, req)
	if err != nil {
		return model.AgentResult{}, err
	}

	payload, _ := json.Marshal(map[string]string{"content": resp.Content})
	tokens := resp.TokensUsed
	result := model.AgentResult{
		AgentID:    a.spec.ID,
		Payload:    payload,
		Confidence: 1.0,
		Reasoning:  resp.Reasoning,
	}
	if tokens > 0 {
		result.TokensUsed = &tokens
	}
	return result, nil
}

// PlanningDecomposition is the structured output the Workflow Engine (C6)
// expects from a Planning agent: an ordered task list plus dependency edges.
// Planning agents are expected to return this shape JSON-encoded in their
// AgentResult payload; BaseAgent does not parse it itself (that's the
// workflow engine's job), keeping the agent/workflow boundary narrow.
type PlanningDecomposition struct {
	Tasks []model.TaskNode `json:"tasks"`
	Edges []PlannedEdge    `json:"edges"`
}

// PlannedEdge is the wire shape of a dependency edge before it is resolved
// against a predicate registry.
type PlannedEdge struct {
	From          model.TaskID         `json:"from"`
	To            model.TaskID         `json:"to"`
	Type          model.DependencyType `json:"type"`
	PredicateName string               `json:"predicateName,omitempty"`
}
