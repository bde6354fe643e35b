// Package agentpool implements the Agent Pool (C2): a registry of typed
// agents keyed by id, dispatch by id or type, and per-instance serialization
// for stateful agents.
//
// Agent is a uniform interface. The package provides one implementation,
// BaseAgent, used for every model.AgentType; there are no separate
// per-type agent types, and the type is only a label used for dispatch.
package agentpool

import (
	"context"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// Agent is the uniform interface every agent type implements.
type Agent interface {
	ID() string
	AgentType() model.AgentType
	// Stateless reports whether concurrent Execute calls on this instance are
	// safe. Stateful agents are serialized per-instance by the Pool.
	Stateless() bool
	Execute(ctx context.Context, actx model.AgentContext) (model.AgentResult, error)
}

// AgentExecutionError wraps model-level failures: the backend answered, but
// with an error or malformed output.
type AgentExecutionError struct {
	AgentID string
	Reason  string
}

func (e *AgentExecutionError) Error() string {
	return "agent execution failed: " + e.AgentID + ": " + e.Reason
}

// ModelError wraps infrastructure-level failures talking to the LLM backend.
type ModelError struct {
	Model  string
	Reason string
}

func (e *ModelError) Error() string {
	return "model infrastructure error: " + e.Model + ": " + e.Reason
}

// wrapExecErr normalizes an agent failure into the orcherr taxonomy.
func wrapExecErr(err error) error {
	switch err.(type) {
	case *AgentExecutionError:
		return orcherr.New(orcherr.KindAgentExecution, "agentpool.execute", err)
	case *ModelError:
		return orcherr.New(orcherr.KindModelInfrastructure, "agentpool.execute", err)
	default:
		return orcherr.New(orcherr.KindAgentExecution, "agentpool.execute", err)
	}
}
