package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/agentflow/pkg/agentpool"
	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// BuildFromDecomposition turns a Planning agent's structured decomposition
// into a Workflow, resolving Conditional predicate names against registry.
func BuildFromDecomposition(id model.WorkflowID, plan agentpool.PlanningDecomposition, registry *PredicateRegistry) (model.Workflow, error) {
	b := NewBuilder()
	for _, t := range plan.Tasks {
		if err := b.AddTask(t); err != nil {
			return model.Workflow{}, err
		}
	}
	for _, e := range plan.Edges {
		edge := model.DependencyEdge{From: e.From, To: e.To, Type: e.Type, PredicateName: e.PredicateName}
		if err := b.AddDependency(edge); err != nil {
			return model.Workflow{}, err
		}
		_ = registry.Resolve(e.PredicateName) // validated lazily at readiness-check time
	}
	return b.Build(id)
}

// ParsePlanningResult decodes a Planning agent's AgentResult payload into a
// PlanningDecomposition. Planning agents are expected to return this shape as
// their payload JSON (see agentpool.PlanningDecomposition's doc comment).
func ParsePlanningResult(res model.AgentResult) (agentpool.PlanningDecomposition, error) {
	var plan agentpool.PlanningDecomposition
	if err := json.Unmarshal(res.Payload, &plan); err != nil {
		return plan, fmt.Errorf("parse planning result: %w", err)
	}
	return plan, nil
}
