package workflow

import "github.com/codeready-toolchain/agentflow/pkg/model"

// PredicateRegistry resolves the names configured on Conditional edges to
// concrete model.Predicate functions. NewPredicateRegistry registers a fixed
// set of built-in names; further names can only be added through Register.
// There is no expression parser and no predicates section in configuration.
type PredicateRegistry struct {
	byName map[string]model.Predicate
}

func NewPredicateRegistry() *PredicateRegistry {
	r := &PredicateRegistry{byName: make(map[string]model.Predicate)}
	r.Register("confidence>=0.7", func(res model.AgentResult) bool { return res.Confidence >= 0.7 })
	r.Register("confidence>=0.5", func(res model.AgentResult) bool { return res.Confidence >= 0.5 })
	r.Register("always", func(model.AgentResult) bool { return true })
	return r
}

func (r *PredicateRegistry) Register(name string, p model.Predicate) {
	r.byName[name] = p
}

func (r *PredicateRegistry) Resolve(name string) model.Predicate {
	return r.byName[name]
}
