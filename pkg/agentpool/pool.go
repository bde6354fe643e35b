package agentpool

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// entry pairs an Agent with the semaphore used to serialize calls when it
// declares itself stateful.
type entry struct {
	agent Agent
	sem   chan struct{} // capacity 1, nil if Stateless()
}

// Pool is a read-mostly mapping from agent id to instance, plus a secondary
// by-type index used for round-robin dispatch.
type Pool struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	byType  map[model.AgentType][]*entry
	rrIndex map[model.AgentType]int
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{
		byID:    make(map[string]*entry),
		byType:  make(map[model.AgentType][]*entry),
		rrIndex: make(map[model.AgentType]int),
	}
}

// Register adds an agent to the pool. It updates the pool's maps in place
// under the write lock; the maps are not copied. Callers typically register
// everything at startup before concurrent dispatch begins.
func (p *Pool) Register(a Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := &entry{agent: a}
	if !a.Stateless() {
		e.sem = make(chan struct{}, 1)
	}
	p.byID[a.ID()] = e
	p.byType[a.AgentType()] = append(p.byType[a.AgentType()], e)
}

// GetByID returns the specific agent, or ErrNotFound.
func (p *Pool) GetByID(id string) (Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, orcherr.New(orcherr.KindNotFound, "agentpool.GetByID", orcherr.ErrNotFound)
	}
	return e.agent, nil
}

// GetByType returns all agents of that type.
func (p *Pool) GetByType(t model.AgentType) []Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := p.byType[t]
	out := make([]Agent, len(entries))
	for i, e := range entries {
		out[i] = e.agent
	}
	return out
}

// PickByType returns one agent of the given type via round-robin, or
// ErrNotFound if none are registered.
func (p *Pool) PickByType(t model.AgentType) (Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.byType[t]
	if len(entries) == 0 {
		return nil, orcherr.New(orcherr.KindNotFound, "agentpool.PickByType", orcherr.ErrNotFound)
	}
	idx := p.rrIndex[t] % len(entries)
	p.rrIndex[t] = idx + 1
	return entries[idx].agent, nil
}

// Execute dispatches to the named agent, serializing calls per-instance via a
// lightweight semaphore when the agent is not stateless.
func (p *Pool) Execute(ctx context.Context, agentID string, actx model.AgentContext) (model.AgentResult, error) {
	p.mu.RLock()
	e, ok := p.byID[agentID]
	p.mu.RUnlock()
	if !ok {
		return model.AgentResult{}, orcherr.New(orcherr.KindNotFound, "agentpool.Execute", orcherr.ErrNotFound)
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return model.AgentResult{}, orcherr.New(orcherr.KindAgentExecution, "agentpool.Execute", ctx.Err())
		}
	}

	res, err := e.agent.Execute(ctx, actx)
	if err != nil {
		return model.AgentResult{}, wrapExecErr(err)
	}
	res.ClampConfidence()
	return res, nil
}
