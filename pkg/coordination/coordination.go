// Package coordination implements the Coordination Manager (C4): per-task
// runtime state, dependency readiness, retry counters, and statistics.
package coordination

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// Statistics aggregates task counts by status.
type Statistics struct {
	Total        int
	Pending      int
	Running      int
	Completed    int
	Failed       int
	Skipped      int
	TotalRetries int
}

// dependency records one edge relevant to readiness checks.
type dependency struct {
	from      model.TaskID
	depType   model.DependencyType
	predicate model.Predicate // non-nil only for Conditional
}

// Manager tracks TaskState for every task in a workflow plus the dependency
// edges needed to answer isReady/cascade-skip queries.
type Manager struct {
	mu    sync.RWMutex
	state map[model.TaskID]*model.TaskState
	deps  map[model.TaskID][]dependency // taskID -> its incoming dependencies
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		state: make(map[model.TaskID]*model.TaskState),
		deps:  make(map[model.TaskID][]dependency),
	}
}

// RegisterTask registers a task's initial state.
func (m *Manager) RegisterTask(taskID model.TaskID, agentID string, maxRetries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[taskID] = &model.TaskState{
		TaskID:     taskID,
		AgentID:    agentID,
		Status:     model.TaskPending,
		MaxRetries: maxRetries,
		Metadata:   map[string]string{},
	}
}

// RegisterDependency adds an incoming edge to `to` from `from`.
func (m *Manager) RegisterDependency(from, to model.TaskID, depType model.DependencyType, predicate model.Predicate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[to] = append(m.deps[to], dependency{from: from, depType: depType, predicate: predicate})
}

// SetStatus transitions taskID's status.
func (m *Manager) SetStatus(taskID model.TaskID, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[taskID]
	if !ok {
		return orcherr.New(orcherr.KindNotFound, "coordination.SetStatus", orcherr.ErrNotFound)
	}
	st.Status = status
	return nil
}

// IncrementRetry bumps taskID's retry counter and returns the new count.
func (m *Manager) IncrementRetry(taskID model.TaskID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[taskID]
	if !ok {
		return 0, orcherr.New(orcherr.KindNotFound, "coordination.IncrementRetry", orcherr.ErrNotFound)
	}
	st.RetryCount++
	return st.RetryCount, nil
}

// SetMetadata stores a key/value pair on taskID's state.
func (m *Manager) SetMetadata(taskID model.TaskID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[taskID]
	if !ok {
		return orcherr.New(orcherr.KindNotFound, "coordination.SetMetadata", orcherr.ErrNotFound)
	}
	if st.Metadata == nil {
		st.Metadata = map[string]string{}
	}
	st.Metadata[key] = value
	return nil
}

// GetTaskState returns a copy of taskID's state.
func (m *Manager) GetTaskState(taskID model.TaskID) (model.TaskState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[taskID]
	if !ok {
		return model.TaskState{}, false
	}
	return *st, true
}

// GetAllStates returns a copy of every tracked task's state.
func (m *Manager) GetAllStates() []model.TaskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TaskState, 0, len(m.state))
	for _, st := range m.state {
		out = append(out, *st)
	}
	return out
}

// IsReady reports whether every incoming dependency of taskID is satisfied:
// Completed (Sequential) or Completed AND predicate(result) (Conditional).
// Results needed to evaluate predicates are supplied via results.
func (m *Manager) IsReady(taskID model.TaskID, results map[model.TaskID]model.AgentResult) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deps[taskID] {
		srcState, ok := m.state[d.from]
		if !ok || srcState.Status != model.TaskCompleted {
			return false
		}
		if d.depType == model.DependencyConditional {
			res, ok := results[d.from]
			if !ok || d.predicate == nil || !d.predicate(res) {
				return false
			}
		}
	}
	return true
}

// CascadeSkip walks forward from a skipped/failed task, marking any dependent
// task Skipped once ALL of its incoming edges can no longer be satisfied
// (i.e. every path to it is blocked). affected lists the task ids that
// actually transitioned so the caller can recurse/emit events.
func (m *Manager) CascadeSkip(start model.TaskID, allTaskIDs []model.TaskID, results map[model.TaskID]model.AgentResult) []model.TaskID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []model.TaskID
	changed := true
	for changed {
		changed = false
		for _, tid := range allTaskIDs {
			st, ok := m.state[tid]
			if !ok || st.Status != model.TaskPending {
				continue
			}
			deps := m.deps[tid]
			if len(deps) == 0 {
				continue
			}
			allBlocked := true
			anyBlocked := false
			for _, d := range deps {
				srcState := m.state[d.from]
				if srcState == nil {
					allBlocked = false
					continue
				}
				switch srcState.Status {
				case model.TaskSkipped, model.TaskFailed:
					anyBlocked = true
					continue
				case model.TaskCompleted:
					if d.depType == model.DependencyConditional {
						res, ok := results[d.from]
						if !ok || d.predicate == nil || !d.predicate(res) {
							anyBlocked = true
							continue
						}
					}
					allBlocked = false
				default:
					allBlocked = false
				}
			}
			if anyBlocked && allBlocked {
				st.Status = model.TaskSkipped
				affected = append(affected, tid)
				changed = true
			}
		}
	}
	return affected
}

// Statistics computes aggregate counts across all tracked tasks.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Statistics
	for _, st := range m.state {
		s.Total++
		s.TotalRetries += st.RetryCount
		switch st.Status {
		case model.TaskPending:
			s.Pending++
		case model.TaskRunning:
			s.Running++
		case model.TaskCompleted:
			s.Completed++
		case model.TaskFailed:
			s.Failed++
		case model.TaskSkipped:
			s.Skipped++
		}
	}
	return s
}

// RetryBackoff computes the exponential backoff before the retryCount-th
// retry (1-based): 100ms for the first, doubling each retry after, capped at
// 10s.
func RetryBackoff(retryCount int) time.Duration {
	const base = 100 * time.Millisecond
	const max = 10 * time.Second
	d := base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
