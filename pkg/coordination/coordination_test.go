package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

func TestRegisterAndSetStatus(t *testing.T) {
	m := New()
	m.RegisterTask("t1", "agent-1", 3)

	st, ok := m.GetTaskState("t1")
	require.True(t, ok)
	assert.Equal(t, model.TaskPending, st.Status)
	assert.Equal(t, 3, st.MaxRetries)

	require.NoError(t, m.SetStatus("t1", model.TaskRunning))
	st, _ = m.GetTaskState("t1")
	assert.Equal(t, model.TaskRunning, st.Status)

	require.Error(t, m.SetStatus("unknown", model.TaskRunning))
}

func TestIncrementRetry(t *testing.T) {
	m := New()
	m.RegisterTask("t1", "agent-1", 3)

	n, err := m.IncrementRetry("t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = m.IncrementRetry("t1")
	assert.Equal(t, 2, n)

	_, err = m.IncrementRetry("unknown")
	require.Error(t, err)
}

func TestIsReady_Sequential(t *testing.T) {
	m := New()
	m.RegisterTask("t1", "a", 0)
	m.RegisterTask("t2", "a", 0)
	m.RegisterDependency("t1", "t2", model.DependencySequential, nil)

	results := map[model.TaskID]model.AgentResult{}
	assert.False(t, m.IsReady("t2", results), "predecessor still pending")

	require.NoError(t, m.SetStatus("t1", model.TaskCompleted))
	assert.True(t, m.IsReady("t2", results))

	assert.True(t, m.IsReady("t1", results), "no dependencies is always ready")
}

func TestIsReady_ConditionalPredicate(t *testing.T) {
	m := New()
	m.RegisterTask("t1", "a", 0)
	m.RegisterTask("t2", "a", 0)
	m.RegisterDependency("t1", "t2", model.DependencyConditional, func(r model.AgentResult) bool {
		return r.Confidence >= 0.7
	})
	require.NoError(t, m.SetStatus("t1", model.TaskCompleted))

	low := map[model.TaskID]model.AgentResult{"t1": {Confidence: 0.3}}
	assert.False(t, m.IsReady("t2", low))

	high := map[model.TaskID]model.AgentResult{"t1": {Confidence: 0.9}}
	assert.True(t, m.IsReady("t2", high))
}

func TestCascadeSkip_FailedPredecessor(t *testing.T) {
	m := New()
	all := []model.TaskID{"t1", "t2", "t3"}
	for _, id := range all {
		m.RegisterTask(id, "a", 0)
	}
	m.RegisterDependency("t1", "t2", model.DependencySequential, nil)
	m.RegisterDependency("t2", "t3", model.DependencySequential, nil)

	require.NoError(t, m.SetStatus("t1", model.TaskFailed))
	affected := m.CascadeSkip("t1", all, nil)

	assert.ElementsMatch(t, []model.TaskID{"t2", "t3"}, affected)
	st, _ := m.GetTaskState("t3")
	assert.Equal(t, model.TaskSkipped, st.Status)
}

func TestCascadeSkip_ConditionalPredicateFalse(t *testing.T) {
	m := New()
	all := []model.TaskID{"t1", "t2", "t3"}
	for _, id := range all {
		m.RegisterTask(id, "a", 0)
	}
	m.RegisterDependency("t1", "t2", model.DependencyConditional, func(r model.AgentResult) bool {
		return r.Confidence >= 0.7
	})
	m.RegisterDependency("t2", "t3", model.DependencySequential, nil)

	require.NoError(t, m.SetStatus("t1", model.TaskCompleted))
	results := map[model.TaskID]model.AgentResult{"t1": {Confidence: 0.3}}
	affected := m.CascadeSkip("t1", all, results)

	assert.ElementsMatch(t, []model.TaskID{"t2", "t3"}, affected)
}

func TestCascadeSkip_AlternativePathKeepsTaskAlive(t *testing.T) {
	m := New()
	all := []model.TaskID{"t1", "t2", "t3"}
	for _, id := range all {
		m.RegisterTask(id, "a", 0)
	}
	// t3 depends only on t2, which completes: the failed t1 must not drag it
	// down.
	m.RegisterDependency("t2", "t3", model.DependencySequential, nil)
	require.NoError(t, m.SetStatus("t1", model.TaskFailed))
	require.NoError(t, m.SetStatus("t2", model.TaskCompleted))

	affected := m.CascadeSkip("t1", all, nil)
	assert.Empty(t, affected)
	st, _ := m.GetTaskState("t3")
	assert.Equal(t, model.TaskPending, st.Status)
}

func TestStatistics(t *testing.T) {
	m := New()
	m.RegisterTask("t1", "a", 0)
	m.RegisterTask("t2", "a", 0)
	m.RegisterTask("t3", "a", 0)
	require.NoError(t, m.SetStatus("t1", model.TaskCompleted))
	require.NoError(t, m.SetStatus("t2", model.TaskFailed))
	_, _ = m.IncrementRetry("t2")

	s := m.Statistics()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.TotalRetries)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, RetryBackoff(1), "first retry waits the base delay")
	assert.Equal(t, 200*time.Millisecond, RetryBackoff(2))
	assert.Equal(t, 400*time.Millisecond, RetryBackoff(3))
	assert.Equal(t, 10*time.Second, RetryBackoff(20), "backoff is capped")
}
