package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/agentpool"
	agentctx "github.com/codeready-toolchain/agentflow/pkg/context"
	"github.com/codeready-toolchain/agentflow/pkg/coordination"
	"github.com/codeready-toolchain/agentflow/pkg/eventbus"
	"github.com/codeready-toolchain/agentflow/pkg/filelock"
	"github.com/codeready-toolchain/agentflow/pkg/hitl"
	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// CheckpointInterval selects when the engine persists a Checkpoint.
type CheckpointInterval string

const (
	CheckpointAfterWave CheckpointInterval = "after-wave"
	CheckpointAfterTask CheckpointInterval = "after-task"
	CheckpointOff       CheckpointInterval = "off"
)

// CheckpointStore is the persistence boundary the Workflow Engine depends on.
// pkg/storage provides a pgx-backed implementation; kept as an interface here
// so this package never imports the storage driver directly.
type CheckpointStore interface {
	Save(ctx context.Context, cp model.Checkpoint) error
	Load(ctx context.Context, workflowID model.WorkflowID) (model.Checkpoint, error)
}

// Config controls wave execution.
type Config struct {
	MaxParallelTasks   int
	MaxRetries         int
	LockTimeout        time.Duration
	TaskTimeout        time.Duration
	CheckpointInterval CheckpointInterval
}

func DefaultConfig() Config {
	return Config{
		MaxParallelTasks:   4,
		MaxRetries:         3,
		LockTimeout:        30 * time.Second,
		TaskTimeout:        5 * time.Minute,
		CheckpointInterval: CheckpointAfterWave,
	}
}

// Engine is the Workflow Engine (C6): it builds a DAG from a Planner agent's
// decomposition and drives wave-parallel execution across the context
// provider, agent pool, lock manager, coordination manager, HITL gate, and
// event bus. Wave dispatch is a bounded semaphore plus per-group goroutines
// collected on a WaitGroup.
type Engine struct {
	cfg        Config
	ctxProv    *agentctx.Provider
	pool       *agentpool.Pool
	locks      *filelock.Manager
	coord      *coordination.Manager
	gate       *hitl.Gate
	bus        *eventbus.Registry
	predicates *PredicateRegistry
	store      CheckpointStore
}

func New(cfg Config, ctxProv *agentctx.Provider, pool *agentpool.Pool, locks *filelock.Manager, coord *coordination.Manager, gate *hitl.Gate, bus *eventbus.Registry, predicates *PredicateRegistry, store CheckpointStore) *Engine {
	return &Engine{cfg: cfg, ctxProv: ctxProv, pool: pool, locks: locks, coord: coord, gate: gate, bus: bus, predicates: predicates, store: store}
}

// sharedContext threads completed AgentResults to dependent tasks: a plain
// map keyed by TaskID, not embedded back-references.
type sharedContext struct {
	mu      sync.Mutex
	results map[model.TaskID]model.AgentResult
}

func newSharedContext() *sharedContext {
	return &sharedContext{results: make(map[model.TaskID]model.AgentResult)}
}

func (s *sharedContext) set(id model.TaskID, r model.AgentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = r
}

func (s *sharedContext) snapshot() map[model.TaskID]model.AgentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.TaskID]model.AgentResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// compQueue collects (failed task, compensation task) pairs raised during a
// wave. Compensations run after the wave's tasks have finished and released
// their locks, so a compensation that touches the failed task's files cannot
// deadlock against it.
type compQueue struct {
	mu      sync.Mutex
	entries []compEntry
}

type compEntry struct {
	failed model.TaskID
	comp   model.TaskID
}

func (q *compQueue) add(failed, comp model.TaskID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, compEntry{failed: failed, comp: comp})
}

func (q *compQueue) drain() []compEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (e *Engine) publish(subID model.SubscriptionID, source model.EventSource, kind model.EventKind, payload any) {
	e.bus.Publish(model.StatusEvent{SubscriptionID: subID, Source: source, Kind: kind, Payload: payload})
}

var orchestratorSource = model.EventSource{Kind: model.SourceOrchestrator}

// Execute runs one full query: plan, build DAG, execute waves, checkpoint,
// and emit the terminal ExecutionCompleted/ExecutionFailed event. It is
// intended to be run in its own goroutine by the Execution Manager (C8); it
// does not return a value, only emits events.
func (e *Engine) Execute(ctx context.Context, subID model.SubscriptionID, conv model.ConversationID, wfID model.WorkflowID, query string, scope model.ProjectScope) {
	e.publish(subID, orchestratorSource, model.EventExecutionStarted, map[string]string{"query": query})

	planner, err := e.pool.PickByType(model.AgentTypePlanning)
	if err != nil {
		e.fail(subID, fmt.Errorf("no planning agent available: %w", err))
		return
	}

	planCtx := model.AgentContext{TaskID: "planning", Description: query}
	planCtx.RAGContext = e.ctxProv.RetrieveContext(ctx, query, scope, conv)

	planResult, err := e.pool.Execute(ctx, planner.ID(), planCtx)
	if err != nil {
		e.fail(subID, fmt.Errorf("planning failed: %w", err))
		return
	}
	e.publish(subID, orchestratorSource, model.EventQueryAnalyzed, nil)

	decomposition, err := ParsePlanningResult(planResult)
	if err != nil {
		e.fail(subID, orcherr.New(orcherr.KindDagConstruction, "workflow.Execute", err))
		return
	}

	wf, err := BuildFromDecomposition(wfID, decomposition, e.predicates)
	if err != nil {
		e.fail(subID, err)
		return
	}
	e.publish(subID, orchestratorSource, model.EventPlanReady, map[string]int{"taskCount": len(wf.Nodes), "waveCount": len(wf.Waves)})

	for _, n := range wf.Nodes {
		maxRetries := e.cfg.MaxRetries
		if n.RecoveryStrategy.Kind == model.RecoveryRetryN {
			maxRetries = n.RecoveryStrategy.RetryN
		}
		e.coord.RegisterTask(n.TaskID, n.AgentID, maxRetries)
	}
	for _, edge := range wf.Edges {
		e.coord.RegisterDependency(edge.From, edge.To, edge.Type, e.predicates.Resolve(edge.PredicateName))
	}

	shared := newSharedContext()
	allIDs := make([]model.TaskID, len(wf.Nodes))
	for i, n := range wf.Nodes {
		allIDs[i] = n.TaskID
	}

	// Tasks referenced as compensation targets are held in reserve: they run
	// only when their owning task fails, never as part of normal wave dispatch.
	compTargets := make(map[model.TaskID]bool)
	for _, n := range wf.Nodes {
		if n.RecoveryStrategy.Kind == model.RecoveryCompensate && n.RecoveryStrategy.CompensateTaskID != "" {
			compTargets[n.RecoveryStrategy.CompensateTaskID] = true
		}
	}
	comps := &compQueue{}

	aborted := false
	for _, wave := range wf.Waves {
		if aborted {
			break
		}
		e.runWave(ctx, subID, conv, scope, wf, wave, shared, &aborted, compTargets, comps)
		e.runCompensations(ctx, subID, conv, scope, wf, shared, comps)

		results := shared.snapshot()
		for _, tid := range wave {
			st, _ := e.coord.GetTaskState(tid)
			if st.Status == model.TaskFailed || st.Status == model.TaskSkipped {
				e.coord.CascadeSkip(tid, allIDs, results)
			}
		}

		if e.cfg.CheckpointInterval == CheckpointAfterWave {
			e.checkpoint(ctx, wf, shared)
		}
	}

	// Compensation tasks whose owners never failed did not run; close them out
	// so the workflow's terminal statistics have no dangling Pending entries.
	for tid := range compTargets {
		if st, ok := e.coord.GetTaskState(tid); ok && st.Status == model.TaskPending {
			e.coord.SetStatus(tid, model.TaskSkipped)
		}
	}

	if aborted {
		e.publish(subID, orchestratorSource, model.EventExecutionFailed, map[string]string{"error": "workflow aborted"})
		return
	}

	stats := e.coord.Statistics()
	summary := fmt.Sprintf("workflow %s: %d completed, %d skipped, %d failed", wfID, stats.Completed, stats.Skipped, stats.Failed)
	e.ctxProv.StoreExchange(ctx, query, summary, conv)
	e.publish(subID, orchestratorSource, model.EventExecutionCompleted, map[string]int{"taskCount": len(wf.Nodes)})
}

func (e *Engine) fail(subID model.SubscriptionID, err error) {
	slog.Error("workflow execution failed", "error", err)
	e.publish(subID, orchestratorSource, model.EventExecutionFailed, map[string]string{"error": err.Error()})
}

// runWave dispatches a wave's ready tasks up to MaxParallelTasks concurrently.
// Tasks whose write-file sets overlap are grouped by conflictGroups and run
// sequentially within their group to avoid pointless lock contention; groups
// themselves still run concurrently with each other up to the parallelism cap.
func (e *Engine) runWave(ctx context.Context, subID model.SubscriptionID, conv model.ConversationID, scope model.ProjectScope, wf model.Workflow, wave []model.TaskID, shared *sharedContext, aborted *bool, compTargets map[model.TaskID]bool, comps *compQueue) {
	results := shared.snapshot()
	var ready []model.TaskID
	for _, tid := range wave {
		if compTargets[tid] {
			continue // held in reserve for its owning task's failure
		}
		st, _ := e.coord.GetTaskState(tid)
		if st.Status != model.TaskPending {
			continue
		}
		if e.coord.IsReady(tid, results) {
			ready = append(ready, tid)
			continue
		}
		// Every predecessor is terminal once its wave has run, so a task that
		// is not ready by its own wave never will be: a conditional predicate
		// came back false, or a predecessor was skipped or failed.
		e.coord.SetStatus(tid, model.TaskSkipped)
	}
	if len(ready) == 0 {
		return
	}

	node := func(id model.TaskID) model.TaskNode {
		n, _ := wf.NodeByID(id)
		return n
	}

	groups := conflictGroups(wf.Nodes, ready)

	sem := make(chan struct{}, e.cfg.MaxParallelTasks)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, group := range groups {
		group := group
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for _, tid := range group {
				if e.runTask(ctx, subID, conv, scope, node(tid), shared, comps) != nil {
					// An unset strategy is handled as Fail (see handleFailure).
					k := node(tid).RecoveryStrategy.Kind
					mu.Lock()
					*aborted = *aborted || k == model.RecoveryFail || k == ""
					mu.Unlock()
				}
				if e.cfg.CheckpointInterval == CheckpointAfterTask {
					e.checkpoint(ctx, wf, shared)
				}
			}
		}()
	}
	wg.Wait()
}

// runTask executes a single task end-to-end: context assembly, HITL gate,
// file locks, agent execution, state update, event emission. It returns nil
// when the task succeeded or its failure was absorbed (Skip, a RetryN retry
// that later succeeded), and the failure cause otherwise (Fail, RetryN
// exhausted, Compensate); runWave aborts the workflow only for Fail.
func (e *Engine) runTask(ctx context.Context, subID model.SubscriptionID, conv model.ConversationID, scope model.ProjectScope, node model.TaskNode, shared *sharedContext, comps *compQueue) error {
	e.coord.SetStatus(node.TaskID, model.TaskRunning)

	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	actx := model.AgentContext{
		TaskID:      node.TaskID,
		Description: node.Description,
		Metadata:    node.Metadata,
	}
	actx.RAGContext = e.ctxProv.RetrieveContext(taskCtx, node.Description, scope, conv)

	gateSrc := model.EventSource{Kind: model.SourceAgent, AgentID: node.AgentID}
	outcome := e.gate.Consult(taskCtx, node, node.Description, func(req model.HitlRequest) {
		e.publish(subID, gateSrc, model.EventHitlRequested, map[string]string{
			"taskId": string(node.TaskID), "requestId": string(req.RequestID), "risk": string(req.RiskLevel),
		})
	})
	if outcome.Gated {
		e.publish(subID, gateSrc, model.EventHitlResolved, map[string]bool{"approved": outcome.Approved})
		if !outcome.Approved {
			e.coord.SetStatus(node.TaskID, model.TaskSkipped)
			return nil
		}
	}

	var handle *filelock.Handle
	if len(node.WriteFiles) > 0 || len(node.ReadFiles) > 0 {
		var err error
		handle, err = e.acquireFileLocks(taskCtx, node)
		if err != nil {
			return e.handleFailure(node, err, comps)
		}
		defer e.locks.Release(handle)
	}

	src := model.EventSource{Kind: model.SourceAgent, AgentID: node.AgentID}
	e.publish(subID, src, model.EventWorkflowStepStarted, map[string]string{"taskId": string(node.TaskID)})

	for {
		e.publish(subID, src, model.EventAgentStarted, map[string]string{"taskId": string(node.TaskID)})

		result, err := e.pool.Execute(taskCtx, node.AgentID, actx)
		if err != nil {
			e.publish(subID, src, model.EventAgentFailed, map[string]string{"taskId": string(node.TaskID), "error": err.Error()})
			ferr := e.handleFailure(node, err, comps)
			if ferr == nil {
				st, _ := e.coord.GetTaskState(node.TaskID)
				if st.Status == model.TaskPending {
					continue // RetryN: backoff already applied inside handleFailure
				}
				return nil // Skip absorbed the failure
			}
			return ferr // Fail, RetryN exhausted, or Compensate pending
		}

		shared.set(node.TaskID, result)
		e.coord.SetStatus(node.TaskID, model.TaskCompleted)
		e.publish(subID, src, model.EventAgentCompleted, map[string]string{"taskId": string(node.TaskID)})
		e.publish(subID, src, model.EventWorkflowStepCompleted, map[string]string{"taskId": string(node.TaskID)})
		return nil
	}
}

func (e *Engine) acquireFileLocks(ctx context.Context, node model.TaskNode) (*filelock.Handle, error) {
	if len(node.WriteFiles) > 0 {
		return e.locks.AcquireAll(ctx, node.WriteFiles, filelock.Exclusive, node.TaskID, e.cfg.LockTimeout)
	}
	return e.locks.AcquireAll(ctx, node.ReadFiles, filelock.Shared, node.TaskID, e.cfg.LockTimeout)
}

// handleFailure applies node.RecoveryStrategy. It returns nil when the
// failure was absorbed (Skip, or a retry is still available); any non-nil
// return reaches runWave, which aborts the workflow only for the Fail
// strategy.
func (e *Engine) handleFailure(node model.TaskNode, cause error, comps *compQueue) error {
	switch node.RecoveryStrategy.Kind {
	case model.RecoverySkip:
		e.coord.SetStatus(node.TaskID, model.TaskSkipped)
		return nil
	case model.RecoveryRetryN:
		count, _ := e.coord.IncrementRetry(node.TaskID)
		if count <= node.RecoveryStrategy.RetryN {
			time.Sleep(coordination.RetryBackoff(count))
			e.coord.SetStatus(node.TaskID, model.TaskPending)
			return nil
		}
		e.coord.SetStatus(node.TaskID, model.TaskFailed)
		return cause
	case model.RecoveryCompensate:
		if node.RecoveryStrategy.CompensateTaskID != "" {
			// The compensation task runs first, after this wave's tasks have
			// released their locks; runCompensations marks the node Failed
			// once it has.
			comps.add(node.TaskID, node.RecoveryStrategy.CompensateTaskID)
			return cause
		}
		e.coord.SetStatus(node.TaskID, model.TaskFailed)
		return cause
	default: // RecoveryFail
		e.coord.SetStatus(node.TaskID, model.TaskFailed)
		return cause
	}
}

// runCompensations drains the wave's compensation queue: each compensation
// task executes as a normal task (events, locks, its own recovery strategy),
// and only then is its failed owner marked Failed. A compensation that itself
// fails with a Compensate strategy enqueues again and is picked up by the
// next drain round; the status checks make the loop finite.
func (e *Engine) runCompensations(ctx context.Context, subID model.SubscriptionID, conv model.ConversationID, scope model.ProjectScope, wf model.Workflow, shared *sharedContext, comps *compQueue) {
	for {
		entries := comps.drain()
		if len(entries) == 0 {
			return
		}
		for _, entry := range entries {
			compNode, ok := wf.NodeByID(entry.comp)
			if !ok {
				slog.Error("compensation task not in workflow", "task_id", entry.failed, "compensation_id", entry.comp)
				e.coord.SetStatus(entry.failed, model.TaskFailed)
				continue
			}
			if st, ok := e.coord.GetTaskState(entry.comp); ok && st.Status == model.TaskPending {
				if err := e.runTask(ctx, subID, conv, scope, compNode, shared, comps); err != nil {
					slog.Error("compensation task failed", "task_id", entry.failed, "compensation_id", entry.comp, "error", err)
				}
			}
			e.coord.SetStatus(entry.failed, model.TaskFailed)
		}
	}
}

func (e *Engine) checkpoint(ctx context.Context, wf model.Workflow, shared *sharedContext) {
	if e.store == nil {
		return
	}
	states := e.coord.GetAllStates()
	completed := make([]model.TaskID, 0, len(states))
	var pending []model.TaskNode
	for _, st := range states {
		if st.Status == model.TaskCompleted {
			completed = append(completed, st.TaskID)
		}
		if st.Status == model.TaskPending {
			if n, ok := wf.NodeByID(st.TaskID); ok {
				pending = append(pending, n)
			}
		}
	}
	cp := model.Checkpoint{
		WorkflowID:       wf.ID,
		CompletedTaskIDs: completed,
		PendingTasks:     pending,
		SharedContext:    shared.snapshot(),
		Version:          1,
	}
	if err := e.store.Save(ctx, cp); err != nil {
		slog.Error("checkpoint save failed", "workflow_id", wf.ID, "error", err)
	}
}
