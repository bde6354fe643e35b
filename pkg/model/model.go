// Package model defines the engine's core data types. Types here are
// plain data; components operate on them rather than embedding behavior, so that
// Checkpoint serialization is a straight walk of the arena (see Design Notes on
// cyclic ownership).
package model

import "time"

// ProjectScope identifies a codebase under work. Immutable per execution.
type ProjectScope struct {
	Root                string             `json:"root"`
	CurrentFile         string             `json:"currentFile,omitempty"`
	LanguageDistribution map[string]float64 `json:"languageDistribution,omitempty"`
}

// Opaque string identifiers, globally unique (TaskId unique within a workflow).
type (
	ConversationID  string
	SubscriptionID  string
	TaskID          string
	HitlRequestID   string
	WorkflowID      string
)

// AgentType is the closed set of agent kinds the engine dispatches against.
type AgentType string

const (
	AgentTypePlanning  AgentType = "Planning"
	AgentTypeCoding    AgentType = "Coding"
	AgentTypeWriting   AgentType = "Writing"
	AgentTypeEvaluator AgentType = "Evaluator"
)

func (t AgentType) Valid() bool {
	switch t {
	case AgentTypePlanning, AgentTypeCoding, AgentTypeWriting, AgentTypeEvaluator:
		return true
	default:
		return false
	}
}

// AgentSpec describes a configured agent instance.
type AgentSpec struct {
	ID          string    `yaml:"id" json:"id"`
	Type        AgentType `yaml:"type" json:"type"`
	Model       string    `yaml:"model" json:"model"`
	SystemPrompt string   `yaml:"systemPrompt" json:"systemPrompt"`
	Temperature float64   `yaml:"temperature" json:"temperature"` // clamped to [0,2]
	TokenBudget int       `yaml:"maxTokens" json:"tokenBudget"`
}

// ClampTemperature enforces the [0,2] invariant in place.
func (a *AgentSpec) ClampTemperature() {
	if a.Temperature < 0 {
		a.Temperature = 0
	}
	if a.Temperature > 2 {
		a.Temperature = 2
	}
}

// ToolResult is a prior tool invocation's outcome, carried in AgentContext.
type ToolResult struct {
	ToolName string `json:"toolName"`
	Success  bool   `json:"success"`
	Output   string `json:"output"`
}

// HistoryMessage is one turn of conversation history.
type HistoryMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// AgentContext is the per-task input assembled by the Context Provider (C1).
// Created when a task becomes ready; destroyed when the task terminates.
type AgentContext struct {
	TaskID         TaskID            `json:"taskId"`
	Description    string            `json:"description"`
	RAGContext     string            `json:"ragContext,omitempty"`
	HistoryContext string            `json:"historyContext,omitempty"`
	ToolResults    []ToolResult      `json:"toolResults,omitempty"`
	History        []HistoryMessage  `json:"history,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// charsPerToken is the shared 4-chars-per-token approximation. Every budget
// check in the engine counts tokens this way; a real tokenizer could be swapped
// in as long as it never exceeds the stated budgets.
const charsPerToken = 4

// EstimateTokens applies the shared character heuristic.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Prompt assembles the full prompt string for this context.
func (c AgentContext) Prompt() string {
	out := c.Description
	if c.RAGContext != "" {
		out += "\n\n## Retrieved Context\n" + c.RAGContext
	}
	if c.HistoryContext != "" {
		out += "\n\n## Recent History\n" + c.HistoryContext
	}
	for _, tr := range c.ToolResults {
		out += "\n\n## Tool Result: " + tr.ToolName + "\n" + tr.Output
	}
	return out
}

// TokenEstimate returns the estimated token count of the assembled prompt.
func (c AgentContext) TokenEstimate() int {
	return EstimateTokens(c.Prompt())
}

// AgentResult is the per-task output an agent produces.
type AgentResult struct {
	AgentID      string          `json:"agentId"`
	Payload      []byte          `json:"payload"` // opaque JSON
	Confidence   float64         `json:"confidence"` // clamped to [0,1]
	RequiresHitl bool            `json:"requiresHitl"`
	TokensUsed   *int            `json:"tokensUsed,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
}

// ClampConfidence enforces the [0,1] invariant in place.
func (r *AgentResult) ClampConfidence() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}

// RecoveryStrategy determines how the coordination manager reacts to a task
// failure.
type RecoveryStrategy struct {
	Kind          RecoveryKind
	RetryN        int    // only meaningful when Kind == RecoveryRetryN
	CompensateTaskID TaskID // only meaningful when Kind == RecoveryCompensate
}

type RecoveryKind string

const (
	RecoveryFail       RecoveryKind = "Fail"
	RecoverySkip       RecoveryKind = "Skip"
	RecoveryRetryN     RecoveryKind = "RetryN"
	RecoveryCompensate RecoveryKind = "Compensate"
)

// DependencyType distinguishes unconditional from predicated edges.
type DependencyType string

const (
	DependencySequential  DependencyType = "Sequential"
	DependencyConditional DependencyType = "Conditional"
)

// Predicate is a pure boolean function of the predecessor's AgentResult.
// Predicates are resolved by name from a registry of built-in names that
// callers may extend in code (see pkg/workflow); configuration does not add
// predicates.
type Predicate func(AgentResult) bool

// DependencyEdge is a DAG edge between two TaskNodes.
type DependencyEdge struct {
	From          TaskID
	To            TaskID
	Type          DependencyType
	PredicateName string // non-empty only when Type == DependencyConditional
}

// TaskNode is a DAG vertex.
type TaskNode struct {
	TaskID           TaskID            `json:"taskId"`
	AgentID          string            `json:"agentId"`
	Description      string            `json:"description"`
	RecoveryStrategy RecoveryStrategy  `json:"recoveryStrategy"`
	RequiresHitl     bool              `json:"requiresHitl"`
	WriteFiles       []string          `json:"writeFiles,omitempty"`
	ReadFiles        []string          `json:"readFiles,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TaskStatus is the runtime state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskRunning   TaskStatus = "Running"
	TaskCompleted TaskStatus = "Completed"
	TaskFailed    TaskStatus = "Failed"
	TaskSkipped   TaskStatus = "Skipped"
)

// TaskState is the runtime record the Coordination Manager (C4) keeps per task.
type TaskState struct {
	TaskID      TaskID            `json:"taskId"`
	AgentID     string            `json:"agentId"`
	Status      TaskStatus        `json:"status"`
	RetryCount  int               `json:"retryCount"`
	MaxRetries  int               `json:"maxRetries"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Workflow is the DAG plus its Kahn-layered waves.
//
// Invariant: the graph is acyclic; waves is the canonical Kahn layering (every
// task appears in exactly one wave; a task's wave index is strictly greater
// than any predecessor's).
type Workflow struct {
	ID    WorkflowID
	Nodes []TaskNode       // arena: tasks reference each other by TaskID, not pointer
	Edges []DependencyEdge
	Waves [][]TaskID
}

// NodeByID is an O(n) convenience lookup; callers that need repeated lookups
// should build their own index (see pkg/workflow.dag for the indexed form).
func (w *Workflow) NodeByID(id TaskID) (TaskNode, bool) {
	for _, n := range w.Nodes {
		if n.TaskID == id {
			return n, true
		}
	}
	return TaskNode{}, false
}

// RiskLevel classifies a HitlRequest's severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// HitlMode selects how the HITL Gate consults the approval queue.
type HitlMode string

const (
	HitlBlocking    HitlMode = "Blocking"
	HitlAsync       HitlMode = "Async"
	HitlSampleBased HitlMode = "SampleBased"
)

// HitlRequest is created by C5 when a ready task requires human approval;
// destroyed after a decision is recorded.
type HitlRequest struct {
	RequestID      HitlRequestID `json:"requestId"`
	TaskID         TaskID        `json:"taskId"`
	AgentID        string        `json:"agentId"`
	Description    string        `json:"description"`
	RiskLevel      RiskLevel     `json:"riskLevel"`
	ProposedAction string        `json:"proposedAction"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// HitlDecision is posted by the external actor (UI or API) to resolve a request.
type HitlDecision struct {
	Approved        bool   `json:"approved"`
	Feedback        string `json:"feedback,omitempty"`
	ModifiedContent string `json:"modifiedContent,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`
}

// EventSourceKind distinguishes orchestrator-level from agent-level events.
type EventSourceKind string

const (
	SourceOrchestrator EventSourceKind = "Orchestrator"
	SourceAgent        EventSourceKind = "Agent"
)

// EventSource identifies who produced a StatusEvent.
type EventSource struct {
	Kind    EventSourceKind `json:"kind"`
	AgentID string          `json:"agentId,omitempty"`
	Type    AgentType       `json:"type,omitempty"`
}

// EventKind is the closed set of StatusEvent kinds. Do not extend
// without updating this list and every consumer that switches on it.
type EventKind string

const (
	EventExecutionStarted     EventKind = "ExecutionStarted"
	EventQueryAnalyzed        EventKind = "QueryAnalyzed"
	EventPlanReady            EventKind = "PlanReady"
	EventAgentStarted         EventKind = "AgentStarted"
	EventAgentThinking        EventKind = "AgentThinking"
	EventWorkflowStepStarted  EventKind = "WorkflowStepStarted"
	EventWorkflowStepCompleted EventKind = "WorkflowStepCompleted"
	EventAgentCompleted       EventKind = "AgentCompleted"
	EventAgentFailed          EventKind = "AgentFailed"
	EventHitlRequested        EventKind = "HitlRequested"
	EventHitlResolved         EventKind = "HitlResolved"
	EventExecutionCompleted   EventKind = "ExecutionCompleted"
	EventExecutionFailed      EventKind = "ExecutionFailed"
	// EventBufferOverflow is the one-shot sentinel injected by the subscription
	// buffer on overflow; it is not produced by any component, only by C7 itself.
	EventBufferOverflow EventKind = "BufferOverflow"
)

// StatusEvent is totally ordered per subscription by Timestamp (monotonic) and
// by Seq as an insertion-order tiebreak.
type StatusEvent struct {
	SubscriptionID SubscriptionID `json:"subscriptionId"`
	Timestamp      time.Time      `json:"timestamp"`
	Seq            uint64         `json:"seq"`
	Source         EventSource    `json:"source"`
	Kind           EventKind      `json:"kind"`
	Payload        any            `json:"payload,omitempty"`
}

// BufferOverflowPayload is the payload of an EventBufferOverflow sentinel.
type BufferOverflowPayload struct {
	DroppedCount int `json:"droppedCount"`
}

// Checkpoint is a snapshot used for resumption.
type Checkpoint struct {
	WorkflowID      WorkflowID              `json:"workflowId"`
	CompletedTaskIDs []TaskID               `json:"completedTaskIds"`
	PendingTasks    []TaskNode              `json:"pendingTasks"`
	SharedContext   map[TaskID]AgentResult  `json:"sharedContext"`
	Version         int                     `json:"version"`
}
