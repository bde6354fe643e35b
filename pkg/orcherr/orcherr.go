// Package orcherr defines the engine's typed error kinds and the wrapper type
// components use to report failures across boundaries.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of failure categories. Component boundaries return
// errors wrapping one of these; callers branch on Kind rather than string-matching.
type Kind int

const (
	// KindConfig: invalid or missing configuration; fatal at startup.
	KindConfig Kind = iota
	// KindDagConstruction: cycle, dangling edge, unknown agent id; fatal to the
	// workflow, reported to the subscriber.
	KindDagConstruction
	// KindAgentExecution: model returned an error or malformed output; retryable
	// per recovery strategy.
	KindAgentExecution
	// KindModelInfrastructure: connection/timeout to an LLM backend; retryable.
	KindModelInfrastructure
	// KindFileLockTimeout: could not acquire lock in time; retryable per strategy.
	KindFileLockTimeout
	// KindHitlRejected: operator declined; task is Skipped, not a hard error.
	KindHitlRejected
	// KindNotFound: unknown subscription/task id; surfaced to API as 404.
	KindNotFound
	// KindInternal: invariant violation; fatal; logged with full context.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "Config"
	case KindDagConstruction:
		return "DagConstruction"
	case KindAgentExecution:
		return "AgentExecution"
	case KindModelInfrastructure:
		return "ModelInfrastructure"
	case KindFileLockTimeout:
		return "FileLockTimeout"
	case KindHitlRejected:
		return "HitlRejected"
	case KindNotFound:
		return "NotFound"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the wrapper type carried across component boundaries.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "workflow.buildDAG"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) with the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal if err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors for common cases, so callers can use errors.Is against a
// stable value when no extra context is needed.
var (
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timed out")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrClosed           = errors.New("closed")
	ErrCycleDetected    = errors.New("cycle detected in workflow graph")
	ErrDanglingEdge     = errors.New("edge references unknown task id")
	ErrHitlRejected     = errors.New("hitl request rejected")
	ErrBudgetExceeded   = errors.New("token budget exceeded")
	ErrWorkflowAborted  = errors.New("workflow aborted")
)
