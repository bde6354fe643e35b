// Package collab declares the external collaborator contracts the core invokes
// but does not implement: the vector store / smart-RAG pipeline, the
// conversation history manager, and the generic Tool.call contract. Production
// wiring of SmartRag/HistoryManager lives outside this module; pkg/mcptool
// implements Tool against the MCP SDK.
package collab

import (
	"context"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// Fragment is a ranked snippet returned by the retrieval subsystem.
type Fragment struct {
	Content  string
	Summary  string
	Source   string
	Score    float64
	Metadata map[string]string
}

// SmartRag is the external RAG collaborator. RetrieveStream returns fragments
// as they are ranked; callers MUST stop consuming once their budget is spent
// (see pkg/context's channel+producer idiom) since the sequence may be
// unbounded until the budget cuts it off.
type SmartRag interface {
	RetrieveStream(ctx context.Context, query string, scope model.ProjectScope, conv model.ConversationID) (<-chan Fragment, <-chan error)
}

// HistoryContext is what the history collaborator returns for a query.
type HistoryContext struct {
	ShortTerm     []model.HistoryMessage
	RelevantPast  []model.HistoryMessage
	Summary       string
}

// HistoryManager is the external conversation-history collaborator.
type HistoryManager interface {
	GetRelevantContext(ctx context.Context, conv model.ConversationID, query string) (HistoryContext, error)
	AddExchange(ctx context.Context, conv model.ConversationID, userMsg, assistantMsg string) error
}

// ToolCallResult is Tool.call's return shape.
type ToolCallResult struct {
	Success bool
	Output  string
}

// Tool is the generic external tool-invocation contract; pkg/mcptool provides
// a concrete implementation over the Model Context Protocol.
type Tool interface {
	Name() string
	Schema() ([]byte, error) // self-reported JSON schema
	Call(ctx context.Context, arguments []byte) (ToolCallResult, error)
}
