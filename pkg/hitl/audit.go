package hitl

import (
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// AuditRecord is one append-only entry in the HITL audit trail.
type AuditRecord struct {
	Timestamp time.Time
	TaskID    model.TaskID
	AgentID   string
	Action    string // "requested" | "approved" | "rejected"
	RiskLevel model.RiskLevel
	Decision  *model.HitlDecision
	Metadata  map[string]string
}

// AuditLog is an append-only, in-memory sequence of AuditRecords, retained
// for the life of the process and flushed to the structured log sink as each
// record is appended.
type AuditLog struct {
	mu      sync.Mutex
	records []AuditRecord
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Append(rec AuditRecord) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()

	attrs := []any{
		"task_id", rec.TaskID,
		"agent_id", rec.AgentID,
		"action", rec.Action,
		"risk_level", rec.RiskLevel,
	}
	if rec.Decision != nil {
		attrs = append(attrs, "approved", rec.Decision.Approved)
	}
	slog.Info("hitl audit", attrs...)
}

// All returns a copy of every recorded entry, in append order.
func (a *AuditLog) All() []AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}
