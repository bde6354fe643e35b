package hitl

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// GateConfig bundles the knobs the Workflow Engine needs to drive the gate.
type GateConfig struct {
	Mode       model.HitlMode
	SampleRate float64 // only consulted in HitlSampleBased mode
}

// Gate is the HITL Gate (C5) façade combining the assessor, approval queue,
// and audit log behind the single operation C6 needs: consult a task and
// (if gated) block until a decision arrives.
type Gate struct {
	assessor *Assessor
	queue    *Queue
	audit    *AuditLog
	notifier *Notifier
	cfg      GateConfig
}

func NewGate(assessor *Assessor, cfg GateConfig, notifier *Notifier) *Gate {
	return &Gate{
		assessor: assessor,
		queue:    NewQueue(),
		audit:    NewAuditLog(),
		notifier: notifier,
		cfg:      cfg,
	}
}

// Outcome is what Consult returns: whether the task is cleared to run.
type Outcome struct {
	Gated    bool
	Approved bool // meaningful only when Gated
	Decision model.HitlDecision
	Risk     model.RiskLevel
}

// Consult assesses node's risk and, if the active mode gates it (or the node
// itself declares requiresHitl), enqueues a HitlRequest and blocks on its
// one-shot decision channel (mode Blocking), or proceeds on a default
// "pending" branch (modes Async and SampleBased). SampleBased tasks that are
// sampled out of gating are not gated at all: no request is enqueued.
//
// onRequested, if non-nil, is invoked with the enqueued request before any
// blocking wait, so callers can surface the pending request to observers
// while the operator decides.
func (g *Gate) Consult(ctx context.Context, node model.TaskNode, proposedAction string, onRequested func(model.HitlRequest)) Outcome {
	risk := g.assessor.AssessRisk(node)

	sample := rand.Float64()
	gated := node.RequiresHitl || RequiresHitl(g.cfg.Mode, risk, g.cfg.SampleRate, sample)
	if !gated {
		return Outcome{Gated: false, Risk: risk}
	}

	req, wait := g.queue.Enqueue(node.TaskID, node.AgentID, node.Description, risk, proposedAction)
	g.audit.Append(AuditRecord{Timestamp: time.Now(), TaskID: node.TaskID, AgentID: node.AgentID, Action: "requested", RiskLevel: risk})
	g.notifier.NotifyRequested(ctx, req)
	if onRequested != nil {
		onRequested(req)
	}

	if g.cfg.Mode != model.HitlBlocking {
		// Async/SampleBased: proceed now on a default "pending" branch; the
		// decision, when it arrives, is still recorded to the audit log by a
		// background goroutine but does not gate this call.
		go func() {
			select {
			case d := <-wait():
				g.recordDecision(req, d)
			case <-ctx.Done():
			}
		}()
		return Outcome{Gated: true, Approved: true, Risk: risk}
	}

	select {
	case d := <-wait():
		g.recordDecision(req, d)
		return Outcome{Gated: true, Approved: d.Approved, Decision: d, Risk: risk}
	case <-ctx.Done():
		return Outcome{Gated: true, Approved: false, Risk: risk}
	}
}

func (g *Gate) recordDecision(req model.HitlRequest, d model.HitlDecision) {
	action := "approved"
	if !d.Approved {
		action = "rejected"
	}
	g.audit.Append(AuditRecord{Timestamp: time.Now(), TaskID: req.TaskID, AgentID: req.AgentID, Action: action, RiskLevel: req.RiskLevel, Decision: &d})
	g.notifier.NotifyResolved(context.Background(), req, d)
}

// Decide posts an external decision for requestID — the entry point the HTTP
// API uses for POST-ing an operator's approval/rejection.
func (g *Gate) Decide(requestID model.HitlRequestID, decision model.HitlDecision) error {
	return g.queue.Decide(requestID, decision)
}

// Pending returns outstanding HitlRequests.
func (g *Gate) Pending() []model.HitlRequest { return g.queue.Pending() }

// Audit returns the audit trail.
func (g *Gate) Audit() []AuditRecord { return g.audit.All() }
