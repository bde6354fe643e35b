package hitl

import (
	"context"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/slack"
)

// Notifier forwards HITL request/decision events to Slack so operators see
// pending approvals without polling the API. Only High/Critical risk requests
// are forwarded; lower-risk gates stay API-only.
type Notifier struct {
	svc *slack.Service // nil disables notification entirely
}

func NewNotifier(svc *slack.Service) *Notifier {
	return &Notifier{svc: svc}
}

func (n *Notifier) notifiable(risk model.RiskLevel) bool {
	return n != nil && n.svc != nil && (risk == model.RiskHigh || risk == model.RiskCritical)
}

// NotifyRequested posts a message when a HitlRequest is enqueued. Best-effort:
// delivery failures are swallowed by the service layer, never propagated.
func (n *Notifier) NotifyRequested(ctx context.Context, req model.HitlRequest) {
	if !n.notifiable(req.RiskLevel) {
		return
	}
	n.svc.NotifyApprovalRequested(ctx, slack.ApprovalRequestInput{
		RequestID:      string(req.RequestID),
		TaskID:         string(req.TaskID),
		AgentID:        req.AgentID,
		RiskLevel:      string(req.RiskLevel),
		ProposedAction: req.ProposedAction,
	})
}

// NotifyResolved posts a message once a decision is recorded, threaded under
// the original request message when it can be found.
func (n *Notifier) NotifyResolved(ctx context.Context, req model.HitlRequest, decision model.HitlDecision) {
	if !n.notifiable(req.RiskLevel) {
		return
	}
	n.svc.NotifyDecision(ctx, slack.DecisionInput{
		RequestID: string(req.RequestID),
		TaskID:    string(req.TaskID),
		Approved:  decision.Approved,
		Feedback:  decision.Feedback,
		Reasoning: decision.Reasoning,
	})
}
