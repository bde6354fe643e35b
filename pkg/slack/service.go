package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// ApprovalRequestInput contains data for a pending-approval notification.
type ApprovalRequestInput struct {
	RequestID      string
	TaskID         string
	AgentID        string
	RiskLevel      string // Low, Medium, High, Critical
	ProposedAction string
}

// DecisionInput contains data for a recorded-decision notification.
type DecisionInput struct {
	RequestID string
	TaskID    string
	Approved  bool
	Feedback  string
	Reasoning string
}

// Service delivers HITL approval notifications to a Slack channel.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyApprovalRequested posts a pending-approval message to the channel.
// Fail-open: errors are logged, never returned — a notification failure must
// not fail the task waiting on the decision.
func (s *Service) NotifyApprovalRequested(ctx context.Context, input ApprovalRequestInput) {
	if s == nil {
		return
	}

	blocks := BuildApprovalRequestMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send approval-request notification",
			"request_id", input.RequestID,
			"task_id", input.TaskID,
			"error", err)
	}
}

// NotifyDecision posts a decision message, threaded under the original
// approval-request message when it can be located.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyDecision(ctx context.Context, input DecisionInput) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindRequestMessage(ctx, input.RequestID)
	if err != nil {
		s.logger.Warn("Failed to find approval-request message for threading",
			"request_id", input.RequestID,
			"error", err)
	}

	blocks := BuildDecisionMessage(input)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send decision notification",
			"request_id", input.RequestID,
			"task_id", input.TaskID,
			"approved", input.Approved,
			"error", err)
	}
}
