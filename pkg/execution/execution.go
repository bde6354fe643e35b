// Package execution implements the Execution Manager (C8): the thin façade
// over the Subscription Registry (C7) and Workflow Engine (C6), exposing
// CreateSubscription/GetSubscriptionStatus/ExecuteQuery as the only entry
// points the transport layer (pkg/api) needs.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentflow/pkg/eventbus"
	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
	"github.com/codeready-toolchain/agentflow/pkg/workflow"
)

// SubscribeResponse is the POST /subscribe response body.
type SubscribeResponse struct {
	SubscriptionID model.SubscriptionID `json:"subscriptionId"`
	ExpiresAt      time.Time            `json:"expiresAt"`
}

// QueryResponse is the POST /query response body.
type QueryResponse struct {
	ConversationID model.ConversationID `json:"conversationId"`
	Status         string               `json:"status"`
}

// Manager is the Execution Manager (C8).
type Manager struct {
	bus    *eventbus.Registry
	engine *workflow.Engine
}

// New constructs a Manager.
func New(bus *eventbus.Registry, engine *workflow.Engine) *Manager {
	return &Manager{bus: bus, engine: engine}
}

// CreateSubscription is a thin wrapper over the subscription registry.
func (m *Manager) CreateSubscription(clientID string) SubscribeResponse {
	id := m.bus.CreateSubscription(clientID)
	status, _ := m.bus.Status(id)
	return SubscribeResponse{SubscriptionID: id, ExpiresAt: status.ExpiresAt}
}

// GetSubscriptionStatus returns liveness, buffer size, and connection state
// for id, or ErrNotFound.
func (m *Manager) GetSubscriptionStatus(id model.SubscriptionID) (eventbus.Status, error) {
	return m.bus.Status(id)
}

// ExecuteQuery validates the subscription, spawns the background execution
// that drives the engine and publishes to the bus, and returns immediately
// with the conversation id used in all subsequent events. The spawned
// execution is fire-and-forget: it is not tied to ctx's lifetime beyond
// argument validation, since a subscription expiring mid-execution must not
// cancel already-running tasks.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, scope model.ProjectScope, subID model.SubscriptionID) (QueryResponse, error) {
	if !m.bus.Exists(subID) {
		return QueryResponse{}, orcherr.New(orcherr.KindNotFound, "execution.ExecuteQuery", orcherr.ErrNotFound)
	}

	conv := model.ConversationID(uuid.NewString())
	wfID := model.WorkflowID(uuid.NewString())

	go m.engine.Execute(context.Background(), subID, conv, wfID, query, scope)

	return QueryResponse{ConversationID: conv, Status: "started"}, nil
}
