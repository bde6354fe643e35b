package hitl

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
	"github.com/google/uuid"
)

// pending pairs a HitlRequest with the one-shot channel its decision arrives
// on. One channel per request plus a map of outstanding requests keeps the
// state machine small; an unbounded shared channel would couple unrelated
// decisions.
type pending struct {
	req      model.HitlRequest
	decision chan model.HitlDecision // capacity 1, written at most once
}

// Queue is the HITL approval queue: a FIFO ordering for observability plus a
// map for future-based resolution.
type Queue struct {
	mu      sync.Mutex
	order   []model.HitlRequestID
	byID    map[model.HitlRequestID]*pending
}

func NewQueue() *Queue {
	return &Queue{byID: make(map[model.HitlRequestID]*pending)}
}

// Enqueue registers a new request and returns it plus a function returning
// the request's one-shot decision channel; receiving from it blocks until a
// decision is posted.
func (q *Queue) Enqueue(taskID model.TaskID, agentID, description string, risk model.RiskLevel, proposedAction string) (model.HitlRequest, func() <-chan model.HitlDecision) {
	req := model.HitlRequest{
		RequestID:      model.HitlRequestID(uuid.NewString()),
		TaskID:         taskID,
		AgentID:        agentID,
		Description:    description,
		RiskLevel:      risk,
		ProposedAction: proposedAction,
		CreatedAt:      time.Now(),
	}

	p := &pending{req: req, decision: make(chan model.HitlDecision, 1)}

	q.mu.Lock()
	q.order = append(q.order, req.RequestID)
	q.byID[req.RequestID] = p
	q.mu.Unlock()

	return req, func() <-chan model.HitlDecision { return p.decision }
}

// Decide posts a decision for requestID and removes the request from the
// queue, so a second Decide for the same id returns a NotFound error.
func (q *Queue) Decide(requestID model.HitlRequestID, decision model.HitlDecision) error {
	q.mu.Lock()
	p, ok := q.byID[requestID]
	if ok {
		delete(q.byID, requestID)
	}
	q.mu.Unlock()

	if !ok {
		return orcherr.New(orcherr.KindNotFound, "hitl.Decide", orcherr.ErrNotFound)
	}
	select {
	case p.decision <- decision:
	default:
	}
	return nil
}

// Pending returns a snapshot of currently outstanding requests, FIFO order.
func (q *Queue) Pending() []model.HitlRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.HitlRequest, 0, len(q.order))
	for _, id := range q.order {
		if p, ok := q.byID[id]; ok {
			out = append(out, p.req)
		}
	}
	return out
}
