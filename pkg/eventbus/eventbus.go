package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// Config controls subscription lifetimes and buffer sizing.
type Config struct {
	ActiveTTL   time.Duration
	InactiveTTL time.Duration
	HardCap     time.Duration // overall hard expiry regardless of activity
	BufferCap   int
}

func DefaultConfig() Config {
	return Config{
		ActiveTTL:   5 * time.Minute,
		InactiveTTL: 30 * time.Minute,
		HardCap:     1 * time.Hour,
		BufferCap:   1000,
	}
}

// subscription is the internal, mutex-guarded record for one subscriber.
type subscription struct {
	id        model.SubscriptionID
	clientID  string
	createdAt time.Time
	expiresAt time.Time
	lastSeen  time.Time
	connected bool
	live      chan model.StatusEvent // non-nil only while an observer is attached
	// lagging flips when a live send fails; from then on events buffer (in
	// order) until the next attach, instead of racing past the stuck one.
	lagging bool
	buf     *ringBuffer
}

// Status is the external view returned by getSubscriptionStatus.
type Status struct {
	ID         model.SubscriptionID
	Connected  bool
	ExpiresAt  time.Time
	BufferSize int
}

// Registry is the Subscription Registry half of C7: a map from subscriptionId
// to subscription plus a secondary clientId index.
type Registry struct {
	mu       sync.Mutex
	subs     map[model.SubscriptionID]*subscription
	byClient map[string]model.SubscriptionID
	cfg      Config
	seq      atomic.Uint64

	stopCh chan struct{}
	done   chan struct{}
}

// New constructs a Registry. Call StartReaper to begin expiry sweeps.
func New(cfg Config) *Registry {
	r := &Registry{
		subs:     make(map[model.SubscriptionID]*subscription),
		byClient: make(map[string]model.SubscriptionID),
		cfg:      cfg,
	}
	return r
}

// CreateSubscription allocates a new subscription, or returns the live,
// non-expired one already mapped to clientID (resume semantics).
func (r *Registry) CreateSubscription(clientID string) model.SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if clientID != "" {
		if id, ok := r.byClient[clientID]; ok {
			if s, ok := r.subs[id]; ok && now.Before(s.expiresAt) {
				return id
			}
		}
	}

	id := model.SubscriptionID(uuid.NewString())
	s := &subscription{
		id:        id,
		clientID:  clientID,
		createdAt: now,
		expiresAt: now.Add(r.cfg.ActiveTTL),
		lastSeen:  now,
		buf:       newRingBuffer(r.cfg.BufferCap),
	}
	r.subs[id] = s
	if clientID != "" {
		r.byClient[clientID] = id
	}
	return id
}

// Status returns the current status of id, or ErrNotFound.
func (r *Registry) Status(id model.SubscriptionID) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return Status{}, orcherr.New(orcherr.KindNotFound, "eventbus.Status", orcherr.ErrNotFound)
	}
	return Status{ID: id, Connected: s.connected, ExpiresAt: s.expiresAt, BufferSize: s.buf.realSize()}, nil
}

// Exists reports whether id is a live, non-expired subscription.
func (r *Registry) Exists(id model.SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	return ok && time.Now().Before(s.expiresAt)
}

// Publish routes event to its target subscription: live to the attached
// observer's channel, or into the buffer of undelivered events otherwise.
// An event goes to exactly one of the two, so a reconnecting observer
// replays only what it has not already been handed. Unknown subscriptions
// are silently dropped: the background execution is fire-and-forget, so
// events become unobservable once a subscription is reaped, never an error.
func (r *Registry) Publish(event model.StatusEvent) {
	event.Seq = r.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[event.SubscriptionID]
	if !ok {
		return
	}

	if s.live != nil && !s.lagging {
		select {
		case s.live <- event:
			return
		default:
			// Slow/blocked observer: buffer this and every subsequent event
			// until the next attach, preserving order.
			s.lagging = true
		}
	}
	s.buf.push(event)
}

// Attach marks id connected, hands back the undelivered events in order, and
// returns a channel of subsequently-published live events plus a detach
// function. The caller MUST drain replay completely (in order) before
// consuming live.
func (r *Registry) Attach(id model.SubscriptionID) (replay []model.StatusEvent, live <-chan model.StatusEvent, detach func(), err error) {
	r.mu.Lock()
	s, ok := r.subs[id]
	if !ok || time.Now().After(s.expiresAt) {
		r.mu.Unlock()
		return nil, nil, nil, orcherr.New(orcherr.KindNotFound, "eventbus.Attach", orcherr.ErrNotFound)
	}

	replay = s.buf.drain()
	s.lagging = false
	s.connected = true
	s.lastSeen = time.Now()
	s.expiresAt = s.lastSeen.Add(r.cfg.ActiveTTL)
	ch := make(chan model.StatusEvent, 64)
	s.live = ch
	r.mu.Unlock()

	detach = func() { r.Detach(id) }
	return replay, ch, detach, nil
}

// Detach marks id disconnected; its buffer retention extends to InactiveTTL
// from now.
func (r *Registry) Detach(id model.SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return
	}
	s.connected = false
	if s.live != nil {
		close(s.live)
		s.live = nil
	}
	s.lastSeen = time.Now()
	s.expiresAt = s.lastSeen.Add(r.cfg.InactiveTTL)
}

// StartReaper launches the periodic sweep that removes subscriptions past
// their effective TTL and past the overall hard cap.
func (r *Registry) StartReaper(interval time.Duration) {
	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.reapLoop(interval)
}

// StopReaper signals the reaper to exit and waits for it.
func (r *Registry) StopReaper() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	<-r.done
}

func (r *Registry) reapLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

func (r *Registry) reapOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, s := range r.subs {
		expired := now.After(s.expiresAt) || now.Sub(s.createdAt) > r.cfg.HardCap
		if !expired {
			continue
		}
		if s.live != nil {
			close(s.live)
		}
		delete(r.subs, id)
		if s.clientID != "" && r.byClient[s.clientID] == id {
			delete(r.byClient, s.clientID)
		}
	}
}
