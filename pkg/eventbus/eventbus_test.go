package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

func testConfig() Config {
	return Config{ActiveTTL: time.Minute, InactiveTTL: time.Minute, HardCap: time.Hour, BufferCap: 16}
}

func publishN(r *Registry, id model.SubscriptionID, n int) {
	for i := 0; i < n; i++ {
		r.Publish(model.StatusEvent{
			SubscriptionID: id,
			Source:         model.EventSource{Kind: model.SourceOrchestrator},
			Kind:           model.EventAgentThinking,
			Payload:        i,
		})
	}
}

func TestCreateSubscription_ResumeByClientID(t *testing.T) {
	r := New(testConfig())

	id1 := r.CreateSubscription("client-x")
	id2 := r.CreateSubscription("client-x")
	assert.Equal(t, id1, id2, "same clientId resumes the live subscription")

	id3 := r.CreateSubscription("client-y")
	assert.NotEqual(t, id1, id3)

	anon1 := r.CreateSubscription("")
	anon2 := r.CreateSubscription("")
	assert.NotEqual(t, anon1, anon2, "anonymous subscriptions are always fresh")
}

func TestPublish_BuffersAndReplaysInOrder(t *testing.T) {
	r := New(testConfig())
	id := r.CreateSubscription("")

	publishN(r, id, 5)

	replay, live, detach, err := r.Attach(id)
	require.NoError(t, err)
	defer detach()

	require.Len(t, replay, 5)
	for i, ev := range replay {
		assert.Equal(t, i, ev.Payload)
		if i > 0 {
			assert.Greater(t, ev.Seq, replay[i-1].Seq, "publish order preserved")
			assert.False(t, ev.Timestamp.Before(replay[i-1].Timestamp))
		}
	}
	_ = live
}

func TestAttach_LiveForwarding(t *testing.T) {
	r := New(testConfig())
	id := r.CreateSubscription("")

	_, live, detach, err := r.Attach(id)
	require.NoError(t, err)
	defer detach()

	r.Publish(model.StatusEvent{SubscriptionID: id, Kind: model.EventExecutionStarted})

	select {
	case ev := <-live:
		assert.Equal(t, model.EventExecutionStarted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("live event never arrived")
	}
}

func TestAttach_UnknownSubscription(t *testing.T) {
	r := New(testConfig())
	_, _, _, err := r.Attach("bogus")
	require.Error(t, err)
}

func TestDetachReattach_ReplaysOnlyMissedEvents(t *testing.T) {
	r := New(testConfig())
	id := r.CreateSubscription("client-x")

	publishN(r, id, 5)

	replay, _, detach, err := r.Attach(id)
	require.NoError(t, err)
	require.Len(t, replay, 5)
	lastSeen := replay[4].Seq
	detach()

	// Events published while detached keep buffering.
	publishN(r, id, 7)

	replay2, _, detach2, err := r.Attach(id)
	require.NoError(t, err)
	defer detach2()
	require.Len(t, replay2, 7, "reattach replays only events not yet delivered")
	for i, ev := range replay2 {
		assert.Equal(t, i, ev.Payload)
		assert.Greater(t, ev.Seq, lastSeen, "no already-replayed event is re-delivered")
	}
}

func TestLiveDeliveredEventsAreNotReplayed(t *testing.T) {
	r := New(testConfig())
	id := r.CreateSubscription("client-x")

	_, live, detach, err := r.Attach(id)
	require.NoError(t, err)

	r.Publish(model.StatusEvent{SubscriptionID: id, Kind: model.EventExecutionStarted})
	select {
	case ev := <-live:
		assert.Equal(t, model.EventExecutionStarted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("live event never arrived")
	}
	detach()

	replay, _, detach2, err := r.Attach(id)
	require.NoError(t, err)
	defer detach2()
	assert.Empty(t, replay, "an event handed to the live observer does not buffer")
}

func TestBufferOverflow_SentinelAndCap(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCap = 4
	r := New(cfg)
	id := r.CreateSubscription("")

	publishN(r, id, 10)

	status, err := r.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 4, status.BufferSize, "buffer size never exceeds cap")

	replay, _, detach, err := r.Attach(id)
	require.NoError(t, err)
	defer detach()

	require.Len(t, replay, 5, "4 retained events plus one overflow sentinel")
	assert.Equal(t, model.EventBufferOverflow, replay[0].Kind)
	payload, ok := replay[0].Payload.(model.BufferOverflowPayload)
	require.True(t, ok)
	assert.Equal(t, 6, payload.DroppedCount)

	for i, ev := range replay[1:] {
		assert.Equal(t, 6+i, ev.Payload, "retained events are the newest, in order")
	}

	status, err = r.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.BufferSize, "replayed events leave the buffer")
}

func TestPublish_UnknownSubscriptionIsDropped(t *testing.T) {
	r := New(testConfig())
	// Must not panic or error.
	r.Publish(model.StatusEvent{SubscriptionID: "gone", Kind: model.EventAgentThinking})
}

func TestStatus(t *testing.T) {
	r := New(testConfig())
	id := r.CreateSubscription("")

	st, err := r.Status(id)
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.True(t, st.ExpiresAt.After(time.Now()))

	_, _, detach, err := r.Attach(id)
	require.NoError(t, err)
	st, _ = r.Status(id)
	assert.True(t, st.Connected)

	detach()
	st, _ = r.Status(id)
	assert.False(t, st.Connected)

	_, err = r.Status("bogus")
	require.Error(t, err)
}

func TestReaper_RemovesExpired(t *testing.T) {
	cfg := Config{ActiveTTL: 20 * time.Millisecond, InactiveTTL: 20 * time.Millisecond, HardCap: time.Hour, BufferCap: 4}
	r := New(cfg)
	id := r.CreateSubscription("client-x")

	r.StartReaper(10 * time.Millisecond)
	defer r.StopReaper()

	require.Eventually(t, func() bool {
		return !r.Exists(id)
	}, time.Second, 10*time.Millisecond, "expired subscription should be reaped")

	// A new subscription for the same clientId gets a fresh id.
	id2 := r.CreateSubscription("client-x")
	assert.NotEqual(t, id, id2)
}

func TestReaper_HardCap(t *testing.T) {
	cfg := Config{ActiveTTL: time.Hour, InactiveTTL: time.Hour, HardCap: 20 * time.Millisecond, BufferCap: 4}
	r := New(cfg)
	id := r.CreateSubscription("")

	r.StartReaper(10 * time.Millisecond)
	defer r.StopReaper()

	require.Eventually(t, func() bool {
		_, err := r.Status(id)
		return err != nil
	}, time.Second, 10*time.Millisecond, "hard cap overrides activity-based TTL")
}
