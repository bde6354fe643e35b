package filelock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

func TestAcquire_SharedAllowsMultipleReaders(t *testing.T) {
	m := New()
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "/a.txt", Shared, "t1", time.Second)
	require.NoError(t, err)
	h2, err := m.Acquire(ctx, "/a.txt", Shared, "t2", time.Second)
	require.NoError(t, err)

	m.Release(h1)
	m.Release(h2)
}

func TestAcquire_ExclusiveIsExclusive(t *testing.T) {
	m := New()
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "/a.txt", Exclusive, "t1", time.Second)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "/a.txt", Exclusive, "t2", 0)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindFileLockTimeout))

	_, err = m.Acquire(ctx, "/a.txt", Shared, "t3", 0)
	require.Error(t, err, "shared must not be granted while exclusive is held")

	m.Release(h1)

	h4, err := m.Acquire(ctx, "/a.txt", Exclusive, "t4", 0)
	require.NoError(t, err, "zero timeout succeeds immediately once free")
	m.Release(h4)
}

func TestAcquire_WaiterGrantedOnRelease(t *testing.T) {
	m := New()
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "/a.txt", Exclusive, "t1", time.Second)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		h, err := m.Acquire(ctx, "/a.txt", Exclusive, "t2", 2*time.Second)
		if err == nil {
			m.Release(h)
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	m.Release(h1)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was never granted")
	}
}

func TestAcquire_WriterNotBypassedByLaterReaders(t *testing.T) {
	m := New()
	ctx := context.Background()

	// Reader holds; writer queues; a later reader must NOT jump the writer.
	hr, err := m.Acquire(ctx, "/a.txt", Shared, "r1", time.Second)
	require.NoError(t, err)

	writerDone := make(chan struct{})
	go func() {
		h, err := m.Acquire(ctx, "/a.txt", Exclusive, "w1", 2*time.Second)
		if err != nil {
			return
		}
		close(writerDone)
		time.Sleep(50 * time.Millisecond)
		m.Release(h)
	}()

	time.Sleep(50 * time.Millisecond) // let the writer enqueue

	readerGranted := make(chan struct{})
	go func() {
		h, err := m.Acquire(ctx, "/a.txt", Shared, "r2", 2*time.Second)
		if err != nil {
			return
		}
		close(readerGranted)
		m.Release(h)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-readerGranted:
		t.Fatal("later shared request bypassed a queued exclusive waiter")
	default:
	}

	m.Release(hr)
	<-writerDone
	select {
	case <-readerGranted:
	case <-time.After(time.Second):
		t.Fatal("reader never granted after writer released")
	}
}

func TestAcquire_TimeoutRemovesWaiter(t *testing.T) {
	m := New()
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "/a.txt", Exclusive, "t1", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Acquire(ctx, "/a.txt", Exclusive, "t2", 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindFileLockTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// Release must skip the timed-out waiter and leave the lock free.
	m.Release(h1)
	h3, err := m.Acquire(ctx, "/a.txt", Exclusive, "t3", 0)
	require.NoError(t, err)
	m.Release(h3)
}

func TestAcquireAll_SortsAndAcquires(t *testing.T) {
	m := New()
	ctx := context.Background()

	h, err := m.AcquireAll(ctx, []string{"/b.txt", "/a.txt", "/c.txt"}, Exclusive, "t1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/b.txt", "/c.txt"}, h.paths)
	m.Release(h)
}

func TestAcquireAll_RollsBackOnFailure(t *testing.T) {
	m := New()
	ctx := context.Background()

	blocker, err := m.Acquire(ctx, "/b.txt", Exclusive, "other", time.Second)
	require.NoError(t, err)

	_, err = m.AcquireAll(ctx, []string{"/a.txt", "/b.txt"}, Exclusive, "t1", 100*time.Millisecond)
	require.Error(t, err)

	// /a.txt must have been released by the rollback.
	h, err := m.Acquire(ctx, "/a.txt", Exclusive, "t2", 0)
	require.NoError(t, err)
	m.Release(h)
	m.Release(blocker)
}

func TestAcquire_ConcurrentWritersSerialize(t *testing.T) {
	m := New()
	ctx := context.Background()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(ctx, "/shared.txt", Exclusive, taskID(i), 5*time.Second)
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inCritical--
			mu.Unlock()
			m.Release(h)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "two exclusive holders overlapped")
}

func taskID(i int) model.TaskID {
	return model.TaskID("task-" + string(rune('a'+i)))
}
