package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started chan string
	release chan struct{}

	mu   sync.Mutex
	done []string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(_ context.Context, job Job) (*Result, error) {
	r.started <- job.TaskID
	<-r.release
	r.mu.Lock()
	r.done = append(r.done, job.TaskID)
	r.mu.Unlock()
	return &Result{}, nil
}

func TestPool_SubmitRejectsWhenQueueFull(t *testing.T) {
	runner := newBlockingRunner()
	pool := NewPool(runner, PoolConfig{Workers: 1, QueueSize: 1})
	pool.Start(context.Background())

	require.NoError(t, pool.Submit(Job{TaskID: "a"}))
	assert.Equal(t, "a", <-runner.started)

	require.NoError(t, pool.Submit(Job{TaskID: "b"}))
	assert.Equal(t, 1, pool.Pending())
	assert.ErrorIs(t, pool.Submit(Job{TaskID: "c"}), ErrQueueFull)

	close(runner.release)
	pool.Stop()

	assert.ElementsMatch(t, []string{"a", "b"}, runner.done)
	assert.ErrorIs(t, pool.Submit(Job{TaskID: "d"}), ErrPoolStopped)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(newBlockingRunner(), PoolConfig{})
	assert.ErrorIs(t, pool.Submit(Job{TaskID: "a"}), ErrPoolStopped)
	assert.Equal(t, 0, pool.Pending())
	pool.Stop()
}

func TestPool_StopDrainsQueuedJobs(t *testing.T) {
	runner := newBlockingRunner()
	pool := NewPool(runner, PoolConfig{Workers: 1, QueueSize: 4})
	pool.Start(context.Background())

	ids := []string{"a", "b", "c", "d", "e"}
	require.NoError(t, pool.Submit(Job{TaskID: ids[0]}))
	assert.Equal(t, "a", <-runner.started)
	for _, id := range ids[1:] {
		require.NoError(t, pool.Submit(Job{TaskID: id}))
	}
	assert.Equal(t, 4, pool.Pending())

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool {
		return errors.Is(pool.Submit(Job{TaskID: "late"}), ErrPoolStopped)
	}, time.Second, 5*time.Millisecond)

	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, ids, runner.done)
}
