package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostenum/internal/metrics"
)

// MockJob implements the Job interface for testing
type MockJob struct {
	id       string
	jobType  string
	duration time.Duration
	err      error
	executed int32
}

func NewMockJob(id, jobType string, duration time.Duration, err error) *MockJob {
	return &MockJob{
		id:       id,
		jobType:  jobType,
		duration: duration,
		err:      err,
	}
}

func (m *MockJob) Execute(ctx context.Context) error {
	atomic.AddInt32(&m.executed, 1)
	if m.duration > 0 {
		select {
		case <-time.After(m.duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *MockJob) ID() string {
	return m.id
}

func (m *MockJob) Type() string {
	return m.jobType
}

func (m *MockJob) ExecutedCount() int32 {
	return atomic.LoadInt32(&m.executed)
}

func TestNewPool(t *testing.T) {
	t.Run("creates pool with valid configuration", func(t *testing.T) {
		config := Config{
			Size:            5,
			QueueSize:       100,
			MaxRetries:      3,
			RetryDelay:      time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       10,
		}

		pool := New(config)

		assert.NotNil(t, pool)
		assert.Equal(t, config.Size, len(pool.workers))
		assert.Equal(t, config.QueueSize, cap(pool.jobs))
		assert.NotNil(t, pool.rateLimiter)
	})

	t.Run("zero size falls back to one worker", func(t *testing.T) {
		pool := New(Config{})

		assert.Len(t, pool.workers, 1)
		assert.NotNil(t, pool.ctx)
		assert.NotNil(t, pool.cancel)
	})
}

func TestSubmitAndWait(t *testing.T) {
	pool := New(Config{Size: 3, QueueSize: 10, ShutdownTimeout: time.Second})
	pool.Start()
	defer pool.Shutdown()

	jobs := make([]*MockJob, 6)
	for i := range jobs {
		jobs[i] = NewMockJob(fmt.Sprintf("job-%d", i), "host", 10*time.Millisecond, nil)
		require.NoError(t, pool.Submit(jobs[i]))
	}

	pool.Wait()

	for _, job := range jobs {
		assert.Equal(t, int32(1), job.ExecutedCount(), job.ID())
	}
}

func TestSubmitToShutDownPool(t *testing.T) {
	pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	pool.Start()
	require.NoError(t, pool.Shutdown())

	err := pool.Submit(NewMockJob("late", "host", 0, nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")
}

func TestQueueFull(t *testing.T) {
	// not started, so nothing drains the queue
	pool := New(Config{Size: 1, QueueSize: 1})

	require.NoError(t, pool.Submit(NewMockJob("a", "host", 0, nil)))
	err := pool.Submit(NewMockJob("b", "host", 0, nil))
	assert.EqualError(t, err, "job queue is full")
}

func TestRetries(t *testing.T) {
	pool := New(Config{
		Size:            1,
		QueueSize:       2,
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	pool.Start()
	defer pool.Shutdown()

	job := NewMockJob("flaky", "host", 0, errors.New("boom"))
	require.NoError(t, pool.Submit(job))
	pool.Wait()

	assert.Equal(t, int32(3), job.ExecutedCount())

	result := <-pool.Results()
	assert.Equal(t, "flaky", result.JobID)
	assert.EqualError(t, result.Error, "boom")
	assert.Equal(t, 2, result.Retries)
}

func TestConcurrencyIsBounded(t *testing.T) {
	const size = 2
	pool := New(Config{Size: size, QueueSize: 20, ShutdownTimeout: time.Second})
	pool.Start()
	defer pool.Shutdown()

	var running, peak int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		job := NewFuncJob(fmt.Sprintf("j%d", i), "host", func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		require.NoError(t, pool.Submit(job))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int32(size))
	assert.Greater(t, peak, int32(0))
}

func TestResultCollection(t *testing.T) {
	pool := New(Config{Size: 2, QueueSize: 5, ShutdownTimeout: time.Second})
	pool.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(NewMockJob(fmt.Sprintf("r%d", i), "host", 0, nil)))
	}
	pool.Wait()
	require.NoError(t, pool.Shutdown())

	seen := map[string]bool{}
	for r := range pool.Results() {
		assert.NoError(t, r.Error)
		assert.Equal(t, "host", r.JobType)
		seen[r.JobID] = true
	}
	assert.Len(t, seen, 3)
}

func TestGracefulShutdown(t *testing.T) {
	t.Run("waits for in-progress jobs to complete", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 2, ShutdownTimeout: 2 * time.Second})
		pool.Start()

		job := NewMockJob("slow", "host", 50*time.Millisecond, nil)
		require.NoError(t, pool.Submit(job))

		require.NoError(t, pool.Shutdown())
		assert.Equal(t, int32(1), job.ExecutedCount())
	})

	t.Run("respects shutdown timeout", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: 20 * time.Millisecond})
		pool.Start()

		require.NoError(t, pool.Submit(NewMockJob("stuck", "host", 5*time.Second, nil)))
		time.Sleep(5 * time.Millisecond)

		start := time.Now()
		err := pool.Shutdown()
		assert.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("multiple shutdown calls are safe", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})
		pool.Start()
		assert.NoError(t, pool.Shutdown())
		assert.NoError(t, pool.Shutdown())
	})

	t.Run("shutdown without start is safe", func(t *testing.T) {
		pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})
		assert.NoError(t, pool.Shutdown())
	})
}

func TestParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWithContext(ctx, Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	pool.Start()
	defer pool.Shutdown()

	job := NewMockJob("long", "host", 5*time.Second, nil)
	require.NoError(t, pool.Submit(job))
	time.Sleep(5 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not observe parent cancellation")
	}
}

func TestRateLimiting(t *testing.T) {
	pool := New(Config{Size: 2, QueueSize: 5, RateLimit: 50, ShutdownTimeout: time.Second})
	pool.Start()
	defer pool.Shutdown()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(NewMockJob(fmt.Sprintf("rl%d", i), "host", 0, nil)))
	}
	pool.Wait()

	// four ticks at 20ms intervals
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPoolMetrics(t *testing.T) {
	pm := metrics.NewPrometheusMetrics()
	pool := New(Config{Size: 1, QueueSize: 2, ShutdownTimeout: time.Second}).WithMetrics(pm)
	pool.Start()
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(NewMockJob("ok", "host", 0, nil)))
	require.NoError(t, pool.Submit(NewMockJob("bad", "host", 0, errors.New("x"))))
	pool.Wait()

	body, err := testutil.GatherAndCount(pm.GetRegistry(), "hostenum_pool_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, body)
}

func TestFuncJob(t *testing.T) {
	called := false
	job := NewFuncJob("id-1", "host", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.Equal(t, "id-1", job.ID())
	assert.Equal(t, "host", job.Type())
	assert.NoError(t, job.Execute(context.Background()))
	assert.True(t, called)
}
