package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubforge/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

// testRedis connects to the Redis named by REDIS_URL, skipping when none is
// reachable.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	rdb := testRedis(t)
	q := New(rdb, "test-media-jobs-"+uuid.NewString())
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), q.name+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	})
	return q
}

func waitForState(t *testing.T, q *Queue, id string, want State) *Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(context.Background(), id)
		require.NoError(t, err)
		if job.State == want {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, want)
	return nil
}

type payload struct {
	File string `json:"file"`
}

func TestEnqueueAndGet(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: "clip.mp4"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, JobProcessVideo, job.Name)
	assert.Equal(t, StateQueued, job.State)
	assert.Equal(t, 0, job.Progress)
	assert.False(t, job.CreatedAt.IsZero())

	var data payload
	require.NoError(t, json.Unmarshal(job.Data, &data))
	assert.Equal(t, "clip.mp4", data.File)
}

func TestEnqueueUniqueIDs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: fmt.Sprintf("f%d", i)})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGetUnknownJob(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestWorkerCompletesJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register(JobProcessVideo, func(_ context.Context, job *Job, progress func(int)) (any, error) {
		progress(50)
		return map[string]string{"audio": "/tmp/out.wav"}, nil
	})
	q.Start()
	defer q.Stop()

	id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: "clip.mp4"})
	require.NoError(t, err)

	job := waitForState(t, q, id, StateCompleted)
	assert.Equal(t, 100, job.Progress)

	var result map[string]string
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, "/tmp/out.wav", result["audio"])

	// Wait and active lists are drained.
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["queued"])
	assert.Equal(t, int64(0), stats["active"])
	assert.Equal(t, int64(1), stats["completed"])
}

func TestWorkerFailsJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register(JobProcessVideo, func(context.Context, *Job, func(int)) (any, error) {
		return nil, errors.New("pipeline exploded")
	})
	q.Start()
	defer q.Stop()

	id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: "clip.mp4"})
	require.NoError(t, err)

	job := waitForState(t, q, id, StateFailed)
	assert.Equal(t, "pipeline exploded", job.FailedReason)
	assert.Empty(t, job.Result)
}

func TestWorkerRejectsUnknownJobName(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register(JobProcessVideo, func(context.Context, *Job, func(int)) (any, error) {
		return nil, nil
	})
	q.Start()
	defer q.Stop()

	id, err := q.Enqueue(ctx, "mystery-job", payload{File: "clip.mp4"})
	require.NoError(t, err)

	job := waitForState(t, q, id, StateFailed)
	assert.Contains(t, job.FailedReason, "unknown job name")
}

func TestReaperRequeuesAbandonedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Simulate a crashed worker: active entry with no lease.
	id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: "clip.mp4"})
	require.NoError(t, err)
	_, err = q.rdb.LMove(ctx, q.waitKey(), q.activeKey(), "RIGHT", "LEFT").Result()
	require.NoError(t, err)
	q.setState(ctx, id, StateActive)

	q.reapOnce()

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, job.State)

	waiting, err := q.rdb.LLen(ctx, q.waitKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)

	active, err := q.rdb.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)
}

func TestReaperLeavesLeasedJobAlone(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, JobProcessVideo, payload{File: "clip.mp4"})
	require.NoError(t, err)
	_, err = q.rdb.LMove(ctx, q.waitKey(), q.activeKey(), "RIGHT", "LEFT").Result()
	require.NoError(t, err)
	require.NoError(t, q.rdb.Set(ctx, q.lockKey(id), "1", leaseTTL).Err())

	q.reapOnce()

	active, err := q.rdb.LLen(ctx, q.activeKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}
