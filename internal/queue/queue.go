package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dubforge/pkg/logger"
)

// ErrJobNotFound is returned by Get for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

const (
	leaseTTL          = 60 * time.Second
	heartbeatInterval = 20 * time.Second
	reaperInterval    = 30 * time.Second
	popTimeout        = 5 * time.Second
)

// Handler processes one job. The progress callback persists best-effort
// progress on the job record.
type Handler func(ctx context.Context, job *Job, progress func(int)) (any, error)

// Queue is a durable Redis-backed job queue. Pending ids live on a wait
// list, in-flight ids on an active list guarded by per-job lease keys; job
// state lives in a hash per id. Jobs survive process restarts, and a reaper
// returns leaseless active entries to the wait list.
type Queue struct {
	rdb  *redis.Client
	name string

	mu       sync.RWMutex
	handlers map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect dials Redis from a redis:// URL and verifies the connection.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// New creates a queue over an established Redis client. name scopes every
// key the queue touches.
func New(rdb *redis.Client, name string) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		rdb:      rdb,
		name:     name,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (q *Queue) waitKey() string          { return q.name + ":wait" }
func (q *Queue) activeKey() string        { return q.name + ":active" }
func (q *Queue) jobKey(id string) string  { return q.name + ":job:" + id }
func (q *Queue) lockKey(id string) string { return q.name + ":lock:" + id }
func (q *Queue) counterKey(s State) string {
	return q.name + ":count:" + string(s)
}

// Register installs the handler for a job name. Jobs with unregistered
// names are failed immediately.
func (q *Queue) Register(jobName string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobName] = h
}

// Enqueue stores a new job record and pushes its id onto the wait list.
func (q *Queue) Enqueue(ctx context.Context, jobName string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode job data: %w", err)
	}

	id := uuid.NewString()
	fields := map[string]any{
		"name":      jobName,
		"data":      string(payload),
		"state":     string(StateQueued),
		"progress":  0,
		"createdAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := q.rdb.HSet(ctx, q.jobKey(id), fields).Err(); err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.waitKey(), id).Err(); err != nil {
		return "", fmt.Errorf("push job: %w", err)
	}

	logger.Infof("📥 Job queued: %s (%s)", id, jobName)
	return id, nil
}

// Get reads a job record back by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	job := &Job{
		ID:           id,
		Name:         fields["name"],
		State:        State(fields["state"]),
		FailedReason: fields["failedReason"],
	}
	if v := fields["data"]; v != "" {
		job.Data = json.RawMessage(v)
	}
	if v := fields["returnvalue"]; v != "" {
		job.Result = json.RawMessage(v)
	}
	if v, err := strconv.Atoi(fields["progress"]); err == nil {
		job.Progress = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	return job, nil
}

// Stats returns queue depth and lifetime completion counters.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	wait, err := q.rdb.LLen(ctx, q.waitKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	active, err := q.rdb.LLen(ctx, q.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	completed, _ := q.rdb.Get(ctx, q.counterKey(StateCompleted)).Int64()
	failed, _ := q.rdb.Get(ctx, q.counterKey(StateFailed)).Int64()

	return map[string]int64{
		"queued":    wait,
		"active":    active,
		"completed": completed,
		"failed":    failed,
	}, nil
}

// Start launches the worker and reaper goroutines.
func (q *Queue) Start() {
	q.wg.Add(2)
	go q.worker()
	go q.reaper()
	logger.Infof("📥 Queue started: %s", q.name)
}

// Stop shuts the worker and reaper down and waits for the in-flight job.
func (q *Queue) Stop() {
	logger.Info("🛑 Stopping queue...")
	q.cancel()
	q.wg.Wait()
	logger.Info("✅ Queue stopped")
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		id, err := q.rdb.BLMove(q.ctx, q.waitKey(), q.activeKey(), "RIGHT", "LEFT", popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if q.ctx.Err() != nil {
				return
			}
			logger.Warnf("⚠️ Queue pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		q.process(id)
	}
}

func (q *Queue) process(id string) {
	ctx := q.ctx
	jlog := logger.ForJob(id)

	// The lease must exist before anything else so the reaper never sees
	// this entry as abandoned.
	if err := q.rdb.Set(ctx, q.lockKey(id), "1", leaseTTL).Err(); err != nil {
		jlog.Warnf("⚠️ Lease acquire failed: %v", err)
	}
	stopHeartbeat := q.startHeartbeat(id)
	defer func() {
		stopHeartbeat()
		q.rdb.LRem(context.Background(), q.activeKey(), 1, id)
		q.rdb.Del(context.Background(), q.lockKey(id))
	}()

	job, err := q.Get(ctx, id)
	if err != nil {
		jlog.Warnf("⚠️ Dropping unknown queue entry: %v", err)
		return
	}

	q.setState(ctx, id, StateActive)

	q.mu.RLock()
	handler, ok := q.handlers[job.Name]
	q.mu.RUnlock()
	if !ok {
		q.fail(id, fmt.Sprintf("unknown job name: %q", job.Name))
		return
	}

	jlog.Infof("⚙️  Job active (%s)", job.Name)
	result, err := handler(ctx, job, func(p int) { q.reportProgress(id, p) })
	if err != nil {
		q.fail(id, err.Error())
		return
	}
	q.complete(id, result)
}

// startHeartbeat keeps the job's lease alive until the returned stop
// function is called.
func (q *Queue) startHeartbeat(id string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := q.rdb.Expire(context.Background(), q.lockKey(id), leaseTTL).Err(); err != nil {
					logger.Warnf("⚠️ Heartbeat failed for %s: %v", id, err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// reaper returns active entries without a live lease to the wait list so a
// crashed worker's job runs again.
func (q *Queue) reaper() {
	defer q.wg.Done()

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.reapOnce()
		}
	}
}

func (q *Queue) reapOnce() {
	ctx := q.ctx
	ids, err := q.rdb.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		logger.Warnf("⚠️ Reaper scan failed: %v", err)
		return
	}
	for _, id := range ids {
		alive, err := q.rdb.Exists(ctx, q.lockKey(id)).Result()
		if err != nil || alive > 0 {
			continue
		}
		if removed, _ := q.rdb.LRem(ctx, q.activeKey(), 1, id).Result(); removed == 0 {
			continue
		}
		q.rdb.RPush(ctx, q.waitKey(), id)
		q.setState(ctx, id, StateQueued)
		logger.Warnf("♻️  Requeued abandoned job: %s", id)
	}
}

// reportProgress persists a progress update. Failures are logged and
// swallowed so progress never breaks a running job.
func (q *Queue) reportProgress(id string, progress int) {
	err := q.rdb.HSet(context.Background(), q.jobKey(id), "progress", progress).Err()
	if err != nil {
		logger.Warnf("⚠️ Progress update failed for %s: %v", id, err)
	}
}

func (q *Queue) setState(ctx context.Context, id string, s State) {
	if err := q.rdb.HSet(ctx, q.jobKey(id), "state", string(s)).Err(); err != nil {
		logger.Warnf("⚠️ State update failed for %s: %v", id, err)
	}
}

func (q *Queue) complete(id string, result any) {
	ctx := context.Background()
	payload, err := json.Marshal(result)
	if err != nil {
		q.fail(id, fmt.Sprintf("encode result: %v", err))
		return
	}
	fields := map[string]any{
		"state":       string(StateCompleted),
		"progress":    100,
		"returnvalue": string(payload),
	}
	if err := q.rdb.HSet(ctx, q.jobKey(id), fields).Err(); err != nil {
		logger.ForJob(id).Warnf("⚠️ Completion update failed: %v", err)
	}
	q.rdb.Incr(ctx, q.counterKey(StateCompleted))
	logger.ForJob(id).Info("✅ Job completed")
}

func (q *Queue) fail(id, reason string) {
	ctx := context.Background()
	fields := map[string]any{
		"state":        string(StateFailed),
		"failedReason": reason,
	}
	if err := q.rdb.HSet(ctx, q.jobKey(id), fields).Err(); err != nil {
		logger.ForJob(id).Warnf("⚠️ Failure update failed: %v", err)
	}
	q.rdb.Incr(ctx, q.counterKey(StateFailed))
	logger.ForJob(id).Warnf("❌ Job failed: %s", reason)
}
