/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package opqueue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"chainguard.dev/reposync/repostate"
	"chainguard.dev/reposync/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// idleTick bounds how long an idle lane waits before refreshing its
// heartbeat.
const idleTick = time.Second

// Runner executes one repository operation. Satisfied by
// *repostate.Manager.
type Runner interface {
	Run(ctx context.Context, op repostate.Operation) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, op repostate.Operation) error

func (f RunnerFunc) Run(ctx context.Context, op repostate.Operation) error { return f(ctx, op) }

// Journal records jobs that reached a terminal status. Implementations must
// tolerate being called from multiple lanes concurrently.
type Journal interface {
	Record(ctx context.Context, job Job) error
}

// Config configures retry policy and pool shape. Zero values take the
// defaults documented per field.
type Config struct {
	// MaxAttempts is the total attempt ceiling per job (default 3).
	MaxAttempts int
	// BaseBackoff is the first retry delay; doubled per attempt (default 1s).
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay (default 60s).
	MaxBackoff time.Duration
	// Lanes is the worker pool size (default 1). Any size preserves
	// per-participant ordering because a participant always hashes to the
	// same lane.
	Lanes int
	// RecentFailureLimit bounds the recent permanent failure list
	// (default 20).
	RecentFailureLimit int
	// HeartbeatWindow is the recency window for the worker-alive flag
	// (default 30s).
	HeartbeatWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.Lanes <= 0 {
		c.Lanes = 1
	}
	if c.RecentFailureLimit <= 0 {
		c.RecentFailureLimit = 20
	}
	if c.HeartbeatWindow <= 0 {
		c.HeartbeatWindow = 30 * time.Second
	}
	return c
}

// Option configures optional Queue dependencies.
type Option func(*Queue)

// WithJournal records terminal job outcomes to j. Journal failures are
// logged, never propagated.
func WithJournal(j Journal) Option {
	return func(q *Queue) { q.journal = j }
}

// lane is an unbounded FIFO drained by exactly one worker, so submission
// never blocks regardless of depth.
type lane struct {
	mu    sync.Mutex
	items []*Job
	wake  chan struct{}
}

func (l *lane) push(job *Job) {
	l.mu.Lock()
	l.items = append(l.items, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *lane) pop() *Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil
	}
	job := l.items[0]
	l.items = l.items[1:]
	return job
}

// Queue maps submitted jobs to outcomes and drains them with lane workers.
// Construct with New, start with Run.
type Queue struct {
	cfg     Config
	runner  Runner
	journal Journal
	metrics *queueMetrics

	lanes []*lane

	mu             sync.Mutex
	jobs           map[string]*Job
	recentFailures []Job

	total           atomic.Int64
	succeeded       atomic.Int64
	failed          atomic.Int64
	failedPermanent atomic.Int64
	depth           atomic.Int64
	lastBeat        atomic.Int64
}

// New constructs a Queue with injected retry configuration. The queue does
// not process anything until Run is called.
func New(runner Runner, cfg Config, opts ...Option) (*Queue, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	cfg = cfg.withDefaults()

	q := &Queue{
		cfg:     cfg,
		runner:  runner,
		metrics: newQueueMetrics(),
		lanes:   make([]*lane, cfg.Lanes),
		jobs:    map[string]*Job{},
	}
	for i := range q.lanes {
		q.lanes[i] = &lane{wake: make(chan struct{}, 1)}
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Submit enqueues an operation and returns its job id immediately,
// regardless of queue depth. Safe to call from the request path.
func (q *Queue) Submit(ctx context.Context, op repostate.Operation) (string, error) {
	if op.ParticipantID == "" {
		return "", errors.New("operation has no participant")
	}
	if op.Kind == "" {
		return "", errors.New("operation has no kind")
	}

	job := &Job{
		ID:          uuid.NewString(),
		Op:          op,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.depth.Add(1)
	q.metrics.submitted(ctx, op.Kind)
	q.laneFor(op.ParticipantID).push(job)

	clog.FromContext(ctx).Debugf("Queued %s for participant %s as job %s", op.Kind, op.ParticipantID, job.ID)
	return job.ID, nil
}

// Run drains the lanes until ctx is cancelled. Pending jobs at shutdown are
// abandoned; backup is best effort, not a commit log.
func (q *Queue) Run(ctx context.Context) error {
	q.beat()
	group, ctx := errgroup.WithContext(ctx)
	for _, l := range q.lanes {
		group.Go(func() error {
			q.drain(ctx, l)
			return nil
		})
	}
	return group.Wait()
}

func (q *Queue) drain(ctx context.Context, l *lane) {
	for {
		job := l.pop()
		if job == nil {
			q.beat()
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
			case <-time.After(idleTick):
			}
			continue
		}

		q.depth.Add(-1)
		q.process(ctx, job)

		if ctx.Err() != nil {
			return
		}
	}
}

// process runs a job to a terminal status, retrying transient failures in
// place so later jobs for the same participant cannot overtake it. The
// worker owns every counter: a job enters Total when it is picked up, not
// when it is submitted.
func (q *Queue) process(ctx context.Context, job *Job) {
	q.total.Add(1)

	log := clog.FromContext(ctx).
		With("job", job.ID).
		With("participant", job.Op.ParticipantID).
		With("kind", string(job.Op.Kind))

	for attempt := 1; ; attempt++ {
		q.update(job, func(j *Job) {
			j.Status = StatusRunning
			j.Attempts = attempt
			j.LastAttemptAt = time.Now()
		})
		q.beat()

		err := q.runner.Run(ctx, job.Op)
		if err == nil {
			q.finish(ctx, job, StatusSucceeded, nil)
			return
		}

		q.failed.Add(1)

		switch {
		case vcs.IsPolicy(err):
			log.Errorf("Policy violation, not retrying: %v", err)
			q.finish(ctx, job, StatusFailedPermanent, err)
			return
		case !vcs.IsTransient(err):
			log.Warnf("Permanent failure: %v", err)
			q.finish(ctx, job, StatusFailedPermanent, err)
			return
		case attempt >= q.cfg.MaxAttempts:
			log.Warnf("Exhausted %d attempts: %v", attempt, err)
			q.finish(ctx, job, StatusFailedPermanent, err)
			return
		}

		backoff := min(q.cfg.BaseBackoff<<(attempt-1), q.cfg.MaxBackoff)
		log.With("attempt", attempt).
			With("max_attempts", q.cfg.MaxAttempts).
			With("backoff", backoff).
			Warnf("Transient failure, retrying: %v", err)

		q.update(job, func(j *Job) {
			j.Status = StatusFailedRetryable
			j.Error = err.Error()
		})

		select {
		case <-ctx.Done():
			// Abandoned mid-retry at shutdown; leave the job re-runnable.
			q.update(job, func(j *Job) { j.Status = StatusPending })
			return
		case <-time.After(backoff):
		}

		q.update(job, func(j *Job) {
			j.Status = StatusPending
			j.Error = ""
		})
	}
}

func (q *Queue) finish(ctx context.Context, job *Job, status Status, err error) {
	q.update(job, func(j *Job) {
		j.Status = status
		if err != nil {
			j.Error = err.Error()
		} else {
			j.Error = ""
		}
	})

	snapshot := q.snapshot(job)
	q.metrics.finished(ctx, snapshot.Op.Kind, status)

	switch status {
	case StatusSucceeded:
		q.succeeded.Add(1)
	case StatusFailedPermanent:
		q.failedPermanent.Add(1)
		q.mu.Lock()
		q.recentFailures = append(q.recentFailures, snapshot)
		if n := len(q.recentFailures) - q.cfg.RecentFailureLimit; n > 0 {
			q.recentFailures = q.recentFailures[n:]
		}
		q.mu.Unlock()
	}

	if q.journal != nil {
		if jerr := q.journal.Record(ctx, snapshot); jerr != nil {
			clog.FromContext(ctx).Warnf("Recording job %s to journal: %v", job.ID, jerr)
		}
	}
}

func (q *Queue) update(job *Job, fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(job)
}

func (q *Queue) snapshot(job *Job) Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *job
}

// Job returns a copy of the job with the given id.
func (q *Queue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// RecentPermanentFailures returns a copy of the bounded list of jobs that
// ended in failed_permanent, oldest first.
func (q *Queue) RecentPermanentFailures() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job{}, q.recentFailures...)
}

// Stats returns a snapshot of the queue counters. Safe to call while the
// workers mutate them; every field is read atomically.
func (q *Queue) Stats() Stats {
	last := q.lastBeat.Load()
	return Stats{
		Total:           q.total.Load(),
		Succeeded:       q.succeeded.Load(),
		Failed:          q.failed.Load(),
		FailedPermanent: q.failedPermanent.Load(),
		QueueDepth:      q.depth.Load(),
		WorkerAlive:     last > 0 && time.Since(time.Unix(0, last)) <= q.cfg.HeartbeatWindow,
	}
}

func (q *Queue) beat() {
	q.lastBeat.Store(time.Now().UnixNano())
}

func (q *Queue) laneFor(participantID string) *lane {
	h := fnv.New32a()
	fmt.Fprint(h, participantID)
	return q.lanes[h.Sum32()%uint32(len(q.lanes))]
}
