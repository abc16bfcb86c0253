/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor provides the two submission strategies behind one
// contract: Sync runs an operation inline and surfaces its failure to the
// caller, Queued hands it to the operation queue and returns immediately.
// Callers select a strategy at construction time and stay agnostic to the
// mode.
package executor

import (
	"context"

	"chainguard.dev/reposync/opqueue"
	"chainguard.dev/reposync/repostate"
	"github.com/google/uuid"
)

// Submitter is the submission contract consumed by the web layer.
type Submitter interface {
	// Submit hands off an operation and returns its job id. In synchronous
	// mode the operation has already finished when Submit returns and the
	// error is its outcome; in asynchronous mode the error only reports
	// submission problems.
	Submit(ctx context.Context, op repostate.Operation) (string, error)
}

// Sync executes operations inline without retry. The caller decides how to
// degrade on failure; study continuity takes priority over guaranteed
// backup.
type Sync struct {
	runner opqueue.Runner
}

// NewSync constructs the synchronous strategy.
func NewSync(runner opqueue.Runner) *Sync {
	return &Sync{runner: runner}
}

func (s *Sync) Submit(ctx context.Context, op repostate.Operation) (string, error) {
	return uuid.NewString(), s.runner.Run(ctx, op)
}

// Queued submits operations to the background queue.
type Queued struct {
	queue *opqueue.Queue
}

// NewQueued constructs the asynchronous strategy.
func NewQueued(queue *opqueue.Queue) *Queued {
	return &Queued{queue: queue}
}

func (e *Queued) Submit(ctx context.Context, op repostate.Operation) (string, error) {
	return e.queue.Submit(ctx, op)
}

// New selects a strategy from the async-mode toggle.
func New(async bool, runner opqueue.Runner, queue *opqueue.Queue) Submitter {
	if async {
		return NewQueued(queue)
	}
	return NewSync(runner)
}
