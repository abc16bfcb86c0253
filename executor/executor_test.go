/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainguard.dev/reposync/opqueue"
	"chainguard.dev/reposync/repostate"
	"chainguard.dev/reposync/vcs"
)

func TestSyncSurfacesFailure(t *testing.T) {
	wantErr := vcs.Permanent("clone", errors.New("repository not found"))
	sub := New(false, opqueue.RunnerFunc(func(context.Context, repostate.Operation) error {
		return wantErr
	}), nil)

	id, err := sub.Submit(context.Background(), repostate.Operation{
		Kind:          repostate.KindClone,
		ParticipantID: "p1",
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Submit: got %v want %v", err, wantErr)
	}
	if id == "" {
		t.Fatalf("expected a job id even on failure")
	}
}

func TestQueuedReturnsBeforeExecution(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	queue, err := opqueue.New(opqueue.RunnerFunc(func(context.Context, repostate.Operation) error {
		close(started)
		<-release
		return nil
	}), opqueue.Config{})
	if err != nil {
		t.Fatalf("opqueue.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	sub := New(true, nil, queue)
	id, err := sub.Submit(context.Background(), repostate.Operation{
		Kind:          repostate.KindPushAll,
		ParticipantID: "p1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a job id")
	}

	// Submit returned while the operation is still blocked.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("queued operation never started")
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for {
		if job, ok := queue.Job(id); ok && job.Status == opqueue.StatusSucceeded {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never succeeded")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
