/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package opqueue

import (
	"time"

	"chainguard.dev/reposync/repostate"
)

// Status is the lifecycle state of a submitted job. Transitions are owned
// exclusively by the lane worker; succeeded and failed_permanent are
// terminal.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedPermanent Status = "failed_permanent"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedPermanent
}

// Job is a submitted unit of work and its outcome so far. Attempts counts
// runs that have started, so a job that fails transiently once and then
// succeeds finishes with Attempts == 2.
type Job struct {
	ID            string              `json:"id"`
	Op            repostate.Operation `json:"op"`
	Status        Status              `json:"status"`
	Attempts      int                 `json:"attempts"`
	SubmittedAt   time.Time           `json:"submitted_at"`
	LastAttemptAt time.Time           `json:"last_attempt_at,omitzero"`
	Error         string              `json:"error,omitempty"`
}

// Stats is a point-in-time snapshot of the queue counters. Total counts jobs
// a worker has picked up; a submitted-but-unprocessed job appears only in
// QueueDepth. Failed counts failures on any attempt, FailedPermanent only
// terminal ones.
type Stats struct {
	Total           int64 `json:"total"`
	Succeeded       int64 `json:"succeeded"`
	Failed          int64 `json:"failed"`
	FailedPermanent int64 `json:"failed_permanent"`
	QueueDepth      int64 `json:"queue_depth"`
	WorkerAlive     bool  `json:"worker_alive"`
}
