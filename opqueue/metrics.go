/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package opqueue

import (
	"context"
	"log/slog"

	"chainguard.dev/reposync/repostate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "chainguard.dev/reposync/opqueue"

// queueMetrics records job flow through the queue. Uses graceful
// degradation: if a counter fails to initialize, logs a warning and records
// into a no-op counter instead of failing queue construction.
type queueMetrics struct {
	submittedJobs metric.Int64Counter
	finishedJobs  metric.Int64Counter
}

func newQueueMetrics() *queueMetrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	submitted, err := meter.Int64Counter("repo.queue.submitted",
		metric.WithDescription("The number of jobs submitted to the operation queue"),
		metric.WithUnit("{jobs}"))
	if err != nil {
		slog.Warn("Failed to create submitted jobs counter, metrics will be disabled", "error", err, "meter", meterName)
		submitted = noop.Int64Counter{}
	}

	finished, err := meter.Int64Counter("repo.queue.finished",
		metric.WithDescription("The number of jobs that reached a terminal status"),
		metric.WithUnit("{jobs}"))
	if err != nil {
		slog.Warn("Failed to create finished jobs counter, metrics will be disabled", "error", err, "meter", meterName)
		finished = noop.Int64Counter{}
	}

	return &queueMetrics{
		submittedJobs: submitted,
		finishedJobs:  finished,
	}
}

func (m *queueMetrics) submitted(ctx context.Context, kind repostate.Kind) {
	m.submittedJobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
	))
}

func (m *queueMetrics) finished(ctx context.Context, kind repostate.Kind, status Status) {
	m.finishedJobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", string(status)),
	))
}
