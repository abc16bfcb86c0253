/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package opqueue executes repository operations in the background so the
// request path never blocks on git network I/O. Submitted jobs are drained by
// a small fixed pool of lane workers; a participant always maps to the same
// lane, so jobs for one participant run in submission order and never
// overlap, while jobs for different participants may interleave freely.
//
// Transient failures are retried in place with exponential backoff up to a
// fixed attempt ceiling, permanent and policy failures are not retried, and
// a job that exhausts its attempts is recorded in a bounded list of recent
// permanent failures without blocking anything behind it. Statistics are
// kept in atomics and exposed as a torn-read-free snapshot for the debug
// surface.
package opqueue
