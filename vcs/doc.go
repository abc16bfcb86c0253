/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package vcs defines the adapter contract for version-control operations on
// a participant working copy, together with the error taxonomy shared by the
// repository state manager and the operation queue.
//
// Adapters are pure execution: each call operates on a working-copy path,
// blocks until the underlying git operation finishes (or times out), and
// reports either the resulting repository state or an *Error carrying the
// failed operation, its classification, and any captured diagnostic output.
// Retry policy lives entirely in the operation queue; adapters never retry.
//
// Two implementations exist: gitvcs (backed by go-git against a real remote)
// and fakevcs (a deterministic in-memory model for tests).
package vcs
