/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repostate owns one working copy per study participant and exposes
// the stage-aware operations built on top of a vcs.Adapter: ensure the clone
// exists, enter the tutorial branch, promote to a stage branch, and commit
// plus back up every branch.
//
// Branch-derivation policy lives here: stage-1 is created from the remote tip
// of main, stage-2 from the freshly fetched remote tip of stage-1 (never the
// possibly stale local copy, since stage-1 work may have been pushed from a
// different machine). A stage branch is created at most once per participant;
// re-promotion checks the existing branch out instead.
//
// A per-participant mutex serializes every operation touching a working copy,
// because concurrent git invocations against the same copy corrupt it. The
// synchronous submission path and the queue worker share these locks.
package repostate
