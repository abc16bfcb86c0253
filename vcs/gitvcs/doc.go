/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitvcs implements the vcs.Adapter contract with go-git. An Adapter
// is configured with an OAuth2 token source (nil for anonymous, read-only
// access), the commit identity for the automation, and a per-operation
// timeout that bounds every network-facing call so a hung remote cannot
// stall the queue worker.
//
// When the adapter is anonymous and the remote is reached over HTTP(S),
// pushes are skipped with a logged warning instead of failing: backup is
// best effort and must never stop a participant from continuing.
package gitvcs
