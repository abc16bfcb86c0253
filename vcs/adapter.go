/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import "context"

// CommitResult reports what a CommitAll call did. Committed is false when the
// working tree was already clean; that is a successful no-op, not an error.
type CommitResult struct {
	Committed bool
	Hash      string
}

// BranchPush is the per-branch outcome of PushAllBranches. Err is nil for
// branches that pushed (or were already up to date) and carries the failure
// for branches that did not; one failing branch never aborts the rest.
type BranchPush struct {
	Branch string
	Err    error
}

// Adapter executes version-control primitives against a working copy rooted
// at dir. Calls block for the duration of the operation (network-bound for
// Clone and the push family) and carry no retry logic of their own.
type Adapter interface {
	// IsRepo reports whether dir holds a usable working copy.
	IsRepo(ctx context.Context, dir string) (bool, error)

	// Clone materializes remoteURL at dir. A directory that exists but is
	// not a repository is discarded first.
	Clone(ctx context.Context, dir, remoteURL string) error

	// CurrentBranch returns the short name of the checked-out branch.
	CurrentBranch(ctx context.Context, dir string) (string, error)

	// BranchExists reports whether branch exists locally.
	BranchExists(ctx context.Context, dir, branch string) (bool, error)

	// Checkout switches the working tree to an existing local branch.
	Checkout(ctx context.Context, dir, branch string) error

	// CheckoutTracking checks out branch, creating it from origin/<branch>
	// when it only exists on the remote. Idempotent when already checked out.
	CheckoutTracking(ctx context.Context, dir, branch string) error

	// FetchBranch updates refs/remotes/origin/<branch> from the remote.
	FetchBranch(ctx context.Context, dir, branch string) error

	// RemoteTip resolves the hash of refs/remotes/origin/<branch>.
	RemoteTip(ctx context.Context, dir, branch string) (string, error)

	// CreateBranchFromRef creates branch at the commit named by ref and
	// checks it out. If branch already exists locally it is checked out
	// unchanged; recreation never happens.
	CreateBranchFromRef(ctx context.Context, dir, branch, ref string) error

	// CommitAll stages every pending change and commits it with message.
	// A clean tree is a successful no-op.
	CommitAll(ctx context.Context, dir, message string) (CommitResult, error)

	// PushBranch pushes a single local branch to origin.
	PushBranch(ctx context.Context, dir, branch string) error

	// PushAllBranches pushes every local branch to origin, continuing past
	// per-branch failures and reporting each outcome.
	PushAllBranches(ctx context.Context, dir string) ([]BranchPush, error)
}
