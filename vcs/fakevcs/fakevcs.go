/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fakevcs provides a deterministic in-memory vcs.Adapter for tests.
// It models a single remote host plus any number of working copies, supports
// scripted failure injection per operation, and never touches the network or
// a git binary, so branch-derivation and retry policy can be tested exactly.
package fakevcs

import (
	"context"
	"fmt"
	"sync"

	"chainguard.dev/reposync/vcs"
)

// Op names used for failure injection.
const (
	OpClone   = "clone"
	OpFetch   = "fetch"
	OpCommit  = "commit"
	OpPush    = "push"
	OpPushAll = "push-all"
)

type workingCopy struct {
	branches   map[string]string // local branch -> tip
	remoteRefs map[string]string // remote-tracking branch -> tip as of last fetch
	current    string
	dirty      bool
}

// Adapter is an in-memory vcs.Adapter. The zero value is not usable;
// construct with New.
type Adapter struct {
	mu sync.Mutex

	defaultBranch string
	remote        map[string]string // remote branch -> tip
	clones        map[string]*workingCopy
	scripted      map[string][]error
	branchFail    map[string]error // per-branch push failures for PushAll
	seq           int
}

var _ vcs.Adapter = (*Adapter)(nil)

// New constructs an Adapter whose remote carries the given branches, each at
// a distinct tip. The first branch is the clone default; with no arguments
// the remote has only "main".
func New(remoteBranches ...string) *Adapter {
	if len(remoteBranches) == 0 {
		remoteBranches = []string{"main"}
	}

	a := &Adapter{
		defaultBranch: remoteBranches[0],
		remote:        map[string]string{},
		clones:        map[string]*workingCopy{},
		scripted:      map[string][]error{},
		branchFail:    map[string]error{},
	}
	for _, b := range remoteBranches {
		a.remote[b] = a.nextHash(b)
	}
	return a
}

// FailNext queues err to be returned by the next n calls of op. Ops run in
// call order, so queueing a transient error once simulates "fails on attempt
// 1, succeeds on attempt 2".
func (a *Adapter) FailNext(op string, err error, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for range n {
		a.scripted[op] = append(a.scripted[op], err)
	}
}

// FailBranchPush makes PushAllBranches report err for branch without
// aborting the other branches.
func (a *Adapter) FailBranchPush(branch string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.branchFail[branch] = err
}

// MakeDirty marks the working tree at dir as having uncommitted changes.
func (a *Adapter) MakeDirty(dir string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if wc := a.clones[dir]; wc != nil {
		wc.dirty = true
	}
}

// AdvanceRemote moves branch's remote tip to a fresh commit, simulating a
// push from a different machine. Returns the new tip.
func (a *Adapter) AdvanceRemote(branch string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	tip := a.nextHash(branch)
	a.remote[branch] = tip
	return tip
}

// DeleteRemoteBranch removes branch from the remote.
func (a *Adapter) DeleteRemoteBranch(branch string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.remote, branch)
}

// RemoteTipOf returns branch's tip on the remote.
func (a *Adapter) RemoteTipOf(branch string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tip, ok := a.remote[branch]
	return tip, ok
}

// LocalTip returns branch's tip in the working copy at dir.
func (a *Adapter) LocalTip(dir, branch string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	wc := a.clones[dir]
	if wc == nil {
		return "", false
	}
	tip, ok := wc.branches[branch]
	return tip, ok
}

// RemoteBranches returns the names of all branches on the remote.
func (a *Adapter) RemoteBranches() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.remote))
	for b := range a.remote {
		names = append(names, b)
	}
	return names
}

func (a *Adapter) IsRepo(_ context.Context, dir string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.clones[dir]
	return ok, nil
}

func (a *Adapter) Clone(_ context.Context, dir, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.script(OpClone); err != nil {
		return err
	}

	wc := &workingCopy{
		branches:   map[string]string{a.defaultBranch: a.remote[a.defaultBranch]},
		remoteRefs: map[string]string{},
		current:    a.defaultBranch,
	}
	for b, tip := range a.remote {
		wc.remoteRefs[b] = tip
	}
	a.clones[dir] = wc
	return nil
}

func (a *Adapter) CurrentBranch(_ context.Context, dir string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return "", err
	}
	return wc.current, nil
}

func (a *Adapter) BranchExists(_ context.Context, dir, branch string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return false, err
	}
	_, ok := wc.branches[branch]
	return ok, nil
}

func (a *Adapter) Checkout(_ context.Context, dir, branch string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return err
	}
	if _, ok := wc.branches[branch]; !ok {
		return vcs.Permanent("checkout", fmt.Errorf("%w: %s", vcs.ErrRefNotFound, branch))
	}
	wc.current = branch
	return nil
}

func (a *Adapter) CheckoutTracking(_ context.Context, dir, branch string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return err
	}
	if _, ok := wc.branches[branch]; ok {
		wc.current = branch
		return nil
	}
	tip, ok := wc.remoteRefs[branch]
	if !ok {
		return vcs.Permanent("checkout-tracking", fmt.Errorf("%w: %s/%s", vcs.ErrRefNotFound, "origin", branch))
	}
	wc.branches[branch] = tip
	wc.current = branch
	return nil
}

func (a *Adapter) FetchBranch(_ context.Context, dir, branch string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.script(OpFetch); err != nil {
		return err
	}

	wc, err := a.clone(dir)
	if err != nil {
		return err
	}
	tip, ok := a.remote[branch]
	if !ok {
		return vcs.Permanent("fetch", fmt.Errorf("%w: refs/heads/%s", vcs.ErrRefNotFound, branch))
	}
	wc.remoteRefs[branch] = tip
	return nil
}

func (a *Adapter) RemoteTip(_ context.Context, dir, branch string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return "", err
	}
	tip, ok := wc.remoteRefs[branch]
	if !ok {
		return "", vcs.Permanent("remote-tip", fmt.Errorf("%w: origin/%s", vcs.ErrRefNotFound, branch))
	}
	return tip, nil
}

func (a *Adapter) CreateBranchFromRef(_ context.Context, dir, branch, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	wc, err := a.clone(dir)
	if err != nil {
		return err
	}
	if _, ok := wc.branches[branch]; !ok {
		wc.branches[branch] = ref
	}
	wc.current = branch
	return nil
}

func (a *Adapter) CommitAll(_ context.Context, dir, _ string) (vcs.CommitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.script(OpCommit); err != nil {
		return vcs.CommitResult{}, err
	}

	wc, err := a.clone(dir)
	if err != nil {
		return vcs.CommitResult{}, err
	}
	if !wc.dirty {
		return vcs.CommitResult{}, nil
	}
	hash := a.nextHash(wc.current)
	wc.branches[wc.current] = hash
	wc.dirty = false
	return vcs.CommitResult{Committed: true, Hash: hash}, nil
}

func (a *Adapter) PushBranch(_ context.Context, dir, branch string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.script(OpPush); err != nil {
		return err
	}

	wc, err := a.clone(dir)
	if err != nil {
		return err
	}
	tip, ok := wc.branches[branch]
	if !ok {
		return vcs.Permanent("push", fmt.Errorf("%w: %s", vcs.ErrRefNotFound, branch))
	}
	a.remote[branch] = tip
	return nil
}

func (a *Adapter) PushAllBranches(_ context.Context, dir string) ([]vcs.BranchPush, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.script(OpPushAll); err != nil {
		return nil, err
	}

	wc, err := a.clone(dir)
	if err != nil {
		return nil, err
	}

	results := make([]vcs.BranchPush, 0, len(wc.branches))
	for branch, tip := range wc.branches {
		if failErr, ok := a.branchFail[branch]; ok {
			results = append(results, vcs.BranchPush{Branch: branch, Err: failErr})
			continue
		}
		a.remote[branch] = tip
		results = append(results, vcs.BranchPush{Branch: branch})
	}
	return results, nil
}

func (a *Adapter) clone(dir string) (*workingCopy, error) {
	wc, ok := a.clones[dir]
	if !ok {
		return nil, vcs.Permanent("open", fmt.Errorf("no working copy at %s", dir))
	}
	return wc, nil
}

func (a *Adapter) script(op string) error {
	queue := a.scripted[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	a.scripted[op] = queue[1:]
	return err
}

func (a *Adapter) nextHash(branch string) string {
	a.seq++
	return fmt.Sprintf("%s@%04d", branch, a.seq)
}
