/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/reposync/vcs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestCloneAndBranchLifecycle(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "reposync", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, _ := initRemoteRepo(t)
	dir := filepath.Join(t.TempDir(), "clone")

	if ok, err := adapter.IsRepo(ctx, dir); err != nil || ok {
		t.Fatalf("IsRepo before clone: got %v, %v", ok, err)
	}

	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if ok, err := adapter.IsRepo(ctx, dir); err != nil || !ok {
		t.Fatalf("IsRepo after clone: got %v, %v", ok, err)
	}

	if branch, err := adapter.CurrentBranch(ctx, dir); err != nil || branch != "master" {
		t.Fatalf("CurrentBranch: got %q, %v", branch, err)
	}

	// The tutorial branch only exists on the remote; checking it out should
	// create a local branch from origin/tutorial.
	if ok, err := adapter.BranchExists(ctx, dir, "tutorial"); err != nil || ok {
		t.Fatalf("BranchExists tutorial before checkout: got %v, %v", ok, err)
	}

	if err := adapter.CheckoutTracking(ctx, dir, "tutorial"); err != nil {
		t.Fatalf("CheckoutTracking: %v", err)
	}

	if branch, err := adapter.CurrentBranch(ctx, dir); err != nil || branch != "tutorial" {
		t.Fatalf("CurrentBranch after tracking checkout: got %q, %v", branch, err)
	}

	// A second checkout of the now-local branch is a plain switch.
	if err := adapter.CheckoutTracking(ctx, dir, "tutorial"); err != nil {
		t.Fatalf("CheckoutTracking again: %v", err)
	}

	if err := adapter.Checkout(ctx, dir, "master"); err != nil {
		t.Fatalf("Checkout master: %v", err)
	}
}

func TestCloneReplacesStaleDirectory(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "reposync", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, _ := initRemoteRepo(t)

	dir := filepath.Join(t.TempDir(), "clone")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	stale := filepath.Join(dir, "leftover.txt")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if ok, err := adapter.IsRepo(ctx, dir); err != nil || !ok {
		t.Fatalf("IsRepo: got %v, %v", ok, err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale file discarded, got err=%v", err)
	}
}

func TestCommitAll(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "study-participant", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, _ := initRemoteRepo(t)
	dir := filepath.Join(t.TempDir(), "clone")
	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	// Clean tree commits nothing.
	res, err := adapter.CommitAll(ctx, dir, "nothing to see")
	if err != nil {
		t.Fatalf("CommitAll clean: %v", err)
	}
	if res.Committed {
		t.Fatalf("expected clean tree to be a no-op, got commit %s", res.Hash)
	}

	if err := os.WriteFile(filepath.Join(dir, "solution.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err = adapter.CommitAll(ctx, dir, "add solution")
	if err != nil {
		t.Fatalf("CommitAll dirty: %v", err)
	}
	if !res.Committed || res.Hash == "" {
		t.Fatalf("expected a commit, got %+v", res)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if commit.Message != "add solution" {
		t.Fatalf("commit message: got %q", commit.Message)
	}
	if commit.Author.Name != "study-participant" || commit.Author.Email != "study-participant@study.local" {
		t.Fatalf("commit author: got %s <%s>", commit.Author.Name, commit.Author.Email)
	}

	// A second commit over a clean tree is again a no-op.
	res, err = adapter.CommitAll(ctx, dir, "again")
	if err != nil {
		t.Fatalf("CommitAll after commit: %v", err)
	}
	if res.Committed {
		t.Fatalf("expected second CommitAll to be a no-op")
	}
}

func TestStageBranchFromRemoteTip(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "reposync", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, headHash := initRemoteRepo(t)
	dir := filepath.Join(t.TempDir(), "clone")
	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if err := adapter.FetchBranch(ctx, dir, "master"); err != nil {
		t.Fatalf("FetchBranch: %v", err)
	}

	tip, err := adapter.RemoteTip(ctx, dir, "master")
	if err != nil {
		t.Fatalf("RemoteTip: %v", err)
	}
	if tip != headHash {
		t.Fatalf("RemoteTip: got %s want %s", tip, headHash)
	}

	if err := adapter.CreateBranchFromRef(ctx, dir, "stage-1", tip); err != nil {
		t.Fatalf("CreateBranchFromRef: %v", err)
	}

	if branch, err := adapter.CurrentBranch(ctx, dir); err != nil || branch != "stage-1" {
		t.Fatalf("CurrentBranch: got %q, %v", branch, err)
	}

	if err := adapter.PushBranch(ctx, dir, "stage-1"); err != nil {
		t.Fatalf("PushBranch: %v", err)
	}

	origin, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatalf("PlainOpen origin: %v", err)
	}
	ref, err := origin.Reference(plumbing.NewBranchReferenceName("stage-1"), true)
	if err != nil {
		t.Fatalf("Reference lookup on origin: %v", err)
	}
	if ref.Hash().String() != tip {
		t.Fatalf("origin stage-1: got %s want %s", ref.Hash(), tip)
	}

	// Recreating an existing branch just checks it out.
	if err := adapter.CreateBranchFromRef(ctx, dir, "stage-1", tip); err != nil {
		t.Fatalf("CreateBranchFromRef existing: %v", err)
	}
}

// Stage promotion distinguishes "the source branch does not exist on the
// remote" from ordinary network trouble, so a fetch of a missing branch must
// carry ErrRefNotFound and must not be classified as retryable.
func TestFetchMissingRemoteBranch(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "reposync", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, _ := initRemoteRepo(t)
	dir := filepath.Join(t.TempDir(), "clone")
	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	err = adapter.FetchBranch(ctx, dir, "stage-1")
	if err == nil {
		t.Fatalf("expected fetch of a missing remote branch to fail")
	}
	if !errors.Is(err, vcs.ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
	if vcs.IsTransient(err) {
		t.Fatalf("expected a non-retryable failure, got %v", err)
	}
}

func TestPushAllBranches(t *testing.T) {
	ctx := context.Background()

	adapter, err := New(nil, "reposync", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	remoteDir, headHash := initRemoteRepo(t)
	dir := filepath.Join(t.TempDir(), "clone")
	if err := adapter.Clone(ctx, dir, remoteDir); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if err := adapter.CreateBranchFromRef(ctx, dir, "stage-2", headHash); err != nil {
		t.Fatalf("CreateBranchFromRef: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("stage two\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := adapter.CommitAll(ctx, dir, "stage two work"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}

	results, err := adapter.PushAllBranches(ctx, dir)
	if err != nil {
		t.Fatalf("PushAllBranches: %v", err)
	}

	pushed := map[string]error{}
	for _, r := range results {
		pushed[r.Branch] = r.Err
	}
	for _, branch := range []string{"master", "stage-2"} {
		err, ok := pushed[branch]
		if !ok {
			t.Fatalf("expected branch %s in push results, got %v", branch, results)
		}
		if err != nil {
			t.Fatalf("push of %s: %v", branch, err)
		}
	}

	origin, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatalf("PlainOpen origin: %v", err)
	}
	local, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen clone: %v", err)
	}
	localRef, err := local.Reference(plumbing.NewBranchReferenceName("stage-2"), true)
	if err != nil {
		t.Fatalf("local stage-2: %v", err)
	}
	originRef, err := origin.Reference(plumbing.NewBranchReferenceName("stage-2"), true)
	if err != nil {
		t.Fatalf("origin stage-2: %v", err)
	}
	if originRef.Hash() != localRef.Hash() {
		t.Fatalf("origin stage-2: got %s want %s", originRef.Hash(), localRef.Hash())
	}
}

// initRemoteRepo builds a repository with a master and a tutorial branch,
// suitable as a local-path remote. Returns the directory and the master head.
func initRemoteRepo(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# study\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Add a tutorial branch at the same commit, then restore HEAD to master.
	tutorialRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName("tutorial"), hash)
	if err := repo.Storer.SetReference(tutorialRef); err != nil {
		t.Fatalf("SetReference tutorial: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference HEAD: %v", err)
	}

	return dir, hash.String()
}
