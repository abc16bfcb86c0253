/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chainguard.dev/reposync/vcs"
	"github.com/chainguard-dev/clog"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const remoteName = "origin"

// Adapter executes git operations with go-git. Construct with New.
type Adapter struct {
	tokenSource oauth2.TokenSource
	identity    string
	timeout     time.Duration
}

var _ vcs.Adapter = (*Adapter)(nil)

// New constructs an Adapter. tokenSource may be nil for anonymous access.
// Identity is used as the commit author name (and, when it lacks a domain,
// suffixed with @study.local). timeout bounds each network-facing call; zero
// disables the bound.
func New(tokenSource oauth2.TokenSource, identity string, timeout time.Duration) (*Adapter, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	return &Adapter{
		tokenSource: tokenSource,
		identity:    identity,
		timeout:     timeout,
	}, nil
}

// opContext bounds a network-facing operation with the adapter timeout.
func (a *Adapter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Adapter) auth() (*githttp.BasicAuth, error) {
	if a.tokenSource == nil {
		return nil, nil
	}

	token, err := a.tokenSource.Token()
	if err != nil {
		return nil, vcs.Permanent("auth", fmt.Errorf("getting token: %w", err))
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// IsRepo reports whether dir holds an openable repository.
func (a *Adapter) IsRepo(_ context.Context, dir string) (bool, error) {
	switch _, err := git.PlainOpen(dir); {
	case err == nil:
		return true, nil
	case errors.Is(err, git.ErrRepositoryNotExists):
		return false, nil
	default:
		return false, vcs.Permanent("open", err)
	}
}

// Clone materializes remoteURL at dir. A directory that exists but is not a
// repository is removed first; a failed clone never leaves a partial copy
// behind.
func (a *Adapter) Clone(ctx context.Context, dir, remoteURL string) error {
	log := clog.FromContext(ctx)

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		if ok, err := a.IsRepo(ctx, dir); err == nil && !ok {
			log.Warnf("Directory %s exists but is not a repository, discarding", dir)
			if err := os.RemoveAll(dir); err != nil {
				return vcs.Permanent("clone", fmt.Errorf("removing stale directory: %w", err))
			}
		}
	}

	auth, err := a.auth()
	if err != nil {
		return err
	}

	ctx, cancel := a.opContext(ctx)
	defer cancel()

	log.Infof("Cloning %s into %s", redactURL(remoteURL), dir)
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  remoteURL,
		Auth: auth,
	}); err != nil {
		os.RemoveAll(dir)
		return classify("clone", err, true)
	}

	return nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (a *Adapter) CurrentBranch(_ context.Context, dir string) (string, error) {
	repo, err := a.open(dir)
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if err != nil {
		return "", classify("head", err, false)
	}

	return head.Name().Short(), nil
}

// BranchExists reports whether branch exists locally.
func (a *Adapter) BranchExists(_ context.Context, dir, branch string) (bool, error) {
	repo, err := a.open(dir)
	if err != nil {
		return false, err
	}

	switch _, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true); {
	case err == nil:
		return true, nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, nil
	default:
		return false, classify("branch", err, false)
	}
}

// Checkout switches the working tree to an existing local branch.
func (a *Adapter) Checkout(_ context.Context, dir, branch string) error {
	repo, err := a.open(dir)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return classify("checkout", err, false)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	}); err != nil {
		return classify("checkout", err, false)
	}

	return nil
}

// CheckoutTracking checks out branch, creating a local branch from
// origin/<branch> when it only exists on the remote.
func (a *Adapter) CheckoutTracking(ctx context.Context, dir, branch string) error {
	exists, err := a.BranchExists(ctx, dir, branch)
	if err != nil {
		return err
	}
	if exists {
		return a.Checkout(ctx, dir, branch)
	}

	repo, err := a.open(dir)
	if err != nil {
		return err
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return classify("checkout-tracking", err, false)
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, remoteRef.Hash())); err != nil {
		return classify("checkout-tracking", err, false)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return classify("checkout-tracking", err, false)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		return classify("checkout-tracking", err, false)
	}

	clog.FromContext(ctx).Infof("Created local branch %s tracking %s/%s", branch, remoteName, branch)
	return nil
}

// FetchBranch updates refs/remotes/origin/<branch> from the remote.
func (a *Adapter) FetchBranch(ctx context.Context, dir, branch string) error {
	repo, err := a.open(dir)
	if err != nil {
		return err
	}

	auth, err := a.auth()
	if err != nil {
		return err
	}

	ctx, cancel := a.opContext(ctx)
	defer cancel()

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remoteName, branch)),
		},
		Auth: auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify("fetch", err, true)
	}

	return nil
}

// RemoteTip resolves the hash of refs/remotes/origin/<branch>.
func (a *Adapter) RemoteTip(_ context.Context, dir, branch string) (string, error) {
	repo, err := a.open(dir)
	if err != nil {
		return "", err
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return "", classify("remote-tip", err, false)
	}

	return ref.Hash().String(), nil
}

// CreateBranchFromRef creates branch at the commit named by ref and checks it
// out. An existing local branch is checked out unchanged.
func (a *Adapter) CreateBranchFromRef(ctx context.Context, dir, branch, ref string) error {
	exists, err := a.BranchExists(ctx, dir, branch)
	if err != nil {
		return err
	}
	if exists {
		clog.FromContext(ctx).Infof("Branch %s already exists, checking out", branch)
		return a.Checkout(ctx, dir, branch)
	}

	repo, err := a.open(dir)
	if err != nil {
		return err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, plumbing.NewHash(ref))); err != nil {
		return classify("create-branch", err, false)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return classify("create-branch", err, false)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		return classify("create-branch", err, false)
	}

	clog.FromContext(ctx).Infof("Created branch %s from %s", branch, ref)
	return nil
}

// CommitAll stages all pending changes and commits them. A clean tree is a
// successful no-op.
func (a *Adapter) CommitAll(ctx context.Context, dir, message string) (vcs.CommitResult, error) {
	repo, err := a.open(dir)
	if err != nil {
		return vcs.CommitResult{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return vcs.CommitResult{}, classify("commit", err, false)
	}

	status, err := worktree.Status()
	if err != nil {
		return vcs.CommitResult{}, classify("commit", err, false)
	}
	if status.IsClean() {
		clog.FromContext(ctx).Debugf("Working tree at %s is clean, nothing to commit", dir)
		return vcs.CommitResult{}, nil
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return vcs.CommitResult{}, classify("commit", err, false)
	}

	email := a.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@study.local", email)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  a.identity,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return vcs.CommitResult{}, classify("commit", err, false)
	}

	return vcs.CommitResult{Committed: true, Hash: hash.String()}, nil
}

// PushBranch pushes a single local branch to origin.
func (a *Adapter) PushBranch(ctx context.Context, dir, branch string) error {
	repo, err := a.open(dir)
	if err != nil {
		return err
	}

	if a.skipAnonymousPush(ctx, repo, branch) {
		return nil
	}

	auth, err := a.auth()
	if err != nil {
		return err
	}

	ctx, cancel := a.opContext(ctx)
	defer cancel()

	return a.push(ctx, repo, auth, branch)
}

// PushAllBranches pushes every local branch to origin, continuing past
// per-branch failures.
func (a *Adapter) PushAllBranches(ctx context.Context, dir string) ([]vcs.BranchPush, error) {
	repo, err := a.open(dir)
	if err != nil {
		return nil, err
	}

	if a.skipAnonymousPush(ctx, repo, "all branches") {
		return nil, nil
	}

	auth, err := a.auth()
	if err != nil {
		return nil, err
	}

	branches, err := localBranches(repo)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opContext(ctx)
	defer cancel()

	results := make([]vcs.BranchPush, 0, len(branches))
	for _, branch := range branches {
		results = append(results, vcs.BranchPush{
			Branch: branch,
			Err:    a.push(ctx, repo, auth, branch),
		})
	}

	return results, nil
}

func (a *Adapter) push(ctx context.Context, repo *git.Repository, auth *githttp.BasicAuth, branch string) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))

	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify("push", err, true)
	}

	return nil
}

// skipAnonymousPush reports whether a push should be skipped because the
// adapter holds no credential and the remote is reached over HTTP(S).
// Local-path remotes (used by tests) push fine without one.
func (a *Adapter) skipAnonymousPush(ctx context.Context, repo *git.Repository, what string) bool {
	if a.tokenSource != nil {
		return false
	}

	remote, err := repo.Remote(remoteName)
	if err != nil || len(remote.Config().URLs) == 0 {
		return false
	}

	url := remote.Config().URLs[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}

	clog.FromContext(ctx).Warnf("No credential configured, skipping push of %s to %s", what, redactURL(url))
	return true
}

func (a *Adapter) open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, vcs.Permanent("open", fmt.Errorf("opening %s: %w", dir, err))
	}
	return repo, nil
}

func localBranches(repo *git.Repository) ([]string, error) {
	iter, err := repo.Branches()
	if err != nil {
		return nil, classify("branches", err, false)
	}

	var branches []string
	if err := iter.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, ref.Name().Short())
		return nil
	}); err != nil {
		return nil, classify("branches", err, false)
	}

	return branches, nil
}

// classify maps a go-git failure into the vcs error taxonomy. networkOp marks
// operations that cross the wire, where unrecognized failures default to
// transient; local failures default to permanent.
func classify(op string, err error, networkOp bool) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return vcs.Transient(op, err)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return vcs.Permanent(op, err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return vcs.Permanent(op, err)
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return vcs.Permanent(op, fmt.Errorf("%w: %s", vcs.ErrRefNotFound, err))
	case errors.Is(err, git.NoMatchingRefSpecError{}):
		// Fetching a branch the remote does not have. NoMatchingRefSpecError
		// matches any value of its type, not a sentinel.
		return vcs.Permanent(op, fmt.Errorf("%w: %s", vcs.ErrRefNotFound, err))
	case errors.Is(err, git.ErrRepositoryNotExists):
		return vcs.Permanent(op, err)
	case networkOp:
		return vcs.Transient(op, err)
	default:
		return vcs.Permanent(op, err)
	}
}

// redactURL strips userinfo from a remote URL before logging it.
func redactURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if _, host, ok := strings.Cut(rest, "@"); ok {
		return scheme + "://***@" + host
	}
	return url
}
