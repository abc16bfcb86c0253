/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repostate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chainguard.dev/reposync/vcs"
	"github.com/chainguard-dev/clog"
)

const (
	tutorialBranch = "tutorial"
	mainBranch     = "main"
)

// RemoteProber checks that a repository on the remote host exists and is
// reachable with the configured credential.
type RemoteProber interface {
	ProbeRemote(ctx context.Context, owner, repo string) error
}

// Config carries the workspace layout and remote addressing for a Manager.
type Config struct {
	// WorkspaceRoot is the directory under which participant working copies
	// are created, one per participant as study-<participant>.
	WorkspaceRoot string

	// Org is the remote organization owning the participant repositories.
	Org string

	// RemoteHost is the base URL of the git host. Defaults to
	// https://github.com.
	RemoteHost string
}

// ParticipantRepo is the tracked state of one participant's working copy.
// Mutated only through Manager operations; never deleted during a session.
type ParticipantRepo struct {
	ParticipantID string `json:"participant_id"`
	Path          string `json:"path"`
	RemoteURL     string `json:"remote_url"`
	Branch        string `json:"branch"`
	Stage         int    `json:"stage"`
	Condition     string `json:"condition"`
}

// Manager owns the participant working copies and encodes branch-derivation
// policy. Safe for concurrent use; operations for the same participant are
// serialized, operations for different participants are not.
type Manager struct {
	adapter vcs.Adapter
	prober  RemoteProber
	cfg     Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	repos map[string]*ParticipantRepo
}

// New constructs a Manager. prober may be nil, in which case probe_remote
// operations succeed with a logged warning.
func New(adapter vcs.Adapter, prober RemoteProber, cfg Config) (*Manager, error) {
	if adapter == nil {
		return nil, errors.New("adapter cannot be nil")
	}
	if strings.TrimSpace(cfg.WorkspaceRoot) == "" {
		return nil, errors.New("workspace root cannot be empty")
	}
	if strings.TrimSpace(cfg.Org) == "" {
		return nil, errors.New("org cannot be empty")
	}
	if cfg.RemoteHost == "" {
		cfg.RemoteHost = "https://github.com"
	}

	return &Manager{
		adapter: adapter,
		prober:  prober,
		cfg:     cfg,
		locks:   map[string]*sync.Mutex{},
		repos:   map[string]*ParticipantRepo{},
	}, nil
}

// RepoName returns the remote repository name for a participant.
func RepoName(participantID string) string {
	return "study-" + participantID
}

// Run dispatches a submitted operation to the matching Manager method. This
// is the single entry point shared by the synchronous executor and the queue
// worker.
func (m *Manager) Run(ctx context.Context, op Operation) error {
	if op.ParticipantID == "" {
		return vcs.Policyf("run", "operation %q has no participant", op.Kind)
	}

	switch op.Kind {
	case KindClone:
		return m.EnsureCloned(ctx, op.ParticipantID)
	case KindCheckoutTutorial:
		return m.EnterTutorial(ctx, op.ParticipantID)
	case KindCreateStageBranch:
		return m.PromoteToStage(ctx, op.ParticipantID, op.Stage)
	case KindCommitAndBackupAll:
		return m.CommitAndBackupAll(ctx, op.ParticipantID, op.Message)
	case KindPushAll:
		return m.PushAll(ctx, op.ParticipantID)
	case KindProbeRemote:
		return m.ProbeRemote(ctx, op.ParticipantID)
	default:
		return vcs.Policyf("run", "unknown operation kind %q", op.Kind)
	}
}

// EnsureCloned clones the participant repository if no working copy exists.
// Idempotent: an existing clone returns success immediately.
func (m *Manager) EnsureCloned(ctx context.Context, participantID string) error {
	lock := m.lock(participantID)
	lock.Lock()
	defer lock.Unlock()

	return m.ensureClonedLocked(ctx, participantID)
}

func (m *Manager) ensureClonedLocked(ctx context.Context, participantID string) error {
	rec := m.record(participantID)

	ok, err := m.adapter.IsRepo(ctx, rec.Path)
	if err != nil {
		return fmt.Errorf("checking working copy: %w", err)
	}
	if ok {
		clog.FromContext(ctx).Debugf("Working copy for %s already present at %s", participantID, rec.Path)
		return nil
	}

	if err := m.adapter.Clone(ctx, rec.Path, rec.RemoteURL); err != nil {
		return fmt.Errorf("cloning %s: %w", RepoName(participantID), err)
	}

	if branch, err := m.adapter.CurrentBranch(ctx, rec.Path); err == nil {
		rec.Branch = branch
	}

	clog.FromContext(ctx).Infof("Cloned repository for participant %s to %s", participantID, rec.Path)
	return nil
}

// EnterTutorial ensures the clone exists and checks out the tutorial branch,
// creating a local branch tracking the remote one when absent. Idempotent.
func (m *Manager) EnterTutorial(ctx context.Context, participantID string) error {
	lock := m.lock(participantID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.ensureClonedLocked(ctx, participantID); err != nil {
		return err
	}

	rec := m.record(participantID)
	if err := m.adapter.CheckoutTracking(ctx, rec.Path, tutorialBranch); err != nil {
		return fmt.Errorf("checking out %s: %w", tutorialBranch, err)
	}

	rec.Branch = tutorialBranch
	return nil
}

// PromoteToStage creates (or checks out, if already created) the stage
// branch, then pushes it so the remote reflects the participant's active
// branch before any commit lands.
//
// Stage 1 derives from the remote tip of main; stage 2 derives from the
// freshly fetched remote tip of stage-1. Promotion to stage 2 when no
// stage-1 exists anywhere is a policy violation, not a guess.
func (m *Manager) PromoteToStage(ctx context.Context, participantID string, stage int) error {
	if stage != 1 && stage != 2 {
		return vcs.Policyf("promote", "invalid study stage %d", stage)
	}

	lock := m.lock(participantID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.ensureClonedLocked(ctx, participantID); err != nil {
		return err
	}

	log := clog.FromContext(ctx)
	rec := m.record(participantID)
	branch := fmt.Sprintf("stage-%d", stage)

	exists, err := m.adapter.BranchExists(ctx, rec.Path, branch)
	if err != nil {
		return fmt.Errorf("checking branch %s: %w", branch, err)
	}

	if exists {
		// Stage branches are never recreated: switch to the existing one.
		if err := m.adapter.Checkout(ctx, rec.Path, branch); err != nil {
			return fmt.Errorf("checking out %s: %w", branch, err)
		}
		log.Infof("Participant %s already has %s, checked out", participantID, branch)
	} else {
		source := mainBranch
		if stage == 2 {
			source = "stage-1"
		}

		if err := m.adapter.FetchBranch(ctx, rec.Path, source); err != nil {
			if stage == 2 && errors.Is(err, vcs.ErrRefNotFound) {
				log.Errorf("Participant %s has no stage-1 on the remote, refusing stage-2 promotion", participantID)
				return vcs.Policyf("promote", "stage-2 requires a remote stage-1 for participant %s", participantID)
			}
			return fmt.Errorf("fetching %s: %w", source, err)
		}

		tip, err := m.adapter.RemoteTip(ctx, rec.Path, source)
		if err != nil {
			return fmt.Errorf("resolving remote tip of %s: %w", source, err)
		}

		if err := m.adapter.CreateBranchFromRef(ctx, rec.Path, branch, tip); err != nil {
			return fmt.Errorf("creating %s from %s: %w", branch, tip, err)
		}
		log.Infof("Created %s for participant %s from remote %s tip %s", branch, participantID, source, tip)
	}

	if err := m.adapter.PushBranch(ctx, rec.Path, branch); err != nil {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}

	rec.Stage = stage
	rec.Branch = branch
	return nil
}

// CommitAndBackupAll commits all pending changes on the checked-out branch
// (a clean tree is a no-op), then pushes every local branch so the remote
// holds a complete snapshot across all branches ever created for the
// participant.
func (m *Manager) CommitAndBackupAll(ctx context.Context, participantID, message string) error {
	lock := m.lock(participantID)
	lock.Lock()
	defer lock.Unlock()

	rec := m.record(participantID)
	ok, err := m.adapter.IsRepo(ctx, rec.Path)
	if err != nil {
		return fmt.Errorf("checking working copy: %w", err)
	}
	if !ok {
		return vcs.Permanent("commit", fmt.Errorf("no working copy for participant %s at %s", participantID, rec.Path))
	}

	log := clog.FromContext(ctx)

	result, err := m.adapter.CommitAll(ctx, rec.Path, m.decorateMessage(rec, message))
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if result.Committed {
		log.Infof("Committed changes for participant %s: %s", participantID, result.Hash)
	} else {
		log.Debugf("No changes to commit for participant %s", participantID)
	}

	return m.pushAllLocked(ctx, rec)
}

// PushAll pushes every local branch without committing first.
func (m *Manager) PushAll(ctx context.Context, participantID string) error {
	lock := m.lock(participantID)
	lock.Lock()
	defer lock.Unlock()

	rec := m.record(participantID)
	ok, err := m.adapter.IsRepo(ctx, rec.Path)
	if err != nil {
		return fmt.Errorf("checking working copy: %w", err)
	}
	if !ok {
		return vcs.Permanent("push", fmt.Errorf("no working copy for participant %s at %s", participantID, rec.Path))
	}

	return m.pushAllLocked(ctx, rec)
}

func (m *Manager) pushAllLocked(ctx context.Context, rec *ParticipantRepo) error {
	pushes, err := m.adapter.PushAllBranches(ctx, rec.Path)
	if err != nil {
		return fmt.Errorf("pushing all branches: %w", err)
	}

	log := clog.FromContext(ctx)
	var failures []error
	for _, p := range pushes {
		if p.Err != nil {
			log.Warnf("Pushing branch %s for participant %s failed: %v", p.Branch, rec.ParticipantID, p.Err)
			failures = append(failures, fmt.Errorf("branch %s: %w", p.Branch, p.Err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("pushing all branches: %w", errors.Join(failures...))
	}

	return nil
}

// ProbeRemote verifies the participant repository is reachable on the remote
// host. Without a configured prober this degrades to a logged warning.
func (m *Manager) ProbeRemote(ctx context.Context, participantID string) error {
	if m.prober == nil {
		clog.FromContext(ctx).Warnf("No remote prober configured, skipping connectivity probe for %s", participantID)
		return nil
	}
	return m.prober.ProbeRemote(ctx, m.cfg.Org, RepoName(participantID))
}

// Repo returns a snapshot of the tracked state for a participant, creating
// the record on first access.
func (m *Manager) Repo(participantID string) ParticipantRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.recordLocked(participantID)
}

// decorateMessage prefixes the commit message with the active stage and
// appends a timestamp, matching the backup trail format read by the study
// operators.
func (m *Manager) decorateMessage(rec *ParticipantRepo, message string) string {
	ts := time.Now().Format("2006-01-02 15:04:05")
	if rec.Stage > 0 {
		return fmt.Sprintf("[Stage %d] %s - %s", rec.Stage, message, ts)
	}
	return fmt.Sprintf("%s - %s", message, ts)
}

// lock returns the mutex serializing all git operations for a participant,
// creating it on first use.
func (m *Manager) lock(participantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lk, ok := m.locks[participantID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[participantID] = lk
	}
	return lk
}

// record returns the mutable participant record. Callers must hold the
// participant lock before mutating the working copy it describes.
func (m *Manager) record(participantID string) *ParticipantRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(participantID)
}

func (m *Manager) recordLocked(participantID string) *ParticipantRepo {
	rec, ok := m.repos[participantID]
	if !ok {
		name := RepoName(participantID)
		rec = &ParticipantRepo{
			ParticipantID: participantID,
			Path:          filepath.Join(m.cfg.WorkspaceRoot, name),
			RemoteURL:     fmt.Sprintf("%s/%s/%s.git", m.cfg.RemoteHost, m.cfg.Org, name),
			Condition:     Condition(participantID),
		}
		m.repos[participantID] = rec
	}
	return rec
}
