/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/reposync/opqueue"
	"chainguard.dev/reposync/repostate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func job(id, participant string, status opqueue.Status, attempts int) opqueue.Job {
	return opqueue.Job{
		ID: id,
		Op: repostate.Operation{
			Kind:          repostate.KindCommitAndBackupAll,
			ParticipantID: participant,
			Stage:         1,
		},
		Status:      status,
		Attempts:    attempts,
		SubmittedAt: time.Now(),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Record(ctx, job("job-1", "p1", opqueue.StatusSucceeded, 1)))
	require.NoError(t, store.Record(ctx, job("job-2", "p1", opqueue.StatusFailedPermanent, 3)))
	require.NoError(t, store.Record(ctx, job("job-3", "p2", opqueue.StatusSucceeded, 2)))

	failures, err := store.RecentPermanentFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "job-2", failures[0].JobID)
	assert.Equal(t, "p1", failures[0].ParticipantID)
	assert.Equal(t, 3, failures[0].Attempts)

	entries, err := store.ForParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.ForParticipant(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(opqueue.StatusSucceeded), entries[0].Status)
}

func TestRecordUpserts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Record(ctx, job("job-1", "p1", opqueue.StatusFailedPermanent, 3)))
	require.NoError(t, store.Record(ctx, job("job-1", "p1", opqueue.StatusFailedPermanent, 3)))

	failures, err := store.RecentPermanentFailures(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, failures, 1)
}

func TestRecentPermanentFailuresLimit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	for i, id := range []string{"job-1", "job-2", "job-3"} {
		j := job(id, "p1", opqueue.StatusFailedPermanent, 3)
		require.NoError(t, store.Record(ctx, j))
		// Distinct finish times so the newest-first ordering is observable.
		store.db.Model(&Entry{}).Where("job_id = ?", id).
			Update("finished_at", time.Now().Add(time.Duration(i)*time.Second))
	}

	failures, err := store.RecentPermanentFailures(ctx, 2)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "job-3", failures[0].JobID)
	assert.Equal(t, "job-2", failures[1].JobID)
}
