/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repostate

// Kind enumerates the operations a caller can submit against a participant
// repository, either synchronously or through the operation queue.
type Kind string

const (
	KindClone              Kind = "clone"
	KindCheckoutTutorial   Kind = "checkout_tutorial"
	KindCreateStageBranch  Kind = "create_stage_branch"
	KindCommitAndBackupAll Kind = "commit_and_backup_all"
	KindPushAll            Kind = "push_all"
	KindProbeRemote        Kind = "probe_remote"
)

// Operation is a submitted unit of work. Stage is only meaningful for
// create_stage_branch, Message only for commit_and_backup_all.
type Operation struct {
	Kind          Kind   `json:"kind"`
	ParticipantID string `json:"participant_id"`
	Stage         int    `json:"stage,omitempty"`
	Message       string `json:"message,omitempty"`
}
