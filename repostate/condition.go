/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repostate

import "crypto/md5"

// placeholderParticipant is the identity shown before VM metadata resolves a
// real participant. It always maps to the default condition.
const placeholderParticipant = "Study Participant"

// Condition returns the coding condition label for a participant. Assignment
// is hash-based so the same participant always lands in the same condition.
func Condition(participantID string) string {
	if participantID == placeholderParticipant {
		return "vibe"
	}

	sum := md5.Sum([]byte(participantID))
	if sum[len(sum)-1]%2 == 0 {
		return "vibe"
	}
	return "ai-assisted"
}
