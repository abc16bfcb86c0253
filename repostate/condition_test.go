/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repostate

import "testing"

func TestConditionIsStable(t *testing.T) {
	for _, id := range []string{"p1", "p2", "alice", "participant-042"} {
		first := Condition(id)
		if first != "vibe" && first != "ai-assisted" {
			t.Fatalf("Condition(%q): unexpected label %q", id, first)
		}
		for range 5 {
			if got := Condition(id); got != first {
				t.Fatalf("Condition(%q): got %q then %q", id, first, got)
			}
		}
	}
}

func TestConditionPlaceholder(t *testing.T) {
	if got := Condition("Study Participant"); got != "vibe" {
		t.Fatalf("placeholder condition: got %q want vibe", got)
	}
}
