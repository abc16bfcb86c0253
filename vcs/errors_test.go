/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	base := errors.New("remote hung up")

	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantPolicy    bool
	}{{
		name:          "transient",
		err:           Transient("push", base),
		wantTransient: true,
	}, {
		name: "permanent",
		err:  Permanent("clone", base),
	}, {
		name:       "policy",
		err:        Policyf("promote", "stage-1 missing"),
		wantPolicy: true,
	}, {
		name:          "wrapped transient survives",
		err:           fmt.Errorf("backing up: %w", Transient("push", base)),
		wantTransient: true,
	}, {
		name: "plain error is not retryable",
		err:  base,
	}, {
		name: "nil",
		err:  nil,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
			if got := IsPolicy(tt.err); got != tt.wantPolicy {
				t.Errorf("IsPolicy() = %v, want %v", got, tt.wantPolicy)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "push", Class: ClassTransient, Output: "fatal: unable to access", Err: errors.New("exit status 128")}
	want := "vcs push (transient): exit status 128: fatal: unable to access"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(err, err.Err) {
		t.Errorf("expected Unwrap to expose the underlying error")
	}
}
