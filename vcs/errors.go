/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"errors"
	"fmt"
)

// ErrRefNotFound marks failures caused by a ref that does not exist on the
// local or remote side. Adapters wrap it so callers can distinguish a missing
// source ref (a policy problem) from other permanent failures.
var ErrRefNotFound = errors.New("ref not found")

// Class partitions adapter failures by how the operation queue must react.
type Class int

const (
	// ClassTransient covers failures likely to succeed on retry: network
	// errors, an unreachable remote, lock contention, timeouts.
	ClassTransient Class = iota

	// ClassPermanent covers failures retrying cannot fix: rejected
	// authentication, an invalid ref, a corrupted working copy.
	ClassPermanent

	// ClassPolicy marks a programming or ordering error, such as deriving a
	// stage branch from a source ref that does not exist. Logged loudly,
	// never retried.
	ClassPolicy
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassPolicy:
		return "policy"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Error is the failure type reported by adapters and the repository state
// manager. Op names the git operation that failed, Output carries any
// captured diagnostic output from the underlying tool.
type Error struct {
	Op     string
	Class  Class
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("vcs %s (%s): %v", e.Op, e.Class, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) *Error {
	return &Error{Op: op, Class: ClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure of op.
func Permanent(op string, err error) *Error {
	return &Error{Op: op, Class: ClassPermanent, Err: err}
}

// Policyf builds a policy-violation error for op.
func Policyf(op, format string, args ...any) *Error {
	return &Error{Op: op, Class: ClassPolicy, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err (or anything it wraps) is a retryable
// adapter failure. Errors that are not *Error at all are treated as
// non-retryable: an unclassified failure must not loop in the queue.
func IsTransient(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Class == ClassTransient
}

// IsPolicy reports whether err is a policy violation.
func IsPolicy(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Class == ClassPolicy
}
