/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package debugz exposes the queue statistics as a read-only JSON endpoint
// for the operational status page.
package debugz

import (
	"encoding/json"
	"net/http"

	"chainguard.dev/reposync/opqueue"
	"github.com/chainguard-dev/clog"
)

// Source is the read side of the operation queue.
type Source interface {
	Stats() opqueue.Stats
	RecentPermanentFailures() []opqueue.Job
}

type response struct {
	Stats                   opqueue.Stats `json:"stats"`
	RecentPermanentFailures []opqueue.Job `json:"recent_permanent_failures"`
}

// Handler serves the current counters and the bounded recent permanent
// failure list. Safe to hit while workers mutate the counters.
func Handler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response{
			Stats:                   src.Stats(),
			RecentPermanentFailures: src.RecentPermanentFailures(),
		}); err != nil {
			clog.FromContext(r.Context()).Warnf("Encoding debug response: %v", err)
		}
	})
}
