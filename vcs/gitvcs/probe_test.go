/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"chainguard.dev/reposync/vcs"
	"github.com/google/go-github/v84/github"
)

func TestProbeRemote(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		wantClass vcs.Class
	}{{
		name:   "accessible",
		status: http.StatusOK,
	}, {
		name:      "not found",
		status:    http.StatusNotFound,
		wantErr:   true,
		wantClass: vcs.ClassPermanent,
	}, {
		name:      "unauthorized",
		status:    http.StatusUnauthorized,
		wantErr:   true,
		wantClass: vcs.ClassPermanent,
	}, {
		name:      "forbidden",
		status:    http.StatusForbidden,
		wantErr:   true,
		wantClass: vcs.ClassPermanent,
	}, {
		name:      "server error",
		status:    http.StatusInternalServerError,
		wantErr:   true,
		wantClass: vcs.ClassTransient,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(test.status)
				w.Write([]byte(`{"id": 1, "name": "study-p1"}`))
			}))
			defer srv.Close()

			client := github.NewClient(srv.Client())
			base, err := url.Parse(srv.URL + "/")
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			client.BaseURL = base

			prober := newProberForTest(client)
			err = prober.ProbeRemote(context.Background(), "study-org", "study-p1")

			if !test.wantErr {
				if err != nil {
					t.Fatalf("ProbeRemote: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ProbeRemote: expected error")
			}

			var verr *vcs.Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *vcs.Error, got %T: %v", err, err)
			}
			if verr.Class != test.wantClass {
				t.Fatalf("class: got %v want %v", verr.Class, test.wantClass)
			}
		})
	}
}
