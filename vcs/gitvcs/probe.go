/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"fmt"
	"net/http"

	"chainguard.dev/reposync/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// Prober checks that a participant repository exists and is reachable on the
// remote host. Used by the probe_remote queue operation to verify
// connectivity and credentials before the study depends on them.
type Prober struct {
	gh *github.Client
}

// NewProber constructs a Prober. tokenSource may be nil, in which case only
// public repositories are visible.
func NewProber(ctx context.Context, tokenSource oauth2.TokenSource) *Prober {
	var httpClient *http.Client
	if tokenSource != nil {
		httpClient = oauth2.NewClient(ctx, tokenSource)
	}
	return &Prober{gh: github.NewClient(httpClient)}
}

// newProberForTest points the prober at a test server.
func newProberForTest(client *github.Client) *Prober {
	return &Prober{gh: client}
}

// ProbeRemote reports whether owner/repo is accessible. Authentication and
// not-found failures are permanent; everything else (network, rate limiting,
// server errors) is transient.
func (p *Prober) ProbeRemote(ctx context.Context, owner, repo string) error {
	_, resp, err := p.gh.Repositories.Get(ctx, owner, repo)
	if err == nil {
		clog.FromContext(ctx).Debugf("Repository %s/%s is accessible", owner, repo)
		return nil
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return vcs.Permanent("probe", fmt.Errorf("repository %s/%s not found or not accessible: %w", owner, repo, err))
		case http.StatusUnauthorized, http.StatusForbidden:
			return vcs.Permanent("probe", fmt.Errorf("authentication rejected for %s/%s: %w", owner, repo, err))
		}
	}

	return vcs.Transient("probe", fmt.Errorf("reaching %s/%s: %w", owner, repo, err))
}
