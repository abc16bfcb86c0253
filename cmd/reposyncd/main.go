/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the repository sync daemon: it owns the operation queue,
// executes participant repository operations in the background, and serves
// the submission and debug endpoints consumed by the study web layer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/reposync/debugz"
	"chainguard.dev/reposync/executor"
	"chainguard.dev/reposync/opqueue"
	"chainguard.dev/reposync/opqueue/journal"
	"chainguard.dev/reposync/repostate"
	"chainguard.dev/reposync/vcs/gitvcs"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Port int `env:"PORT,default=8081"`

	WorkspaceRoot string `env:"WORKSPACE_ROOT,required"`
	GitHubOrg     string `env:"GITHUB_ORG,required"`
	GitHubToken   string `env:"GITHUB_TOKEN"`
	Identity      string `env:"COMMIT_IDENTITY,default=reposync"`

	AsyncMode   bool          `env:"ASYNC_MODE,default=true"`
	MaxAttempts int           `env:"MAX_ATTEMPTS,default=3"`
	BaseBackoff time.Duration `env:"BASE_BACKOFF,default=1s"`
	OpTimeout   time.Duration `env:"OP_TIMEOUT,default=60s"`
	QueueLanes  int           `env:"QUEUE_LANES,default=1"`

	// JournalPath enables the sqlite job journal when set.
	JournalPath string `env:"JOURNAL_PATH"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	var tokenSource oauth2.TokenSource
	if cfg.GitHubToken != "" {
		tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	} else {
		clog.WarnContextf(ctx, "No GitHub token configured; remote access is anonymous and pushes will be skipped")
	}

	adapter, err := gitvcs.New(tokenSource, cfg.Identity, cfg.OpTimeout)
	if err != nil {
		clog.FatalContextf(ctx, "creating git adapter: %v", err)
	}

	manager, err := repostate.New(adapter, gitvcs.NewProber(ctx, tokenSource), repostate.Config{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Org:           cfg.GitHubOrg,
	})
	if err != nil {
		clog.FatalContextf(ctx, "creating repository state manager: %v", err)
	}

	var opts []opqueue.Option
	if cfg.JournalPath != "" {
		store, err := journal.Open(cfg.JournalPath)
		if err != nil {
			clog.FatalContextf(ctx, "opening journal: %v", err)
		}
		defer store.Close()
		opts = append(opts, opqueue.WithJournal(store))
	}

	queue, err := opqueue.New(manager, opqueue.Config{
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		Lanes:       cfg.QueueLanes,
	}, opts...)
	if err != nil {
		clog.FatalContextf(ctx, "creating operation queue: %v", err)
	}

	submitter := executor.New(cfg.AsyncMode, manager, queue)

	mux := http.NewServeMux()
	mux.Handle("GET /debugz", debugz.Handler(queue))
	mux.Handle("POST /operations", submitHandler(submitter))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return queue.Run(ctx)
	})
	group.Go(func() error {
		clog.InfoContextf(ctx, "Starting reposync daemon on port %d (async=%v)", cfg.Port, cfg.AsyncMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		clog.FatalContextf(ctx, "daemon failed: %v", err)
	}
}

// submitHandler accepts an operation from the web layer and hands it to the
// configured submission strategy. In synchronous mode the operation's own
// failure surfaces here; callers are expected to let the participant
// continue regardless.
func submitHandler(submitter executor.Submitter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var op repostate.Operation
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			http.Error(w, fmt.Sprintf("decoding operation: %v", err), http.StatusBadRequest)
			return
		}

		jobID, err := submitter.Submit(r.Context(), op)
		if err != nil {
			clog.FromContext(r.Context()).Warnf("Operation %s for participant %s failed: %v", op.Kind, op.ParticipantID, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"job_id": jobID}); err != nil {
			clog.FromContext(r.Context()).Warnf("Encoding submit response: %v", err)
		}
	})
}
