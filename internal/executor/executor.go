package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cexll/reviewloop/internal/coordinator"
	"github.com/cexll/reviewloop/internal/github"
	"github.com/cexll/reviewloop/internal/invocations"
	"github.com/cexll/reviewloop/internal/store"
	"github.com/cexll/reviewloop/internal/webhook"
)

// StoreFactory builds a record store for one pull request with an
// installation token. Swappable in tests.
type StoreFactory func(token, owner, repo string, number int) store.RecordStore

// Executor runs one role invocation: obtain credentials, bind a record
// store to the task's PR, and let the coordinator decide and act.
type Executor struct {
	auth     github.AuthProvider
	inv      *invocations.Store
	newStore StoreFactory
}

// New creates an executor backed by the GitHub REST store.
func New(auth github.AuthProvider, inv *invocations.Store) *Executor {
	return &Executor{
		auth: auth,
		inv:  inv,
		newStore: func(token, owner, repo string, number int) store.RecordStore {
			return store.NewGitHubStoreForToken(token, owner, repo, number)
		},
	}
}

// WithStoreFactory overrides how record stores are built
func (e *Executor) WithStoreFactory(f StoreFactory) *Executor {
	e.newStore = f
	return e
}

// Execute runs the task's coordinator operation and records the outcome.
func (e *Executor) Execute(ctx context.Context, task *webhook.Task) error {
	e.inv.SetStatus(task.ID, invocations.StatusRunning)

	owner, repo := splitRepo(task.Repo)
	if owner == "" || repo == "" {
		err := fmt.Errorf("invalid repo format: %s", task.Repo)
		e.fail(task.ID, err)
		return err
	}

	token, err := e.auth.GetInstallationToken(task.Repo)
	if err != nil {
		err = fmt.Errorf("failed to get installation token: %w", err)
		e.fail(task.ID, err)
		return err
	}

	c := coordinator.New(e.newStore(token.Token, owner, repo, task.Number))

	var outcome *coordinator.Outcome
	switch task.Op {
	case webhook.OpSubmit:
		outcome, err = c.SubmitForReview(ctx, task.Body)
	case webhook.OpStart:
		outcome, err = c.StartSession(ctx, task.Body)
	case webhook.OpFindings:
		outcome, err = c.PostFindings(ctx, task.Body)
	case webhook.OpApprove:
		outcome, err = c.Approve(ctx, task.Body)
	default:
		err = fmt.Errorf("unknown operation: %s", task.Op)
	}

	if err != nil {
		e.fail(task.ID, err)
		return err
	}

	e.inv.RecordOutcome(task.ID, outcome.SessionID, string(outcome.Action))
	e.inv.AddLog(task.ID, "success", fmt.Sprintf("Coordinator action: %s", outcome.Action))
	e.inv.SetStatus(task.ID, invocations.StatusCompleted)

	log.Printf("[Executor] Task %s completed: op=%s action=%s session=%s",
		task.ID, task.Op, outcome.Action, outcome.SessionID)
	return nil
}

// IsNonRetryable reports whether a failure must not be retried: a refused
// append stays refused, and an open session stays open until the thread
// changes.
func (e *Executor) IsNonRetryable(err error) bool {
	return errors.Is(err, store.ErrRejected) || errors.Is(err, coordinator.ErrSessionOpen)
}

func (e *Executor) fail(id string, err error) {
	e.inv.AddLog(id, "error", err.Error())
	e.inv.SetStatus(id, invocations.StatusFailed)
}

func splitRepo(full string) (string, string) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return full, ""
}
