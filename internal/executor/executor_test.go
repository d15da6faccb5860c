package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/cexll/reviewloop/internal/coordinator"
	"github.com/cexll/reviewloop/internal/github"
	"github.com/cexll/reviewloop/internal/invocations"
	"github.com/cexll/reviewloop/internal/session"
	"github.com/cexll/reviewloop/internal/store"
	"github.com/cexll/reviewloop/internal/webhook"
)

func newTestExecutor(mock *store.MockStore) (*Executor, *invocations.Store) {
	inv := invocations.NewStore()
	auth := &github.MockAuthProvider{}

	e := New(auth, inv).WithStoreFactory(
		func(token, owner, repo string, number int) store.RecordStore {
			return mock
		})
	return e, inv
}

func queuedTask(op webhook.Op, body string) (*webhook.Task, *invocations.Invocation) {
	task := &webhook.Task{
		ID:       "task-1",
		Repo:     "owner/repo",
		Number:   7,
		Op:       op,
		Body:     body,
		Username: "alice",
	}
	return task, &invocations.Invocation{
		ID:     task.ID,
		Op:     string(task.Op),
		Repo:   task.Repo,
		Number: task.Number,
		Actor:  task.Username,
	}
}

func TestExecute_SubmitStartsSession(t *testing.T) {
	mock := store.NewMockStore()
	e, inv := newTestExecutor(mock)

	task, record := queuedTask(webhook.OpSubmit, "Initial implementation.")
	inv.Create(record)

	if err := e.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(mock.Appended) != 1 {
		t.Fatalf("appended %d records, want 1", len(mock.Appended))
	}
	id, kind, ok := session.Extract(mock.Appended[0])
	if !ok || kind != session.KindRoundSummary {
		t.Errorf("appended record marker = (%q, %q, %v)", id, kind, ok)
	}

	got, _ := inv.Get("task-1")
	if got.Status != invocations.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Action != string(coordinator.ActionSessionStarted) {
		t.Errorf("action = %q, want session-started", got.Action)
	}
	if got.SessionID != id {
		t.Errorf("recorded session id = %q, want %q", got.SessionID, id)
	}
}

func TestExecute_ApproveOnOpenSession(t *testing.T) {
	mock := store.NewMockStore(
		session.Embed("rev-aa11bb22", session.KindRoundSummary, "Ready."),
	)
	e, inv := newTestExecutor(mock)

	task, record := queuedTask(webhook.OpApprove, "")
	inv.Create(record)

	if err := e.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, _ := inv.Get("task-1")
	if got.Action != string(coordinator.ActionApproved) {
		t.Errorf("action = %q, want approved", got.Action)
	}
	if got.SessionID != "rev-aa11bb22" {
		t.Errorf("session id = %q, want rev-aa11bb22", got.SessionID)
	}
}

func TestExecute_RejectedAppendFailsAndIsNonRetryable(t *testing.T) {
	mock := store.NewMockStore(
		session.Embed("rev-aa11bb22", session.KindRoundSummary, "Ready."),
	)
	mock.AppendErr = store.ErrRejected
	e, inv := newTestExecutor(mock)

	task, record := queuedTask(webhook.OpFindings, "A blocker.")
	inv.Create(record)

	err := e.Execute(context.Background(), task)
	if !errors.Is(err, store.ErrRejected) {
		t.Fatalf("Execute() error = %v, want ErrRejected", err)
	}
	if !e.IsNonRetryable(err) {
		t.Errorf("IsNonRetryable(%v) = false, want true", err)
	}

	got, _ := inv.Get("task-1")
	if got.Status != invocations.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestExecute_UnavailableStoreIsRetryable(t *testing.T) {
	mock := &store.MockStore{FetchErr: store.ErrUnavailable}
	e, inv := newTestExecutor(mock)

	task, record := queuedTask(webhook.OpSubmit, "text")
	inv.Create(record)

	err := e.Execute(context.Background(), task)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("Execute() error = %v, want ErrUnavailable", err)
	}
	if e.IsNonRetryable(err) {
		t.Errorf("IsNonRetryable(%v) = true, want false", err)
	}
}

func TestExecute_AuthFailure(t *testing.T) {
	inv := invocations.NewStore()
	auth := &github.MockAuthProvider{
		GetInstallationTokenFunc: func(repo string) (*github.InstallationToken, error) {
			return nil, errors.New("installation not found")
		},
	}
	e := New(auth, inv)

	task, record := queuedTask(webhook.OpSubmit, "text")
	inv.Create(record)

	if err := e.Execute(context.Background(), task); err == nil {
		t.Fatalf("Execute() error = nil, want auth error")
	}

	got, _ := inv.Get("task-1")
	if got.Status != invocations.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestExecute_StartWhileOpenIsNonRetryable(t *testing.T) {
	mock := store.NewMockStore(
		session.Embed("rev-aa11bb22", session.KindRoundSummary, "Ready."),
	)
	e, inv := newTestExecutor(mock)

	task, record := queuedTask(webhook.OpStart, "Another loop.")
	inv.Create(record)

	err := e.Execute(context.Background(), task)
	if !errors.Is(err, coordinator.ErrSessionOpen) {
		t.Fatalf("Execute() error = %v, want ErrSessionOpen", err)
	}
	if !e.IsNonRetryable(err) {
		t.Errorf("IsNonRetryable(%v) = false, want true", err)
	}
}
