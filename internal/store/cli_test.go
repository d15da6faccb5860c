package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func newTestCLIStore(runner CommandRunner) *CLIStore {
	s := NewCLIStore("owner/repo", 42, "test-token")
	s.runner = runner
	s.maxRetries = 1
	s.initialDelay = 0
	return s
}

func TestCLIStore_FetchRecords(t *testing.T) {
	runner := &MockCommandRunner{
		RunFunc: func(name string, args ...string) ([]byte, error) {
			return []byte(`[
				{"id": 1, "body": "first", "created_at": "2026-01-02T03:04:05Z"},
				{"id": 2, "body": "second", "created_at": "2026-01-02T03:05:05Z"}
			]`), nil
		},
	}

	s := newTestCLIStore(runner)
	records, err := s.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("FetchRecords() returned %d records, want 2", len(records))
	}
	if records[0].Body != "first" || records[1].Body != "second" {
		t.Errorf("FetchRecords() order wrong: %q then %q", records[0].Body, records[1].Body)
	}

	if len(runner.Calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.Calls))
	}
	call := runner.Calls[0]
	if call.Name != "gh" || call.Args[0] != "api" {
		t.Errorf("unexpected command: %s %v", call.Name, call.Args)
	}
	if !strings.Contains(call.Args[1], "repos/owner/repo/issues/42/comments") {
		t.Errorf("unexpected api path: %s", call.Args[1])
	}
}

func TestCLIStore_FetchRecords_Unavailable(t *testing.T) {
	runner := &MockCommandRunner{
		RunFunc: func(name string, args ...string) ([]byte, error) {
			return []byte("dial tcp: connection refused"), errors.New("exit status 1")
		},
	}

	s := newTestCLIStore(runner)
	_, err := s.FetchRecords(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("FetchRecords() error = %v, want ErrUnavailable", err)
	}
}

func TestCLIStore_FetchRecords_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	runner := &MockCommandRunner{
		RunFunc: func(name string, args ...string) ([]byte, error) {
			attempts++
			if attempts == 1 {
				return []byte("connection reset by peer"), errors.New("exit status 1")
			}
			return []byte(`[{"id": 1, "body": "ok", "created_at": "2026-01-02T03:04:05Z"}]`), nil
		},
	}

	s := newTestCLIStore(runner)
	records, err := s.FetchRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRecords() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(records) != 1 || records[0].Body != "ok" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestCLIStore_AppendRecord(t *testing.T) {
	runner := &MockCommandRunner{}

	s := newTestCLIStore(runner)
	if err := s.AppendRecord(context.Background(), "hello thread"); err != nil {
		t.Fatalf("AppendRecord() error = %v", err)
	}

	if len(runner.Calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.Calls))
	}
	args := runner.Calls[0].Args
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-X POST") {
		t.Errorf("append is not a POST: %v", args)
	}
	if !strings.Contains(joined, "body=hello thread") {
		t.Errorf("append missing body field: %v", args)
	}
}

func TestCLIStore_AppendRecord_Classification(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr error
	}{
		{
			name:    "permission refused",
			output:  "HTTP 403: Resource not accessible by integration",
			wantErr: ErrRejected,
		},
		{
			name:    "missing target",
			output:  "HTTP 404: Not Found",
			wantErr: ErrRejected,
		},
		{
			name:    "validation refused",
			output:  "HTTP 422: Validation Failed",
			wantErr: ErrRejected,
		},
		{
			name:    "network failure",
			output:  "dial tcp: no such host",
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockCommandRunner{
				RunFunc: func(name string, args ...string) ([]byte, error) {
					return []byte(tt.output), fmt.Errorf("exit status 1")
				},
			}

			s := newTestCLIStore(runner)
			err := s.AppendRecord(context.Background(), "body")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AppendRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(3, 0, func() error {
		attempts++
		return errors.New("HTTP 403: Forbidden")
	})

	if err == nil {
		t.Fatalf("retryWithBackoff() error = nil, want error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (permanent errors must not retry)", attempts)
	}
}

func TestRetryWithBackoff_RecoversFromTransientError(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(3, 0, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("read: connection timeout")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("retryWithBackoff() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
