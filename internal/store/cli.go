package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const cliPageSize = 100

// CLIStore drives the gh CLI instead of the REST client. Useful where a gh
// login already exists and no GitHub App credentials are configured.
type CLIStore struct {
	runner       CommandRunner
	repo         string // owner/name
	number       int
	token        string
	maxRetries   int
	initialDelay time.Duration
}

// NewCLIStore creates a gh-backed store bound to one pull request.
// An empty token relies on the ambient gh authentication.
func NewCLIStore(repo string, number int, token string) *CLIStore {
	return &CLIStore{
		runner:       &RealCommandRunner{},
		repo:         repo,
		number:       number,
		token:        token,
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
	}
}

type cliComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// FetchRecords pages through the comment list in ascending creation order.
func (s *CLIStore) FetchRecords(ctx context.Context) ([]Record, error) {
	var records []Record

	for page := 1; ; page++ {
		var batch []cliComment

		err := retryWithBackoff(s.maxRetries, s.initialDelay, func() error {
			path := fmt.Sprintf("repos/%s/issues/%d/comments?per_page=%d&page=%d",
				s.repo, s.number, cliPageSize, page)

			output, err := s.run("gh", "api", path)
			if err != nil {
				return fmt.Errorf("gh api failed: %w\nOutput: %s", err, string(output))
			}

			batch = batch[:0]
			if err := json.Unmarshal(output, &batch); err != nil {
				return fmt.Errorf("failed to parse comments: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: fetch comments for %s#%d: %v",
				ErrUnavailable, s.repo, s.number, err)
		}

		for _, c := range batch {
			records = append(records, Record{ID: c.ID, Body: c.Body, CreatedAt: c.CreatedAt})
		}

		if len(batch) < cliPageSize {
			break
		}
	}

	return records, nil
}

// AppendRecord posts one comment on the target.
func (s *CLIStore) AppendRecord(ctx context.Context, body string) error {
	err := retryWithBackoff(s.maxRetries, s.initialDelay, func() error {
		path := fmt.Sprintf("repos/%s/issues/%d/comments", s.repo, s.number)

		output, err := s.run("gh", "api", path, "-X", "POST", "-f", "body="+body)
		if err != nil {
			return fmt.Errorf("gh api failed: %w\nOutput: %s", err, string(output))
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if looksRejected(err) {
		return fmt.Errorf("%w: append to %s#%d: %v", ErrRejected, s.repo, s.number, err)
	}
	return fmt.Errorf("%w: append to %s#%d: %v", ErrUnavailable, s.repo, s.number, err)
}

// run executes a gh command with the store token exported, mirroring how gh
// itself picks up GITHUB_TOKEN.
func (s *CLIStore) run(name string, args ...string) ([]byte, error) {
	if s.token != "" {
		oldToken := os.Getenv("GITHUB_TOKEN")
		os.Setenv("GITHUB_TOKEN", s.token)
		defer os.Setenv("GITHUB_TOKEN", oldToken)
	}
	return s.runner.Run(name, args...)
}

// looksRejected reports whether a gh failure reads like an HTTP refusal
// rather than transport trouble.
func looksRejected(err error) bool {
	msg := strings.ToLower(err.Error())

	rejectionPatterns := []string{
		"http 401",
		"http 403",
		"http 404",
		"http 422",
		"forbidden",
		"not accessible",
		"permission",
	}

	for _, pattern := range rejectionPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
