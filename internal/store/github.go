package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"
)

// GitHubStore reads and appends PR comments through the GitHub REST API.
// PR comments live on the issues endpoints, so it works for issues too.
type GitHubStore struct {
	client *gh.Client
	owner  string
	repo   string
	number int
}

// NewGitHubStore creates a store bound to one pull request.
func NewGitHubStore(client *gh.Client, owner, repo string, number int) *GitHubStore {
	return &GitHubStore{
		client: client,
		owner:  owner,
		repo:   repo,
		number: number,
	}
}

// NewGitHubStoreForToken builds a store with a token-authenticated client.
func NewGitHubStoreForToken(token, owner, repo string, number int) *GitHubStore {
	return NewGitHubStore(gh.NewClient(nil).WithAuthToken(token), owner, repo, number)
}

// FetchRecords returns all comments in ascending creation order, following
// pagination. Any failure maps to ErrUnavailable: an unreadable thread is
// never an empty thread.
func (s *GitHubStore) FetchRecords(ctx context.Context) ([]Record, error) {
	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.String("created"),
		Direction:   gh.String("asc"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var records []Record
	for {
		comments, resp, err := s.client.Issues.ListComments(ctx, s.owner, s.repo, s.number, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: list comments for %s/%s#%d: %v",
				ErrUnavailable, s.owner, s.repo, s.number, err)
		}

		for _, c := range comments {
			records = append(records, Record{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return records, nil
}

// AppendRecord creates one comment on the target.
func (s *GitHubStore) AppendRecord(ctx context.Context, body string) error {
	comment := &gh.IssueComment{Body: gh.String(body)}
	_, _, err := s.client.Issues.CreateComment(ctx, s.owner, s.repo, s.number, comment)
	if err == nil {
		return nil
	}

	if isRejection(err) {
		return fmt.Errorf("%w: create comment on %s/%s#%d: %v",
			ErrRejected, s.owner, s.repo, s.number, err)
	}
	return fmt.Errorf("%w: create comment on %s/%s#%d: %v",
		ErrUnavailable, s.owner, s.repo, s.number, err)
}

// isRejection classifies append failures: HTTP-level refusals are permanent,
// everything else is transport trouble.
func isRejection(err error) bool {
	var ghErr *gh.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}

	switch ghErr.Response.StatusCode {
	case http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}
