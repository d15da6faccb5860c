package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/reviewloop/internal/coordinator"
	"github.com/cexll/reviewloop/internal/store"
)

// newRecordStore builds the record store from environment variables.
// Swappable in tests.
var newRecordStore = func() (store.RecordStore, error) {
	owner := os.Getenv("REPO_OWNER")
	repo := os.Getenv("REPO_NAME")
	token := os.Getenv("GITHUB_TOKEN")

	number, err := strconv.Atoi(os.Getenv("PR_NUMBER"))
	if err != nil {
		return nil, fmt.Errorf("invalid PR_NUMBER: %w", err)
	}

	return store.NewGitHubStoreForToken(token, owner, repo, number), nil
}

// StatusParams defines the input parameters for review_status
type StatusParams struct{}

// BodyParams defines the input parameters for tools that post a record
type BodyParams struct {
	Body string `json:"body" jsonschema:"The human-readable content of the record"`
}

// NoteParams defines the input parameters for approve_session
type NoteParams struct {
	Note string `json:"note,omitempty" jsonschema:"Optional approval note"`
}

// HandleReviewStatus handles the review_status tool call
func HandleReviewStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params StatusParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Review Server] Received review_status request")

	c, err := newCoordinator()
	if err != nil {
		return nil, nil, err
	}

	state, err := c.Status(ctx)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return textResult(fmt.Sprintf(`{
  "phase": "%s",
  "session_id": "%s"
}`, state.Phase, state.SessionID)), nil, nil
}

// HandleSubmitForReview handles the submit_for_review tool call
func HandleSubmitForReview(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params BodyParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Review Server] Received submit_for_review request")

	if params.Body == "" {
		return nil, nil, fmt.Errorf("body parameter is required")
	}

	c, err := newCoordinator()
	if err != nil {
		return nil, nil, err
	}

	outcome, err := c.SubmitForReview(ctx, params.Body)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return outcomeResult(outcome), nil, nil
}

// HandlePostFindings handles the post_findings tool call
func HandlePostFindings(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params BodyParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Review Server] Received post_findings request")

	if params.Body == "" {
		return nil, nil, fmt.Errorf("body parameter is required")
	}

	c, err := newCoordinator()
	if err != nil {
		return nil, nil, err
	}

	outcome, err := c.PostFindings(ctx, params.Body)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return outcomeResult(outcome), nil, nil
}

// HandleApproveSession handles the approve_session tool call
func HandleApproveSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params NoteParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Review Server] Received approve_session request")

	c, err := newCoordinator()
	if err != nil {
		return nil, nil, err
	}

	outcome, err := c.Approve(ctx, params.Note)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return outcomeResult(outcome), nil, nil
}

func newCoordinator() (*coordinator.Coordinator, error) {
	st, err := newRecordStore()
	if err != nil {
		return nil, err
	}
	return coordinator.New(st), nil
}

func outcomeResult(outcome *coordinator.Outcome) *mcp.CallToolResult {
	log.Printf("[MCP Review Server] Action: %s, session: %s", outcome.Action, outcome.SessionID)
	return textResult(fmt.Sprintf(`{
  "action": "%s",
  "session_id": "%s",
  "prior_phase": "%s"
}`, outcome.Action, outcome.SessionID, outcome.State.Phase))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	log.Printf("[MCP Review Server] Tool call failed: %v", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
		},
		IsError: true,
	}
}
