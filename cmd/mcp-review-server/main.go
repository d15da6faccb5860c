package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	// 1. Validate required environment variables
	requiredEnv := []string{"GITHUB_TOKEN", "REPO_OWNER", "REPO_NAME", "PR_NUMBER"}
	for _, env := range requiredEnv {
		if os.Getenv(env) == "" {
			log.Fatalf("[MCP Review Server] Missing required environment variable: %s", env)
		}
	}

	log.Println("[MCP Review Server] Starting Review Session MCP Server v1.0.0")
	log.Printf("[MCP Review Server] Repository: %s/%s", os.Getenv("REPO_OWNER"), os.Getenv("REPO_NAME"))
	log.Printf("[MCP Review Server] Pull request: #%s", os.Getenv("PR_NUMBER"))

	// 2. Create MCP server
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "review-session-server",
		Version: "v1.0.0",
	}, nil)

	// 3. Register review session tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "review_status",
		Description: "Resolve the current review session state for the pull request (no-session, open, or approved)",
	}, HandleReviewStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_for_review",
		Description: "Submit work for review: starts a new review session or posts a round summary into the open one",
	}, HandleSubmitForReview)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "post_findings",
		Description: "Post review findings into the open session, or as a one-off review comment when no session exists",
	}, HandlePostFindings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "approve_session",
		Description: "Approve and close the open review session",
	}, HandleApproveSession)

	log.Println("[MCP Review Server] Registered tools: review_status, submit_for_review, post_findings, approve_session")

	// 4. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Review Server] Received shutdown signal")
		cancel()
	}()

	// 5. Start server with stdio transport
	log.Println("[MCP Review Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Review Server] Server error: %v", err)
	}
	log.Println("[MCP Review Server] Server stopped gracefully")
}
