package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cexll/reviewloop/internal/github"
	"github.com/cexll/reviewloop/internal/invocations"
)

// Op names one coordinator operation a trigger comment can request.
type Op string

const (
	// OpSubmit is the reviewee role: start or continue a session
	OpSubmit Op = "submit"
	// OpStart is the reviewee role: force a brand-new session
	OpStart Op = "start"
	// OpFindings is the reviewer role with blocking findings
	OpFindings Op = "findings"
	// OpApprove is the reviewer role with zero findings
	OpApprove Op = "approve"
)

// Task is one role invocation to be executed against a pull request
type Task struct {
	ID       string
	Repo     string
	Number   int
	Op       Op
	Body     string
	Username string
	Attempt  int // Current attempt number (managed by dispatcher)
}

// TaskDispatcher enqueues tasks for asynchronous execution
type TaskDispatcher interface {
	Enqueue(task *Task) error
}

// Handler handles GitHub webhook events
type Handler struct {
	webhookSecret  string
	triggerKeyword string
	dispatcher     TaskDispatcher
	deduper        *commentDeduper
	store          *invocations.Store
	appAuth        github.AuthProvider
}

// NewHandler creates a new webhook handler
func NewHandler(webhookSecret, triggerKeyword string, dispatcher TaskDispatcher, store *invocations.Store, appAuth github.AuthProvider) *Handler {
	return &Handler{
		webhookSecret:  webhookSecret,
		triggerKeyword: triggerKeyword,
		dispatcher:     dispatcher,
		deduper:        newCommentDeduper(12 * time.Hour),
		store:          store,
		appAuth:        appAuth,
	}
}

// Handle handles GitHub webhook events. Only issue_comment events on pull
// requests can trigger a role invocation; everything else is acknowledged
// and ignored.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading payload: %v", err)
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		log.Printf("Invalid signature header: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	if !VerifySignature(payload, signature, h.webhookSecret) {
		log.Printf("Signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType != "issue_comment" {
		log.Printf("Ignoring unsupported event type: %s", eventType)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event ignored"))
		return
	}

	h.handleIssueComment(w, payload)
}

func (h *Handler) handleIssueComment(w http.ResponseWriter, payload []byte) {
	var event IssueCommentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("Error parsing event: %v", err)
		http.Error(w, "Error parsing event", http.StatusBadRequest)
		return
	}

	// Only handle newly created comments
	if event.Action != "created" {
		log.Printf("Ignoring issue_comment action: %s", event.Action)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Issue comment action ignored"))
		return
	}

	// Our own protocol records come back as bot comments; never trigger on them
	if event.Comment.User.Type == "Bot" {
		log.Printf("Ignoring comment from bot: %s", event.Comment.User.Login)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Bot comment ignored"))
		return
	}

	// Review sessions live on pull requests only
	if event.Issue.PullRequest == nil {
		log.Printf("Ignoring comment on non-PR issue #%d", event.Issue.Number)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Not a pull request"))
		return
	}

	op, body, found := parseTrigger(event.Comment.Body, h.triggerKeyword)
	if !found {
		log.Printf("Comment does not contain a %q trigger", h.triggerKeyword)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("No trigger found"))
		return
	}

	if !h.verifyPermission(event.Repository.FullName, event.Comment.User.Login) {
		log.Printf("Permission denied: user %s is not the app installer", event.Comment.User.Login)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Permission denied"))
		return
	}

	// Prevent duplicate processing for the same comment ID
	if !h.deduper.markIfNew(event.Comment.ID) {
		log.Printf("Ignoring duplicate comment: id=%d", event.Comment.ID)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Duplicate comment ignored"))
		return
	}

	task := &Task{
		ID:       generateTaskID(event.Repository.FullName, event.Issue.Number),
		Repo:     event.Repository.FullName,
		Number:   event.Issue.Number,
		Op:       op,
		Body:     body,
		Username: event.Comment.User.Login,
	}

	h.createInvocation(task)

	log.Printf("Received %s task: repo=%s, number=%d, commentID=%d, user=%s",
		task.Op, task.Repo, task.Number, event.Comment.ID, task.Username)

	h.enqueueTask(w, task)
}

// verifyPermission checks if the user has permission to trigger role
// invocations. Returns true if user is the GitHub App installer.
func (h *Handler) verifyPermission(repo, username string) bool {
	// Allow override via environment for development or lenient deployments
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_ALL_USERS")), "true") ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("PERMISSION_MODE")), "open") {
		log.Printf("Permission override enabled via env (ALLOW_ALL_USERS/PERMISSION_MODE), allowing user %s", username)
		return true
	}

	if h.appAuth == nil {
		log.Printf("Warning: No app auth provider configured, allowing all users")
		return true
	}

	owner, err := h.appAuth.GetInstallationOwner(repo)
	if err != nil {
		log.Printf("Warning: Failed to get installation owner: %v (allowing request)", err)
		// On error, allow the request (fail-open for robustness)
		return true
	}

	if username != owner {
		log.Printf("Permission check failed: user=%s, installer=%s", username, owner)
		return false
	}

	return true
}

func (h *Handler) createInvocation(task *Task) {
	if h.store == nil {
		return
	}

	h.store.Create(&invocations.Invocation{
		ID:     task.ID,
		Op:     string(task.Op),
		Repo:   task.Repo,
		Number: task.Number,
		Actor:  task.Username,
		Status: invocations.StatusPending,
	})
	h.store.AddLog(task.ID, "info", "Invocation queued")
}

func (h *Handler) enqueueTask(w http.ResponseWriter, task *Task) {
	if err := h.dispatcher.Enqueue(task); err != nil {
		log.Printf("Failed to enqueue task: %v", err)
		switch {
		case errors.Is(err, ErrQueueFull):
			http.Error(w, "Task queue is busy, try again later", http.StatusServiceUnavailable)
		case errors.Is(err, ErrQueueClosed):
			http.Error(w, "Task queue unavailable", http.StatusServiceUnavailable)
		default:
			http.Error(w, "Failed to enqueue task", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Task queued"))
}

func generateTaskID(repo string, number int) string {
	timestamp := time.Now().UnixNano()
	sanitized := strings.ReplaceAll(repo, "/", "-")
	return fmt.Sprintf("%s-%d-%d", sanitized, number, timestamp)
}

// parseTrigger extracts the operation and its free-form body from a trigger
// comment. The grammar is "<keyword> <op> [body...]", e.g.
// "/review submit Fixed the nil deref". Unknown subcommands do not trigger.
func parseTrigger(body, triggerKeyword string) (Op, string, bool) {
	idx := strings.Index(body, triggerKeyword)
	if idx == -1 {
		return "", "", false
	}

	remaining := strings.TrimSpace(body[idx+len(triggerKeyword):])
	if remaining == "" {
		return "", "", false
	}

	sub := remaining
	rest := ""
	if i := strings.IndexAny(remaining, " \t\n"); i >= 0 {
		sub = remaining[:i]
		rest = strings.TrimSpace(remaining[i:])
	}

	switch Op(strings.ToLower(sub)) {
	case OpSubmit:
		return OpSubmit, rest, true
	case OpStart:
		return OpStart, rest, true
	case OpFindings:
		return OpFindings, rest, true
	case OpApprove:
		return OpApprove, rest, true
	default:
		return "", "", false
	}
}
