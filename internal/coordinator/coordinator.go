package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cexll/reviewloop/internal/session"
	"github.com/cexll/reviewloop/internal/store"
)

// Action describes the side effect one invocation performed.
type Action string

const (
	// ActionSessionStarted means a new session id was generated and its
	// first round summary posted
	ActionSessionStarted Action = "session-started"
	// ActionSummaryPosted means a round summary was posted on the open session
	ActionSummaryPosted Action = "summary-posted"
	// ActionFindingsPosted means reviewer findings were posted on the open session
	ActionFindingsPosted Action = "findings-posted"
	// ActionApproved means the open session was closed with an approval record
	ActionApproved Action = "approved"
	// ActionOneOffReview means the reviewer posted outside the protocol:
	// no session existed and none was fabricated
	ActionOneOffReview Action = "one-off-review"
	// ActionNone means the invocation short-circuited with no side effects
	ActionNone Action = "none"
)

// ErrSessionOpen indicates a new session was requested while one is still open.
var ErrSessionOpen = errors.New("a review session is already open")

// Outcome reports what an invocation decided and did. State is the protocol
// state as resolved before the action.
type Outcome struct {
	Action    Action
	SessionID string
	State     session.State
}

// Coordinator runs one bounded invocation of either review role against a
// shared comment thread: resolve state, optionally append one record, return.
// It holds no state of its own between invocations.
type Coordinator struct {
	store store.RecordStore
}

// New creates a coordinator over the given record store.
func New(st store.RecordStore) *Coordinator {
	return &Coordinator{store: st}
}

// Status resolves the current session state without side effects.
func (c *Coordinator) Status(ctx context.Context) (session.State, error) {
	return c.resolve(ctx)
}

// SubmitForReview is the reviewee role: it originates a session when none
// exists and posts the round summary on the current session otherwise.
// An approved session is terminal; submitting against one is a no-op.
func (c *Coordinator) SubmitForReview(ctx context.Context, summary string) (*Outcome, error) {
	state, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	switch state.Phase {
	case session.PhaseApproved:
		log.Printf("[Coordinator] Session %s already approved, nothing to submit", state.SessionID)
		return &Outcome{Action: ActionNone, SessionID: state.SessionID, State: state}, nil

	case session.PhaseOpen:
		record := session.Embed(state.SessionID, session.KindRoundSummary, summary)
		if err := c.store.AppendRecord(ctx, record); err != nil {
			return nil, err
		}
		log.Printf("[Coordinator] Posted round summary for session %s", state.SessionID)
		return &Outcome{Action: ActionSummaryPosted, SessionID: state.SessionID, State: state}, nil

	default:
		return c.startSession(ctx, state, summary)
	}
}

// StartSession begins a brand-new loop with a fresh session id. An approved
// session is never reopened; starting while another session is still open is
// refused to keep at most one session open per target.
func (c *Coordinator) StartSession(ctx context.Context, summary string) (*Outcome, error) {
	state, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	if state.Phase == session.PhaseOpen {
		return nil, fmt.Errorf("%w: %s", ErrSessionOpen, state.SessionID)
	}
	return c.startSession(ctx, state, summary)
}

func (c *Coordinator) startSession(ctx context.Context, state session.State, summary string) (*Outcome, error) {
	id, err := session.NewID()
	if err != nil {
		return nil, err
	}

	record := session.Embed(id, session.KindRoundSummary, summary)
	if err := c.store.AppendRecord(ctx, record); err != nil {
		return nil, err
	}

	log.Printf("[Coordinator] Started session %s", id)
	return &Outcome{Action: ActionSessionStarted, SessionID: id, State: state}, nil
}

// PostFindings is the reviewer role with at least one blocking finding.
// Without a session it posts a plain one-off review: only the reviewee may
// originate a session id, so no marker is embedded.
func (c *Coordinator) PostFindings(ctx context.Context, findings string) (*Outcome, error) {
	state, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	switch state.Phase {
	case session.PhaseApproved:
		log.Printf("[Coordinator] Session %s already approved, not posting findings", state.SessionID)
		return &Outcome{Action: ActionNone, SessionID: state.SessionID, State: state}, nil

	case session.PhaseOpen:
		record := session.Embed(state.SessionID, session.KindRoundFindings, findings)
		if err := c.store.AppendRecord(ctx, record); err != nil {
			return nil, err
		}
		log.Printf("[Coordinator] Posted findings for session %s", state.SessionID)
		return &Outcome{Action: ActionFindingsPosted, SessionID: state.SessionID, State: state}, nil

	default:
		if err := c.store.AppendRecord(ctx, findings); err != nil {
			return nil, err
		}
		log.Printf("[Coordinator] No session on target, posted one-off review")
		return &Outcome{Action: ActionOneOffReview, State: state}, nil
	}
}

// Approve is the reviewer role with zero findings. On an open session it
// posts the approval record that permanently closes the session. Without a
// session there is nothing to close; a non-empty note is posted plain.
func (c *Coordinator) Approve(ctx context.Context, note string) (*Outcome, error) {
	state, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	switch state.Phase {
	case session.PhaseApproved:
		log.Printf("[Coordinator] Session %s already approved", state.SessionID)
		return &Outcome{Action: ActionNone, SessionID: state.SessionID, State: state}, nil

	case session.PhaseOpen:
		record := session.Embed(state.SessionID, session.KindApproval, note)
		if err := c.store.AppendRecord(ctx, record); err != nil {
			return nil, err
		}
		log.Printf("[Coordinator] Approved session %s", state.SessionID)
		return &Outcome{Action: ActionApproved, SessionID: state.SessionID, State: state}, nil

	default:
		if note == "" {
			return &Outcome{Action: ActionNone, State: state}, nil
		}
		if err := c.store.AppendRecord(ctx, note); err != nil {
			return nil, err
		}
		log.Printf("[Coordinator] No session on target, posted one-off approval note")
		return &Outcome{Action: ActionOneOffReview, State: state}, nil
	}
}

// resolve fetches the thread and computes the protocol state. Collaborator
// failures bubble up unresolved; an unreadable thread is never NoSession.
func (c *Coordinator) resolve(ctx context.Context) (session.State, error) {
	records, err := c.store.FetchRecords(ctx)
	if err != nil {
		return session.State{}, fmt.Errorf("unable to determine review session state: %w", err)
	}

	bodies := make([]string, 0, len(records))
	for _, r := range records {
		bodies = append(bodies, r.Body)
	}
	return session.Resolve(bodies), nil
}
