package session

// Phase classifies the resolved protocol state for a target object.
type Phase string

const (
	// PhaseNoSession means no record carries a recognizable marker
	PhaseNoSession Phase = "no-session"
	// PhaseOpen means the latest session has not been approved yet
	PhaseOpen Phase = "open"
	// PhaseApproved is terminal for the latest session
	PhaseApproved Phase = "approved"
)

// State is the protocol state computed from a record sequence.
// SessionID is empty only for PhaseNoSession. LatestKind and LatestBody
// describe the newest record of the open session and are empty otherwise.
type State struct {
	Phase      Phase
	SessionID  string
	LatestKind Kind
	LatestBody string
}

// Resolve computes the current protocol state from records in append order
// (oldest to newest).
//
// The newest record carrying any marker names the authoritative session;
// older session ids are historical and never resumed. A session is approved
// if any record bearing its id has kind approval, regardless of position:
// approval is sticky even when non-marker chatter follows it.
func Resolve(records []string) State {
	var (
		latestID   string
		latestKind Kind
		latestBody string
	)
	approved := make(map[string]bool)

	for _, text := range records {
		id, kind, ok := Extract(text)
		if !ok {
			continue
		}
		latestID = id
		latestKind = kind
		latestBody = StripMarker(text)
		if kind == KindApproval {
			approved[id] = true
		}
	}

	if latestID == "" {
		return State{Phase: PhaseNoSession}
	}
	if approved[latestID] {
		return State{Phase: PhaseApproved, SessionID: latestID}
	}
	return State{
		Phase:      PhaseOpen,
		SessionID:  latestID,
		LatestKind: latestKind,
		LatestBody: latestBody,
	}
}
