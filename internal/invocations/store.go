package invocations

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Invocation records one role invocation against a pull request: who
// triggered it, which operation ran, and what the coordinator decided.
type Invocation struct {
	ID        string     `json:"id"`
	Op        string     `json:"op"`
	Repo      string     `json:"repo"`
	Number    int        `json:"number"`
	Actor     string     `json:"actor"`
	Status    Status     `json:"status"`
	SessionID string     `json:"session_id,omitempty"`
	Action    string     `json:"action,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Logs      []LogEntry `json:"logs,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, error, success
	Message   string    `json:"message"`
}

// Store is an in-memory invocation log for the JSON API. Coordination state
// itself lives in the comment thread; this store is observability only.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Invocation
}

func NewStore() *Store {
	return &Store{
		items: make(map[string]*Invocation),
	}
}

func (s *Store) Create(inv *Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = time.Now()
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	s.items[inv.ID] = inv
}

func (s *Store) Get(id string) (*Invocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.items[id]
	return inv, ok
}

// List returns all invocations, newest first.
func (s *Store) List() []*Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*Invocation, 0, len(s.items))
	for _, inv := range s.items {
		items = append(items, inv)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

func (s *Store) SetStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.items[id]; ok {
		inv.Status = status
		inv.UpdatedAt = time.Now()
	}
}

// RecordOutcome stores the coordinator's decision for an invocation.
func (s *Store) RecordOutcome(id, sessionID, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.items[id]; ok {
		inv.SessionID = sessionID
		inv.Action = action
		inv.UpdatedAt = time.Now()
	}
}

func (s *Store) AddLog(id, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.items[id]; ok {
		inv.Logs = append(inv.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
		inv.UpdatedAt = time.Now()
	}
}
