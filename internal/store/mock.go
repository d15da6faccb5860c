package store

import (
	"context"
	"time"
)

// MockStore is an in-memory RecordStore for tests.
type MockStore struct {
	Records []Record

	// FetchErr and AppendErr, when set, are returned by the matching call
	FetchErr  error
	AppendErr error

	// Track calls
	FetchCalls int
	Appended   []string
}

// NewMockStore creates a mock preloaded with the given record bodies.
func NewMockStore(bodies ...string) *MockStore {
	m := &MockStore{}
	for i, body := range bodies {
		m.Records = append(m.Records, Record{
			ID:        int64(i + 1),
			Body:      body,
			CreatedAt: time.Now(),
		})
	}
	return m
}

// FetchRecords returns a copy of the stored records in append order.
func (m *MockStore) FetchRecords(ctx context.Context) ([]Record, error) {
	m.FetchCalls++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return append([]Record(nil), m.Records...), nil
}

// AppendRecord records the body and appends it to the stored sequence.
func (m *MockStore) AppendRecord(ctx context.Context, body string) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appended = append(m.Appended, body)
	m.Records = append(m.Records, Record{
		ID:        int64(len(m.Records) + 1),
		Body:      body,
		CreatedAt: time.Now(),
	})
	return nil
}
