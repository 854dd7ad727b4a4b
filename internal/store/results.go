package store

import (
	"time"

	"qc/internal/dataset"
)

// ResultKind tags which engine produced a stored result.
type ResultKind string

const (
	KindRules          ResultKind = "rules"
	KindComparison     ResultKind = "comparison"
	KindReconciliation ResultKind = "reconciliation"
	KindCalculation    ResultKind = "calculation"
)

// ResultRecord is one immutable engine result plus provenance.
type ResultRecord struct {
	ID        string     `json:"result_id"`
	Kind      ResultKind `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	Payload   any        `json:"result"`
	CreatedAt time.Time  `json:"created_at"`
}

// Results is a bounded, expiring store of engine results keyed by result id.
type Results struct {
	mem *Memory
}

func NewResults(ttl time.Duration, maxEntries int) *Results {
	return &Results{mem: NewMemory(ttl, maxEntries)}
}

func (r *Results) Put(rec *ResultRecord) {
	r.mem.Put(rec.ID, rec)
}

func (r *Results) Get(id string) (*ResultRecord, error) {
	v, err := r.mem.Get(id)
	if err != nil {
		return nil, err
	}
	return v.(*ResultRecord), nil
}

// Session is one loaded dataset plus how it was loaded.
type Session struct {
	ID         string           `json:"session_id"`
	Name       string           `json:"name,omitempty"`
	SourceType string           `json:"source_type"`
	Query      string           `json:"query,omitempty"`
	Data       *dataset.Dataset `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Sessions is a bounded, expiring store of loaded datasets keyed by session
// id. Readers share the dataset; engines never mutate it in place.
type Sessions struct {
	mem *Memory
}

func NewSessions(ttl time.Duration, maxEntries int) *Sessions {
	return &Sessions{mem: NewMemory(ttl, maxEntries)}
}

func (s *Sessions) Put(sess *Session) {
	s.mem.Put(sess.ID, sess)
}

func (s *Sessions) Get(id string) (*Session, error) {
	v, err := s.mem.Get(id)
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *Sessions) Delete(id string) {
	s.mem.Delete(id)
}

// List returns the live sessions, oldest first.
func (s *Sessions) List() []*Session {
	ids := s.mem.Keys()
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if v, err := s.mem.Get(id); err == nil {
			out = append(out, v.(*Session))
		}
	}
	return out
}
