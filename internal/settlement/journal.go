package settlement

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Outcomes recorded in the journal.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

// Record is the journal entry for one settlement attempt.
type Record struct {
	ID           string
	PrincipalID  string
	UnitID       string
	Accounts     Accounts
	LoanAmount   uint64
	MinProfit    uint64
	Profit       uint64
	RepayAmount  uint64
	Outcome      string
	FinalState   State
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
}

// Stats aggregates the journal.
type Stats struct {
	Total         int64
	Committed     int64
	Aborted       int64
	TotalProfit   uint64
	AverageProfit float64
	SuccessRate   float64
}

// Repository persists settlement records.
type Repository interface {
	Create(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)
}

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRepository constructs an in-memory journal for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Record)}
}

func (r *memoryRepository) Create(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (r *memoryRepository) ListByPrincipal(_ context.Context, principalID string, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, record := range r.records {
		if record.PrincipalID == principalID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) Stats(_ context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Stats
	for _, record := range r.records {
		s.Total++
		if record.Outcome != OutcomeCommitted {
			s.Aborted++
			continue
		}
		s.Committed++
		if s.TotalProfit > math.MaxUint64-record.Profit {
			s.TotalProfit = math.MaxUint64
		} else {
			s.TotalProfit += record.Profit
		}
	}
	return finishStats(s), nil
}

func finishStats(s Stats) Stats {
	if s.Committed > 0 {
		s.AverageProfit = float64(s.TotalProfit) / float64(s.Committed)
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Committed) / float64(s.Total) * 100
	}
	return s
}
