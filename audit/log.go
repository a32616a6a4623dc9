// Package audit keeps a bounded, ordered log of inbound events.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/internal/snapshot"
)

const (
	DefaultCapacity   = 1000
	DefaultSummaryMax = 100
)

var ErrPersist = errors.New("audit: persist failed")

// Record is one audited event. Field names match the persisted layout.
type Record struct {
	Timestamp snapshot.Time `json:"timestamp"`
	UserID    int64         `json:"user_id"`
	Username  string        `json:"username"`
	Kind      inbound.Kind  `json:"message_type"`
	Summary   string        `json:"content"`
}

type Options struct {
	Capacity   int
	SummaryMax int
	Now        func() time.Time
}

// Log holds at most Capacity records, oldest first. Appending beyond
// capacity drops the oldest records.
type Log struct {
	mu         sync.Mutex
	records    []Record
	capacity   int
	summaryMax int
	now        func() time.Time
	persister  snapshot.Persister[[]Record]
}

func NewLog(persister snapshot.Persister[[]Record], opts Options) *Log {
	if persister == nil {
		persister = snapshot.NewMemory[[]Record]()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SummaryMax <= 0 {
		opts.SummaryMax = DefaultSummaryMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Log{
		capacity:   opts.Capacity,
		summaryMax: opts.SummaryMax,
		now:        opts.Now,
		persister:  persister,
	}
}

// Load replaces the in-memory log with the persisted one, keeping only the
// newest Capacity records.
func (l *Log) Load(ctx context.Context) error {
	records, _, err := l.persister.Load(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(records) > l.capacity {
		records = records[len(records)-l.capacity:]
	}
	l.records = append([]Record(nil), records...)
	return nil
}

// Append normalizes rec (timestamp defaults to now, summary truncated),
// appends it and persists the whole log. The stored record is returned
// even when persisting failed; the error then wraps ErrPersist.
func (l *Log) Append(ctx context.Context, rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = snapshot.At(l.now())
	}
	rec.Summary = Truncate(rec.Summary, l.summaryMax)

	next := l.records
	if len(next) >= l.capacity {
		drop := len(next) - l.capacity + 1
		next = append(make([]Record, 0, l.capacity), next[drop:]...)
	}
	l.records = append(next, rec)

	if err := l.persister.Save(ctx, l.copyLocked()); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return rec, nil
}

// Recent returns up to n of the newest records, oldest first. n <= 0
// returns all of them.
func (l *Log) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	return append([]Record(nil), l.records[len(l.records)-n:]...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Log) Capacity() int { return l.capacity }

func (l *Log) copyLocked() []Record {
	return append(make([]Record, 0, len(l.records)), l.records...)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
