package ygggo_invdb

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SlowQueryRecord is one statement that ran for at least the slow threshold.
type SlowQueryRecord struct {
	ID              string        `json:"id"`
	Operation       string        `json:"operation"`
	Query           string        `json:"query"`
	NormalizedQuery string        `json:"normalized_query"`
	Duration        time.Duration `json:"duration"`
	Timestamp       time.Time     `json:"timestamp"`
	Error           string        `json:"error,omitempty"`
}

// QueryPattern aggregates slow records sharing a normalized query.
type QueryPattern struct {
	NormalizedQuery string        `json:"normalized_query"`
	Count           int64         `json:"count"`
	TotalDuration   time.Duration `json:"total_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastSeen        time.Time     `json:"last_seen"`
}

// AverageDuration is TotalDuration / Count.
func (p QueryPattern) AverageDuration() time.Duration {
	if p.Count == 0 {
		return 0
	}
	return p.TotalDuration / time.Duration(p.Count)
}

// SlowQueryStats summarizes everything recorded since the last reset.
type SlowQueryStats struct {
	Threshold   time.Duration  `json:"threshold"`
	TotalCount  int64          `json:"total_count"`
	MaxDuration time.Duration  `json:"max_duration"`
	TopQueries  []QueryPattern `json:"top_queries"`
}

var (
	reStringLit = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	reNumberLit = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	reInList    = regexp.MustCompile(`(?i)\bIN\s*\([^)]*\)`)
	reSpace     = regexp.MustCompile(`\s+`)
)

// NormalizeQuery replaces literals with placeholders and collapses
// whitespace so equivalent statements group under one pattern.
func NormalizeQuery(query string) string {
	q := reStringLit.ReplaceAllString(query, "?")
	q = reNumberLit.ReplaceAllString(q, "?")
	q = reInList.ReplaceAllString(q, "IN (?)")
	q = reSpace.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// slowLog keeps the most recent slow statements in a bounded ring plus
// per-pattern totals. A nil slowLog or a zero threshold records nothing.
type slowLog struct {
	threshold time.Duration
	capacity  int

	mu       sync.Mutex
	records  []SlowQueryRecord
	next     int
	total    int64
	max      time.Duration
	patterns map[string]*QueryPattern
}

func newSlowLog(threshold time.Duration, capacity int) *slowLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &slowLog{
		threshold: threshold,
		capacity:  capacity,
		patterns:  make(map[string]*QueryPattern),
	}
}

// observe records the statement if it was slow and reports whether it was.
func (l *slowLog) observe(operation, query string, d time.Duration, err error) bool {
	if l == nil || l.threshold <= 0 || d < l.threshold {
		return false
	}
	rec := SlowQueryRecord{
		ID:              uuid.NewString(),
		Operation:       operation,
		Query:           query,
		NormalizedQuery: NormalizeQuery(query),
		Duration:        d,
		Timestamp:       time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) < l.capacity {
		l.records = append(l.records, rec)
	} else {
		l.records[l.next] = rec
	}
	l.next = (l.next + 1) % l.capacity
	l.total++
	if d > l.max {
		l.max = d
	}
	p, ok := l.patterns[rec.NormalizedQuery]
	if !ok {
		p = &QueryPattern{NormalizedQuery: rec.NormalizedQuery}
		l.patterns[rec.NormalizedQuery] = p
	}
	p.Count++
	p.TotalDuration += d
	if d > p.MaxDuration {
		p.MaxDuration = d
	}
	p.LastSeen = rec.Timestamp
	return true
}

// recent returns the kept records, newest first.
func (l *slowLog) recent() []SlowQueryRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SlowQueryRecord, 0, len(l.records))
	for i := 1; i <= len(l.records); i++ {
		out = append(out, l.records[(l.next-i+len(l.records))%len(l.records)])
	}
	return out
}

func (l *slowLog) stats(top int) SlowQueryStats {
	if l == nil {
		return SlowQueryStats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s := SlowQueryStats{Threshold: l.threshold, TotalCount: l.total, MaxDuration: l.max}
	for _, p := range l.patterns {
		s.TopQueries = append(s.TopQueries, *p)
	}
	sort.Slice(s.TopQueries, func(i, j int) bool {
		a, b := s.TopQueries[i], s.TopQueries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.TotalDuration > b.TotalDuration
	})
	if top > 0 && len(s.TopQueries) > top {
		s.TopQueries = s.TopQueries[:top]
	}
	return s
}

func (l *slowLog) reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.next = 0
	l.total = 0
	l.max = 0
	l.patterns = make(map[string]*QueryPattern)
}

// SlowQueries returns the most recent slow statements, newest first.
func (m *Manager) SlowQueries() []SlowQueryRecord { return m.slow.recent() }

// SlowQueryStats returns totals and the top patterns by count.
func (m *Manager) SlowQueryStats(top int) SlowQueryStats { return m.slow.stats(top) }

// ResetSlowQueries drops every recorded slow statement.
func (m *Manager) ResetSlowQueries() { m.slow.reset() }
