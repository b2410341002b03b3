package service

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pharos.xyz/statschecker/internal/modules/leaderboard/repository"
)

// RankIndexEntry maps one distinct score to its rank.
type RankIndexEntry struct {
	Points int64 `json:"points"`
	Rank   int64 `json:"rank"`
}

// persistedRankIndex is the stored form, kept next to the score index so a
// rebuilt index outlives the process.
type persistedRankIndex struct {
	ValidUntil time.Time        `json:"valid_until"`
	Entries    []RankIndexEntry `json:"entries"`
}

// RankIndex answers "what rank does this many points get" from a table
// rebuilt at most once per UTC day, instead of a range count per request.
//
// Entries are sorted by Points descending; each Rank is
// 1 + the number of wallets with strictly more points.
type RankIndex struct {
	mu         sync.RWMutex
	entries    []RankIndexEntry
	validUntil time.Time
	clock      clockwork.Clock
}

func NewRankIndex(clock clockwork.Clock) *RankIndex {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RankIndex{clock: clock}
}

// RankOf returns the rank for points, or false when the index is empty or
// past its validity deadline and the caller must count against the store.
//
// Points between two indexed scores get the rank of the next-higher score;
// points below the lowest score get that score's rank; points at or above the
// highest score get rank 1.
func (ri *RankIndex) RankOf(points int64) (int64, bool) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	if !ri.validLocked() {
		return 0, false
	}

	n := len(ri.entries)
	// first entry whose points do not exceed the query
	i := sort.Search(n, func(i int) bool { return ri.entries[i].Points <= points })

	switch {
	case i == 0:
		return 1, true
	case i < n && ri.entries[i].Points == points:
		return ri.entries[i].Rank, true
	case i == n:
		return ri.entries[n-1].Rank, true
	default:
		return ri.entries[i-1].Rank, true
	}
}

// Rebuild replaces the table from a full score listing (any order) and sets the
// deadline to the next UTC midnight.
func (ri *RankIndex) Rebuild(scores []repository.ScoreEntry) {
	entries := buildRankEntries(scores)
	validUntil := nextUTCMidnight(ri.clock.Now())

	ri.mu.Lock()
	ri.entries = entries
	ri.validUntil = validUntil
	ri.mu.Unlock()
}

// Invalidate drops the validity deadline but keeps the table, so Status still
// reports what was there.
func (ri *RankIndex) Invalidate() {
	ri.mu.Lock()
	ri.validUntil = time.Time{}
	ri.mu.Unlock()
}

func (ri *RankIndex) Valid() bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.validLocked()
}

func (ri *RankIndex) validLocked() bool {
	return len(ri.entries) > 0 && ri.clock.Now().Before(ri.validUntil)
}

// Status reports entry count and deadline.
func (ri *RankIndex) Status() (entries int, validUntil time.Time, valid bool) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.entries), ri.validUntil, ri.validLocked()
}

// Len is the number of distinct scores indexed.
func (ri *RankIndex) Len() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.entries)
}

// Export serializes the index together with its deadline.
func (ri *RankIndex) Export() ([]byte, time.Time, error) {
	ri.mu.RLock()
	p := persistedRankIndex{
		ValidUntil: ri.validUntil,
		Entries:    ri.entries,
	}
	ri.mu.RUnlock()

	b, err := json.Marshal(p)
	return b, p.ValidUntil, err
}

// Import loads a previously exported index. It reports whether the loaded
// index is usable; an expired payload is ignored and the current state kept.
func (ri *RankIndex) Import(payload []byte) (bool, error) {
	var p persistedRankIndex
	if err := json.Unmarshal(payload, &p); err != nil {
		return false, err
	}
	if len(p.Entries) == 0 || !ri.clock.Now().Before(p.ValidUntil) {
		return false, nil
	}
	if !sort.SliceIsSorted(p.Entries, func(i, j int) bool { return p.Entries[i].Points > p.Entries[j].Points }) {
		sort.Slice(p.Entries, func(i, j int) bool { return p.Entries[i].Points > p.Entries[j].Points })
	}

	ri.mu.Lock()
	ri.entries = p.Entries
	ri.validUntil = p.ValidUntil
	ri.mu.Unlock()
	return true, nil
}

// buildRankEntries groups scores by value, sorts distinct values descending and
// gives each the count of wallets strictly above it plus one.
func buildRankEntries(scores []repository.ScoreEntry) []RankIndexEntry {
	counts := make(map[int64]int64, len(scores))
	for _, s := range scores {
		counts[s.Points]++
	}

	distinct := make([]int64, 0, len(counts))
	for p := range counts {
		distinct = append(distinct, p)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] > distinct[j] })

	entries := make([]RankIndexEntry, len(distinct))
	var above int64
	for i, p := range distinct {
		entries[i] = RankIndexEntry{Points: p, Rank: above + 1}
		above += counts[p]
	}
	return entries
}

func nextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
