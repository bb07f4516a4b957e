package batcher

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type dedupKey struct {
	chatID    int64
	messageID int
}

type dedupRecord struct {
	key       dedupKey
	expiresAt time.Time
}

// DedupGate remembers recently admitted (chat, message) pairs so that redelivered
// updates are dropped. Records expire after a fixed window; the set holds at most
// maxRecords entries and evicts the oldest when full.
type DedupGate struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	window     time.Duration
	maxRecords int
	records    map[dedupKey]*list.Element
	order      *list.List // oldest first; expiry order equals insertion order
}

// NewDedupGate creates a gate with the given expiry window. maxRecords <= 0 means unbounded.
func NewDedupGate(clock clockwork.Clock, window time.Duration, maxRecords int) *DedupGate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DedupGate{
		clock:      clock,
		window:     window,
		maxRecords: maxRecords,
		records:    make(map[dedupKey]*list.Element),
		order:      list.New(),
	}
}

// Admit reports whether the message should be processed. It returns false when the
// same (chatID, messageID) pair was admitted within the window, and otherwise records it.
func (g *DedupGate) Admit(chatID int64, messageID int) bool {
	now := g.clock.Now()
	key := dedupKey{chatID: chatID, messageID: messageID}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireLocked(now)

	if _, seen := g.records[key]; seen {
		return false
	}

	for g.maxRecords > 0 && len(g.records) >= g.maxRecords {
		g.removeLocked(g.order.Front())
	}

	g.records[key] = g.order.PushBack(dedupRecord{key: key, expiresAt: now.Add(g.window)})
	return true
}

// Sweep drops expired records and returns how many were removed.
func (g *DedupGate) Sweep() int {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.expireLocked(now)
}

// Len returns the number of live records.
func (g *DedupGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

func (g *DedupGate) expireLocked(now time.Time) int {
	removed := 0
	for e := g.order.Front(); e != nil; e = g.order.Front() {
		if now.Before(e.Value.(dedupRecord).expiresAt) {
			break
		}
		g.removeLocked(e)
		removed++
	}
	return removed
}

func (g *DedupGate) removeLocked(e *list.Element) {
	if e == nil {
		return
	}
	rec := g.order.Remove(e).(dedupRecord)
	delete(g.records, rec.key)
}
