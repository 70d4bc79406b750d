package engine

import "sync"

// historyRing keeps the most recent cycle records in arrival order.
// Reflect appends, status handlers read.
type historyRing struct {
	mu  sync.RWMutex
	max int
	buf []CycleRecord
}

func newHistoryRing(max int) *historyRing {
	return &historyRing{max: max}
}

func (r *historyRing) append(rec CycleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, rec)
	if len(r.buf) > r.max {
		trimmed := make([]CycleRecord, r.max)
		copy(trimmed, r.buf[len(r.buf)-r.max:])
		r.buf = trimmed
	}
}

// last returns up to n records, oldest first.
func (r *historyRing) last(n int) []CycleRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]CycleRecord, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

func (r *historyRing) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}
