package buffer

import (
	"sync"
	"time"
)

// historyCapacity bounds the snapshot ring; one snapshot per monitor
// tick, so 500 covers roughly 16 minutes at the default interval.
const historyCapacity = 500

// Snapshot is one buffer observation, taken once per monitoring tick.
// Snapshots are immutable after creation.
type Snapshot struct {
	Timestamp     time.Time
	BufferLevelMs float64 // currently buffered duration
	TargetLevelMs float64 // desired buffered duration
	Stalled       bool
	RebufferCount int // cumulative
	Config        BufferConfiguration
}

// snapshotHistory is a fixed-capacity ring of snapshots. The monitor
// loop is the only writer; readers get copies and tolerate eventual
// consistency.
type snapshotHistory struct {
	mu       sync.RWMutex
	data     []Snapshot
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest element
}

func newSnapshotHistory(capacity int) *snapshotHistory {
	return &snapshotHistory{
		data:     make([]Snapshot, capacity),
		capacity: capacity,
	}
}

// Append adds a snapshot, evicting the oldest once the ring is full.
func (h *snapshotHistory) Append(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data[h.head] = s
	h.head = (h.head + 1) % h.capacity

	if h.size < h.capacity {
		h.size++
	} else {
		h.tail = (h.tail + 1) % h.capacity
	}
}

// Recent returns up to n most recent snapshots in chronological order
// (oldest first).
func (h *snapshotHistory) Recent(n int) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.size {
		n = h.size
	}
	if n == 0 {
		return nil
	}

	result := make([]Snapshot, n)
	start := (h.head - n + h.capacity) % h.capacity
	for i := 0; i < n; i++ {
		result[i] = h.data[(start+i)%h.capacity]
	}
	return result
}

// All returns every stored snapshot in chronological order.
func (h *snapshotHistory) All() []Snapshot {
	h.mu.RLock()
	n := h.size
	h.mu.RUnlock()
	return h.Recent(n)
}

func (h *snapshotHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *snapshotHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.size = 0
	h.head = 0
	h.tail = 0
}
