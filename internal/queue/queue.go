package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)

// Item is one warming request: a line of text to synthesize and cache
// ahead of playback.
type Item struct {
	Text     string
	Language string
	Line     int // source line index, for logging
	Priority int // higher drains sooner
}

// WarmQueue orders warming requests so the lines a reader is about to
// reach are fetched first. Duplicate requests for a line already
// queued are absorbed. Enqueue never blocks; a full queue drops the
// request instead of stalling the playback path that issued it.
type WarmQueue struct {
	items   itemHeap
	pending map[string]struct{} // lang|text pairs currently queued

	// Configuration
	maxSize int

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond

	// State
	closed bool
	seq    int64 // tiebreaker preserving enqueue order within a priority
	stats  Stats
}

// Stats tracks queue performance metrics
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	TotalDeduped  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// NewWarmQueue creates a warming queue holding at most maxSize items.
func NewWarmQueue(maxSize int) *WarmQueue {
	q := &WarmQueue{
		pending: make(map[string]struct{}),
		maxSize: maxSize,
	}
	heap.Init(&q.items)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a warming request. Requests for a line already queued
// are absorbed, keeping the higher priority of the two. A full queue
// drops the request and reports ErrQueueFull.
func (q *WarmQueue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	id := item.Language + "|" + item.Text
	if _, dup := q.pending[id]; dup {
		q.stats.TotalDeduped++
		q.bumpPriority(id, item.Priority)
		return nil
	}

	if q.maxSize > 0 && q.items.Len() >= q.maxSize {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	q.seq++
	heap.Push(&q.items, &queueEntry{item: item, id: id, seq: q.seq})
	q.pending[id] = struct{}{}

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	q.stats.CurrentSize = q.items.Len()
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}

	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the highest-priority request, blocking
// until one arrives or the queue closes.
func (q *WarmQueue) Dequeue() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return Item{}, ErrQueueClosed
	}

	return q.popLocked(), nil
}

// TryDequeue removes the highest-priority request without blocking.
func (q *WarmQueue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.items.Len() == 0 {
		return Item{}, false
	}
	return q.popLocked(), true
}

// Size returns the number of queued requests.
func (q *WarmQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Clear drops every queued request. Workers mid-request are not
// interrupted.
func (q *WarmQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	heap.Init(&q.items)
	q.pending = make(map[string]struct{})
	q.stats.CurrentSize = 0
}

// GetStats returns current queue statistics.
func (q *WarmQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = q.items.Len()
	return stats
}

// Close shuts the queue down and wakes blocked workers.
func (q *WarmQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	return nil
}

// popLocked removes the head entry (must be called with lock held).
func (q *WarmQueue) popLocked() Item {
	entry := heap.Pop(&q.items).(*queueEntry)
	delete(q.pending, entry.id)

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	q.stats.CurrentSize = q.items.Len()

	return entry.item
}

// bumpPriority raises a queued duplicate to at least priority (must be
// called with lock held).
func (q *WarmQueue) bumpPriority(id string, priority int) {
	for i, entry := range q.items {
		if entry.id == id {
			if priority > entry.item.Priority {
				entry.item.Priority = priority
				heap.Fix(&q.items, i)
			}
			return
		}
	}
}

// Priority queue implementation using a heap
type queueEntry struct {
	item  Item
	id    string
	seq   int64
	index int // Index in the heap
}

type itemHeap []*queueEntry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	// Higher priority first, then enqueue order
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority > h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	entry := x.(*queueEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil   // Avoid memory leak
	entry.index = -1 // For safety
	*h = old[0 : n-1]
	return entry
}
