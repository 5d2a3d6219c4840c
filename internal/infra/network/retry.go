package network

import (
	"container/heap"
	"sync"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────
// Frames that failed to leave the socket are re-queued with exponential
// backoff. The min-heap is ordered by the time a frame becomes due, so the
// next frame to resend is always at the root.

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Resend attempts before the failure is reported
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// RetryEntry tracks a failed frame's retry state.
type RetryEntry struct {
	To        domain.Address
	Payload   []byte
	Attempt   int       // Current retry attempt (0 = first try)
	NextRetry time.Time // Earliest time this can be resent
	FailedAt  time.Time // When the last failure occurred
	Error     string    // Last failure reason
}

type retryHeap []RetryEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].NextRetry.Before(h[j].NextRetry) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)        { *h = append(*h, x.(RetryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// RetryQueue schedules frame resends with exponential backoff.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	heap   retryHeap

	// Stats
	totalRetries   int64
	totalExhausted int64 // Frames that exceeded MaxRetries
}

// NewRetryQueue creates an empty retry queue.
func NewRetryQueue(cfg RetryConfig) *RetryQueue {
	return &RetryQueue{config: cfg}
}

// ScheduleRetry queues a failed frame with exponential backoff.
// Returns false if the frame has exceeded MaxRetries.
func (rq *RetryQueue) ScheduleRetry(entry RetryEntry) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	entry.Attempt++
	if entry.Attempt > rq.config.MaxRetries {
		rq.totalExhausted++
		return false
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	delay := rq.config.BaseDelay
	for i := 1; i < entry.Attempt; i++ {
		delay *= 2
		if delay > rq.config.MaxDelay {
			delay = rq.config.MaxDelay
			break
		}
	}

	now := time.Now()
	entry.NextRetry = now.Add(delay)
	entry.FailedAt = now
	heap.Push(&rq.heap, entry)

	rq.totalRetries++
	return true
}

// NextReady returns the next frame due for resend, if any.
func (rq *RetryQueue) NextReady() (*RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if len(rq.heap) == 0 {
		return nil, false
	}
	if time.Now().Before(rq.heap[0].NextRetry) {
		return nil, false
	}
	entry := heap.Pop(&rq.heap).(RetryEntry)
	return &entry, true
}

// DrainReady pops every frame that is due, earliest first.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	var ready []RetryEntry
	for {
		entry, ok := rq.NextReady()
		if !ok {
			break
		}
		ready = append(ready, *entry)
	}
	return ready
}

// Len returns the number of frames pending resend.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return len(rq.heap)
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"`
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return RetryStats{
		PendingRetries: len(rq.heap),
		TotalRetries:   rq.totalRetries,
		TotalExhausted: rq.totalExhausted,
	}
}
