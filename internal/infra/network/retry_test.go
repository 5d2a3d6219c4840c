package network

import (
	"testing"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
)

// ─── Retry Queue Tests ──────────────────────────────────────────────────────

var peer = domain.Address{IP: "127.0.0.1", Port: 5001}

func TestRetryQueue_ScheduleAndDrain(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Millisecond, // Tiny for testing
		MaxDelay:   100 * time.Millisecond,
	})

	ok := rq.ScheduleRetry(RetryEntry{To: peer, Payload: []byte("0009 ECHO"), Error: "refused"})
	if !ok {
		t.Fatal("expected ScheduleRetry to succeed for first retry")
	}
	if rq.Len() != 1 {
		t.Fatalf("expected 1 pending retry, got %d", rq.Len())
	}

	time.Sleep(5 * time.Millisecond)

	ready := rq.DrainReady()
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready retry, got %d", len(ready))
	}
	if ready[0].To != peer || string(ready[0].Payload) != "0009 ECHO" {
		t.Errorf("got %v %q, want %v 0009 ECHO", ready[0].To, ready[0].Payload, peer)
	}
	if ready[0].Attempt != 1 {
		t.Errorf("attempt = %d, want 1", ready[0].Attempt)
	}
}

func TestRetryQueue_MaxRetriesExhausted(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{
		MaxRetries: 2,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	})

	entry := RetryEntry{To: peer}
	if !rq.ScheduleRetry(entry) {
		t.Fatal("retry 1 should succeed")
	}
	entry.Attempt = 1
	if !rq.ScheduleRetry(entry) {
		t.Fatal("retry 2 should succeed")
	}
	entry.Attempt = 2
	if rq.ScheduleRetry(entry) {
		t.Error("retry 3 should fail (exceeds MaxRetries=2)")
	}

	stats := rq.RetryStats()
	if stats.TotalExhausted != 1 {
		t.Errorf("exhausted = %d, want 1", stats.TotalExhausted)
	}
	if stats.TotalRetries != 2 {
		t.Errorf("total retries = %d, want 2", stats.TotalRetries)
	}
}

func TestRetryQueue_NotReadyBeforeBackoff(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Hour,
		MaxDelay:   2 * time.Hour,
	})
	rq.ScheduleRetry(RetryEntry{To: peer})

	if _, ok := rq.NextReady(); ok {
		t.Error("NextReady should be empty before the backoff expires")
	}
	if rq.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rq.Len())
	}
}

func TestRetryQueue_EarliestFirst(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{
		MaxRetries: 5,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	})
	late := domain.Address{IP: "127.0.0.1", Port: 6000}

	// Attempt 3 backs off 4ms, attempt 1 backs off 1ms.
	rq.ScheduleRetry(RetryEntry{To: late, Attempt: 2})
	rq.ScheduleRetry(RetryEntry{To: peer})

	time.Sleep(10 * time.Millisecond)
	ready := rq.DrainReady()
	if len(ready) != 2 {
		t.Fatalf("ready = %d, want 2", len(ready))
	}
	if ready[0].To != peer {
		t.Errorf("first ready = %v, want %v", ready[0].To, peer)
	}
}
