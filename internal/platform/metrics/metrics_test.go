package metrics

import (
	"errors"
	"testing"
	"time"

	"paystub/internal/platform/apperr"
)

func TestCollectorRequests(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(503, 30*time.Millisecond)
	c.Record(429, 0)

	snap := c.Snapshot()
	if snap["requestsTotal"] != uint64(3) {
		t.Fatalf("expected 3 requests, got %v", snap["requestsTotal"])
	}
	if snap["errorsTotal"] != uint64(1) || snap["rateLimitedTotal"] != uint64(1) {
		t.Fatalf("unexpected error counters: %v", snap)
	}
	if snap["avgDurationMs"] != float64(40)/3 {
		t.Fatalf("unexpected average: %v", snap["avgDurationMs"])
	}
}

func TestCollectorRenders(t *testing.T) {
	c := New()
	c.ObserveRender("emerald", 20*time.Millisecond, 1, nil)
	c.ObserveRender("emerald", 40*time.Millisecond, 2, nil)
	c.ObserveRender("slate", 5*time.Millisecond, 2, apperr.Transient("render", errors.New("engine crashed")))
	c.ObserveRender("slate", 0, 1, errors.New("plain"))

	snap := c.Snapshot()
	if snap["rendersTotal"] != uint64(4) {
		t.Fatalf("expected 4 renders, got %v", snap["rendersTotal"])
	}
	if snap["renderRetriesTotal"] != uint64(2) {
		t.Fatalf("expected 2 retries, got %v", snap["renderRetriesTotal"])
	}
	if snap["renderFailuresTotal"] != uint64(2) {
		t.Fatalf("expected 2 failures, got %v", snap["renderFailuresTotal"])
	}
	byKind := snap["renderFailuresByKind"].(map[string]uint64)
	if byKind["render_transient"] != 1 || byKind["unknown"] != 1 {
		t.Fatalf("unexpected failures by kind: %v", byKind)
	}
	byTheme := snap["rendersByTheme"].(map[string]uint64)
	if byTheme["emerald"] != 2 || byTheme["slate"] != 2 {
		t.Fatalf("unexpected renders by theme: %v", byTheme)
	}
}
