package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/network"
	"github.com/tutu-network/sharer/internal/routing"
	"github.com/tutu-network/sharer/internal/routing/table"
)

type memHistory struct {
	mu      sync.Mutex
	queries map[string]string
	hits    map[string]int
}

func newMemHistory() *memHistory {
	return &memHistory{queries: map[string]string{}, hits: map[string]int{}}
}

func (h *memHistory) RecordQuery(id, query string, _ time.Time) error {
	h.mu.Lock()
	h.queries[id] = query
	h.mu.Unlock()
	return nil
}

func (h *memHistory) RecordHit(queryID, _ string, _ domain.Address, _ int) error {
	h.mu.Lock()
	h.hits[queryID]++
	h.mu.Unlock()
	return nil
}

func (h *memHistory) ClearQueries() error {
	h.mu.Lock()
	h.queries = map[string]string{}
	h.hits = map[string]int{}
	h.mu.Unlock()
	return nil
}

func TestQuery_AggregatesAcrossOwners(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits(), "Iron Man 2")
	p3 := newTestPeer(t, hub, addr3, table.DefaultLimits(), "Iron Man 2", "Iron Man")
	link(t, p1, p2)
	link(t, p1, p3)

	hist := newMemHistory()
	qm := NewQueryManager(p1.router, hist)
	q, err := qm.Query(context.Background(), "  Iron Man ")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	hub.Wait()

	if q.ID == "" || q.Text != "Iron Man" {
		t.Errorf("query = %+v, want trimmed text and an id", q)
	}
	res, err := qm.Results("Iron Man")
	if err != nil {
		t.Fatalf("Results() error: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files = %+v, want 2", res.Files)
	}
	// Files are name-ordered.
	if res.Files[0].Name != "Iron Man" || len(res.Files[0].Owners) != 1 {
		t.Errorf("files[0] = %+v", res.Files[0])
	}
	if res.Files[1].Name != "Iron Man 2" || len(res.Files[1].Owners) != 2 || res.Files[1].MinHops != 1 {
		t.Errorf("files[1] = %+v, want two owners at hop 1", res.Files[1])
	}
	if hist.queries[q.ID] != "Iron Man" || hist.hits[q.ID] != 3 {
		t.Errorf("history = %v / %v", hist.queries, hist.hits)
	}
}

func TestQuery_Empty(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	qm := NewQueryManager(p.router, nil)

	if _, err := qm.Query(context.Background(), "   "); !errors.Is(err, domain.ErrQueryEmpty) {
		t.Errorf("Query(blank) = %v, want ErrQueryEmpty", err)
	}
}

func TestQuery_CancelledContext(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	qm := NewQueryManager(p.router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qm.Query(ctx, "Hulk"); !errors.Is(err, context.Canceled) {
		t.Errorf("Query() = %v, want context.Canceled", err)
	}
	if len(qm.Queries()) != 0 {
		t.Error("cancelled query was recorded")
	}
}

func TestQuery_LocalHit(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits(), "Hulk")
	qm := NewQueryManager(p.router, nil)

	qm.Query(context.Background(), "hulk")
	hub.Wait()

	res, _ := qm.Results("hulk")
	if len(res.Files) != 1 || res.Files[0].Owners[0] != addr1 || res.Files[0].MinHops != 0 {
		t.Errorf("files = %+v, want own hit at hop 0", res.Files)
	}
}

func TestOnSearchHit_UnknownQueryIgnored(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	qm := NewQueryManager(p.router, nil)

	qm.OnSearchHit(routing.Hit{Query: "Thor", Owner: addr2, FileNames: []string{"Thor"}})

	if _, err := qm.Results("Thor"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("Results(unknown) = %v, want ErrResourceNotFound", err)
	}
}

func TestQueries_ClearAndOrder(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	hist := newMemHistory()
	qm := NewQueryManager(p.router, hist)

	qm.Query(context.Background(), "Thor")
	time.Sleep(2 * time.Millisecond)
	qm.Query(context.Background(), "Hulk")

	got := qm.Queries()
	if len(got) != 2 || got[0].Text != "Thor" || got[1].Text != "Hulk" {
		t.Errorf("Queries() = %+v, want [Thor Hulk]", got)
	}

	if err := qm.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if len(qm.Queries()) != 0 || len(hist.queries) != 0 {
		t.Error("Clear() left queries behind")
	}
}
