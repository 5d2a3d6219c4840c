package overlay

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
	"github.com/tutu-network/sharer/internal/routing"
	"github.com/tutu-network/sharer/internal/wire"
)

// History persists originated queries and their hits.
type History interface {
	RecordQuery(id, query string, startedAt time.Time) error
	RecordHit(queryID, fileName string, owner domain.Address, hopCount int) error
	ClearQueries() error
}

// Query is one search originated by this node.
type Query struct {
	ID        string    `json:"id"`
	Text      string    `json:"query"`
	StartedAt time.Time `json:"started_at"`
}

// FileHit is one file name with every owner that reported it.
type FileHit struct {
	Name     string           `json:"name"`
	Owners   []domain.Address `json:"owners"`
	MinHops  int              `json:"min_hops"`
	LastSeen time.Time        `json:"last_seen"`
}

// Result aggregates the hits of one query.
type Result struct {
	Query Query     `json:"query"`
	Files []FileHit `json:"files"`
}

type running struct {
	query Query
	files map[string]*fileHit
}

type fileHit struct {
	owners   map[domain.Address]struct{}
	minHops  int
	lastSeen time.Time
}

// QueryManager originates searches and merges the hits that come back.
// Hits are matched to queries by text, since SER_OK echoes the query.
type QueryManager struct {
	router  *routing.Router
	history History

	mu      sync.RWMutex
	queries map[string]*running // by text
}

// NewQueryManager creates a query manager and subscribes it to r's hits.
// history may be nil.
func NewQueryManager(r *routing.Router, history History) *QueryManager {
	q := &QueryManager{
		router:  r,
		history: history,
		queries: make(map[string]*running),
	}
	r.AddSearchListener(q)
	return q
}

// Query starts a search for text. Re-running a text resets its results.
func (q *QueryManager) Query(ctx context.Context, text string) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, domain.ErrQueryEmpty
	}
	if err := ctx.Err(); err != nil {
		return Query{}, err
	}
	if q.router.Stopped() {
		return Query{}, domain.ErrRouterStopped
	}

	query := Query{ID: uuid.New().String(), Text: text, StartedAt: time.Now()}
	q.mu.Lock()
	q.queries[text] = &running{query: query, files: make(map[string]*fileHit)}
	q.mu.Unlock()

	if q.history != nil {
		if err := q.history.RecordQuery(query.ID, text, query.StartedAt); err != nil {
			log.Printf("[query] record %s: %v", query.ID, err)
		}
	}
	metrics.QueriesStarted.Inc()
	log.Printf("[query] %s started: %q", query.ID, text)

	q.router.Route(nil, wire.NewSer(q.router.Self(), text))
	return query, nil
}

// OnSearchHit implements routing.SearchListener.
func (q *QueryManager) OnSearchHit(h routing.Hit) {
	q.mu.Lock()
	r, ok := q.queries[h.Query]
	if !ok {
		q.mu.Unlock()
		metrics.MessagesDropped.WithLabelValues("unsolicited").Inc()
		if routing.Debug {
			log.Printf("[query] hit for unknown query %q from %s", h.Query, h.Owner)
		}
		return
	}
	now := time.Now()
	for _, name := range h.FileNames {
		f, ok := r.files[name]
		if !ok {
			f = &fileHit{owners: make(map[domain.Address]struct{}), minHops: h.HopCount}
			r.files[name] = f
		}
		f.owners[h.Owner] = struct{}{}
		if h.HopCount < f.minHops {
			f.minHops = h.HopCount
		}
		f.lastSeen = now
	}
	id := r.query.ID
	q.mu.Unlock()

	if q.history == nil {
		return
	}
	for _, name := range h.FileNames {
		if err := q.history.RecordHit(id, name, h.Owner, h.HopCount); err != nil {
			log.Printf("[query] record hit for %s: %v", id, err)
		}
	}
}

// Results returns the aggregated hits for text.
func (q *QueryManager) Results(text string) (Result, error) {
	text = strings.TrimSpace(text)
	q.mu.RLock()
	defer q.mu.RUnlock()

	r, ok := q.queries[text]
	if !ok {
		return Result{}, fmt.Errorf("query %q: %w", text, domain.ErrResourceNotFound)
	}
	res := Result{Query: r.query, Files: make([]FileHit, 0, len(r.files))}
	for name, f := range r.files {
		owners := make([]domain.Address, 0, len(f.owners))
		for o := range f.owners {
			owners = append(owners, o)
		}
		domain.SortAddresses(owners)
		res.Files = append(res.Files, FileHit{Name: name, Owners: owners, MinHops: f.minHops, LastSeen: f.lastSeen})
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Name < res.Files[j].Name })
	return res, nil
}

// Queries returns the running queries, oldest first.
func (q *QueryManager) Queries() []Query {
	q.mu.RLock()
	out := make([]Query, 0, len(q.queries))
	for _, r := range q.queries {
		out = append(out, r.query)
	}
	q.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Text < out[j].Text
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Clear forgets every query and its persisted history.
func (q *QueryManager) Clear() error {
	q.mu.Lock()
	q.queries = make(map[string]*running)
	q.mu.Unlock()
	if q.history != nil {
		return q.history.ClearQueries()
	}
	return nil
}
