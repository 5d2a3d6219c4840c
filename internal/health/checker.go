// Package health provides periodic node health checks with auto-recovery.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tutu-network/sharer/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is the storage dependency.
type Pinger interface {
	Ping() error
}

// Listener reports whether a transport socket is open.
type Listener interface {
	Listening() bool
}

// Overlay is the membership dependency.
type Overlay interface {
	AliveNeighbours() int
	Register() error
}

// Deps are the components the standard checks watch. Nil members skip
// their check.
type Deps struct {
	DB           Pinger
	Transport    Listener
	Overlay      Overlay
	ResourcesDir string
}

var (
	errNotListening = errors.New("transport is not listening")
	errIsolated     = errors.New("no alive neighbours")
)

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a health checker with the standard checks for deps.
func NewChecker(deps Deps) *Checker {
	c := &Checker{interval: 60 * time.Second}
	if deps.DB != nil {
		c.checks = append(c.checks, Check{
			Name: "sqlite",
			CheckFn: func(ctx context.Context) error {
				return deps.DB.Ping()
			},
			RecoverFn: func(ctx context.Context) error {
				return nil // SQLite auto-recovers via WAL
			},
		})
	}
	if deps.Transport != nil {
		c.checks = append(c.checks, Check{
			Name: "transport",
			CheckFn: func(ctx context.Context) error {
				if !deps.Transport.Listening() {
					return errNotListening
				}
				return nil
			},
		})
	}
	if deps.Overlay != nil {
		c.checks = append(c.checks, Check{
			Name: "overlay",
			CheckFn: func(ctx context.Context) error {
				if deps.Overlay.AliveNeighbours() == 0 {
					return errIsolated
				}
				return nil
			},
			RecoverFn: func(ctx context.Context) error {
				return deps.Overlay.Register()
			},
		})
	}
	c.checks = append(c.checks, Check{
		Name: "resources_dir",
		CheckFn: func(ctx context.Context) error {
			return checkResourcesDir(deps.ResourcesDir)
		},
	})
	return c
}

// SetInterval overrides the check period. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			log.Printf("[health] %s: %v", check.Name, err)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					log.Printf("[health] %s recovery: %v", check.Name, rerr)
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// RunOnce runs every check immediately.
func (c *Checker) RunOnce(ctx context.Context) {
	c.runAll(ctx)
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkResourcesDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("resources dir %s does not exist", dir)
		}
		return fmt.Errorf("check resources dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("resources path %s is not a directory", dir)
	}
	return nil
}
