package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tutu-network/sharer/internal/api"
	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/health"
	_ "github.com/tutu-network/sharer/internal/infra/metrics" // Register Prometheus metrics
	"github.com/tutu-network/sharer/internal/infra/network"
	"github.com/tutu-network/sharer/internal/infra/sqlite"
	"github.com/tutu-network/sharer/internal/overlay"
	"github.com/tutu-network/sharer/internal/resource"
	"github.com/tutu-network/sharer/internal/routing"
	"github.com/tutu-network/sharer/internal/routing/strategy"
	"github.com/tutu-network/sharer/internal/routing/table"
)

// transport is a bound socket transport.
type transport interface {
	domain.Transport
	Listening() bool
	Close() error
}

// Daemon is the sharer node runtime. It wires together all services.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Catalog *resource.Catalog
	Router  *routing.Router
	Overlay *overlay.Manager
	Queries *overlay.QueryManager
	Health  *health.Checker
	Server  *api.Server

	transport transport
	bootstrap transport // separate UDP socket when the overlay runs on TCP
	logFile   *os.File
	cancel    context.CancelFunc
	leaveOnce sync.Once
	closeOnce sync.Once
}

// New creates and initializes a Daemon from the config file.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig opens storage, binds the peer transport and wires every
// service. Nothing runs until Serve.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg}

	db, err := sqlite.Open(sharerHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	opts := transportOptions(cfg.Overlay)
	self := domain.Address{IP: cfg.Node.IP, Port: cfg.Node.Port}
	switch cfg.Overlay.Transport {
	case "tcp":
		tr, err := network.ListenTCP(self, opts)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bind peer transport: %w", err)
		}
		d.transport = tr
		boot, err := network.ListenUDP(domain.Address{IP: cfg.Node.IP}, opts)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bind bootstrap transport: %w", err)
		}
		d.bootstrap = boot
	default:
		tr, err := network.ListenUDP(self, opts)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bind peer transport: %w", err)
		}
		d.transport = tr
	}

	kind, _ := strategy.ParseKind(cfg.Overlay.RoutingStrategy) // Validated above
	idx := resource.NewIndex()
	d.Router = routing.New(routing.Config{
		Self:      d.transport.Addr(),
		Bootstrap: domain.Address{IP: cfg.Bootstrap.IP, Port: cfg.Bootstrap.Port},
		TTL:       cfg.Overlay.TimeToLive,
		Strategy:  kind,
		Limits: table.Limits{
			MaxUnstructured:     cfg.Overlay.MaxUnstructuredPeers,
			MaxSuperPeers:       cfg.Overlay.MaxSuperPeers,
			MaxAssignedOrdinary: cfg.Overlay.MaxAssignedOrdinaryPeers,
		},
		HeartbeatInterval: parseDuration(cfg.Overlay.HeartbeatInterval, 5*time.Second),
		GCInterval:        parseDuration(cfg.Overlay.GCInterval, 15*time.Second),
		SuperPeer:         cfg.Node.PeerType == "super_peer",
	}, d.transport, idx)
	if d.bootstrap != nil {
		d.Router.SetBootstrapTransport(d.bootstrap)
	}

	d.Overlay = overlay.NewManager(overlay.Config{
		Username:            cfg.Node.Username,
		GossipInterval:      parseDuration(cfg.Overlay.GossipInterval, 30*time.Second),
		SerSuperPeerTimeout: parseDuration(cfg.Overlay.SerSuperPeerTimeout, 5*time.Second),
	}, d.Router)
	d.Queries = overlay.NewQueryManager(d.Router, db)
	d.Catalog = resource.NewCatalog(idx, db)

	d.Health = health.NewChecker(health.Deps{
		DB:           db,
		Transport:    d.transport,
		Overlay:      d.Overlay,
		ResourcesDir: cfg.Resources.Dir,
	})

	srv := api.NewServer(d.Router, d.Overlay, d.Queries, d.Catalog)
	srv.SetHealth(d.Health)
	srv.SetHistory(db)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// transportOptions maps overlay settings onto socket options.
func transportOptions(o OverlayConfig) network.Options {
	opts := network.DefaultOptions()
	if o.ListenerWorkers > 0 {
		opts.Workers = o.ListenerWorkers
	}
	opts.Timeout = parseDuration(o.NetworkTimeout, opts.Timeout)
	if o.SendRetries >= 0 {
		opts.Retry.MaxRetries = o.SendRetries
	}
	return opts
}

// Serve joins the overlay, starts the HTTP server and blocks until the
// context is cancelled or a signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if err := d.setupLogging(); err != nil {
		log.Printf("[daemon] WARNING: log file disabled: %v", err)
	}

	if err := d.Catalog.Load(); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if dir := d.Config.Resources.Dir; dir != "" {
		if n, err := d.Catalog.IndexDir(dir); err != nil {
			log.Printf("[daemon] WARNING: index %s: %v", dir, err)
		} else if n > 0 {
			log.Printf("[daemon] shared %d files from %s", n, dir)
		}
	}

	d.Router.Start(ctx)
	if err := d.Overlay.Start(ctx); err != nil {
		log.Printf("[daemon] WARNING: register with bootstrap server: %v", err)
	}
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		d.leave()
		_ = httpServer.Shutdown(shutdownCtx)
		d.Close()
	}()

	log.Printf("[daemon] node %s (%s) api on http://%s", d.Router.Self(), d.Router.Table().Role(), addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}

// leave stops the overlay, the router and the sockets, in that order.
func (d *Daemon) leave() error {
	var err error
	d.leaveOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.Overlay != nil {
			d.Overlay.Stop()
		}
		if d.Router != nil {
			d.Router.Shutdown()
			d.rememberNode()
		}
		if d.transport != nil {
			err = errors.Join(err, d.transport.Close())
		}
		if d.bootstrap != nil {
			err = errors.Join(err, d.bootstrap.Close())
		}
	})
	return err
}

// Close leaves the overlay and releases every resource. Safe to call more
// than once.
func (d *Daemon) Close() error {
	err := d.leave()
	d.closeOnce.Do(func() {
		if d.DB != nil {
			err = errors.Join(err, d.DB.Close())
		}
		if d.logFile != nil {
			log.SetOutput(os.Stderr)
			d.logFile.Close()
		}
	})
	return err
}

// rememberNode records the last role and port for the next start.
func (d *Daemon) rememberNode() {
	if d.DB == nil {
		return
	}
	if err := d.DB.SetNodeInfo(sqlite.KeyLastRole, d.Router.Table().Role().String()); err != nil {
		log.Printf("[daemon] save node info: %v", err)
	}
	if err := d.DB.SetNodeInfo(sqlite.KeyLastPort, strconv.Itoa(d.Router.Self().Port)); err != nil {
		log.Printf("[daemon] save node info: %v", err)
	}
}

// setupLogging tees the standard logger into the configured log file and
// enables wire tracing at debug level.
func (d *Daemon) setupLogging() error {
	debug := strings.EqualFold(d.Config.Logging.Level, "debug")
	routing.Debug = debug
	overlay.Debug = debug

	path := d.Config.Logging.File
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
