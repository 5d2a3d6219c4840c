// Package daemon manages the sharer node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/routing/strategy"
	"github.com/tutu-network/sharer/internal/wire"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Overlay   OverlayConfig   `toml:"overlay"`
	API       APIConfig       `toml:"api"`
	Resources ResourcesConfig `toml:"resources"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// NodeConfig identifies this peer in the overlay.
type NodeConfig struct {
	IP       string `toml:"ip"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	PeerType string `toml:"peer_type"` // "ordinary" or "super_peer"
}

// BootstrapConfig locates the rendezvous server. MaxNodes applies when this
// process runs the server.
type BootstrapConfig struct {
	IP       string `toml:"ip"`
	Port     int    `toml:"port"`
	MaxNodes int    `toml:"max_nodes"`
}

// OverlayConfig tunes routing and membership.
type OverlayConfig struct {
	RoutingStrategy          string `toml:"routing_strategy"`
	Transport                string `toml:"transport"` // "udp" or "tcp"
	TimeToLive               int    `toml:"time_to_live"`
	MaxUnstructuredPeers     int    `toml:"max_unstructured_peers"`
	MaxAssignedOrdinaryPeers int    `toml:"max_assigned_ordinary_peers"`
	MaxSuperPeers            int    `toml:"max_super_peers"`
	HeartbeatInterval        string `toml:"heartbeat_interval"`
	GCInterval               string `toml:"gc_interval"`
	GossipInterval           string `toml:"gossip_interval"`
	SerSuperPeerTimeout      string `toml:"ser_super_peer_timeout"`
	NetworkTimeout           string `toml:"network_timeout"`
	ListenerWorkers          int    `toml:"listener_workers"`
	SendRetries              int    `toml:"send_retries"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ResourcesConfig points at the directory shared on start.
type ResourcesConfig struct {
	Dir string `toml:"dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := sharerHome()
	return Config{
		Node: NodeConfig{
			IP:       "127.0.0.1",
			Port:     4444,
			Username: "sharer",
			PeerType: "ordinary",
		},
		Bootstrap: BootstrapConfig{
			IP:       "127.0.0.1",
			Port:     wire.DefaultBootstrap,
			MaxNodes: 1000,
		},
		Overlay: OverlayConfig{
			RoutingStrategy:          strategy.UnstructuredFlooding.String(),
			Transport:                "udp",
			TimeToLive:               5,
			MaxUnstructuredPeers:     5,
			MaxAssignedOrdinaryPeers: 5,
			MaxSuperPeers:            3,
			HeartbeatInterval:        "5s",
			GCInterval:               "15s",
			GossipInterval:           "30s",
			SerSuperPeerTimeout:      "5s",
			NetworkTimeout:           "5s",
			ListenerWorkers:          16,
			SendRetries:              2,
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        7000,
			CORSOrigins: []string{"*"},
		},
		Resources: ResourcesConfig{
			Dir: filepath.Join(homeDir, "shared"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "sharer.log"),
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Node.IP == "" {
		return invalid("node.ip is empty")
	}
	for name, port := range map[string]int{
		"node.port":      c.Node.Port,
		"bootstrap.port": c.Bootstrap.Port,
		"api.port":       c.API.Port,
	} {
		if port < 0 || port > 65535 {
			return invalid("%s %d out of range", name, port)
		}
	}
	if c.Node.Username == "" {
		return invalid("node.username is empty")
	}
	switch c.Node.PeerType {
	case "", "ordinary", "super_peer":
	default:
		return invalid("node.peer_type %q", c.Node.PeerType)
	}
	if _, err := strategy.ParseKind(c.Overlay.RoutingStrategy); err != nil {
		return invalid("overlay.routing_strategy %q (want one of %v)", c.Overlay.RoutingStrategy, strategy.Kinds())
	}
	switch c.Overlay.Transport {
	case "udp", "tcp":
	default:
		return invalid("overlay.transport %q", c.Overlay.Transport)
	}
	if c.Overlay.TimeToLive < 1 {
		return invalid("overlay.time_to_live must be at least 1")
	}
	if c.Overlay.MaxUnstructuredPeers < 1 || c.Overlay.MaxAssignedOrdinaryPeers < 1 || c.Overlay.MaxSuperPeers < 1 {
		return invalid("overlay peer maxima must be positive")
	}
	for name, s := range map[string]string{
		"overlay.heartbeat_interval":     c.Overlay.HeartbeatInterval,
		"overlay.gc_interval":            c.Overlay.GCInterval,
		"overlay.gossip_interval":        c.Overlay.GossipInterval,
		"overlay.ser_super_peer_timeout": c.Overlay.SerSuperPeerTimeout,
		"overlay.network_timeout":        c.Overlay.NetworkTimeout,
	} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return invalid("%s %q", name, s)
		}
	}
	return nil
}

// LoadConfig reads config from ~/.sharer/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(sharerHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.sharer/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(sharerHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// sharerHome returns the sharer data directory.
func sharerHome() string {
	if env := os.Getenv("SHARER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sharer")
}

// SharerHome is exported for use by other packages.
func SharerHome() string {
	return sharerHome()
}
