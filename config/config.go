// Package config holds the tunable settings of the server and the headless
// client, their defaults and TOML loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/pelletier/go-toml"
)

// ServerConfig configures the authoritative server.
type ServerConfig struct {
	Name       string `toml:"name"`
	Port       uint   `toml:"port"`
	Transport  string `toml:"transport"` // "ws" or "raknet"
	RakNetAddr string `toml:"raknet_addr"`
	Level      string `toml:"level"` // TMX path; empty uses a flat arena
	MaxClients int    `toml:"max_clients"`
	Seed       int64  `toml:"seed"`

	// Optional side services; empty disables them.
	MetricsAddr string `toml:"metrics_addr"`
	StatsView   bool   `toml:"statsview"`
	SentryDSN   string `toml:"sentry_dsn"`
	ReplayDir   string `toml:"replay_dir"`
}

// SimConfig tunes the server-side simulation.
type SimConfig struct {
	PlayerSpeed     float32 `toml:"player_speed"` // units per second
	NPCCount        int     `toml:"npc_count"`
	NPCSpeed        float32 `toml:"npc_speed"`
	NPCLifetimeMs   int     `toml:"npc_lifetime_ms"`
	NPCRespawnMs    int     `toml:"npc_respawn_ms"`
	FlatArenaSize   float32 `toml:"flat_arena_size"`
	WanderRadius    float32 `toml:"wander_radius"`
	ThinkIntervalMs int     `toml:"think_interval_ms"`
}

// ClientConfig configures the headless client.
type ClientConfig struct {
	Server        string    `toml:"server"`
	Transport     string    `toml:"transport"`
	Name          string    `toml:"name"`
	PersistTokens bool      `toml:"persist_tokens"`
	Bot           BotConfig `toml:"bot"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Config is the full configuration file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Sim    SimConfig    `toml:"sim"`
	Client ClientConfig `toml:"client"`
	Log    LogConfig    `toml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "lynxsync",
			Port:       7373,
			Transport:  TransportWS,
			RakNetAddr: ":19132",
			MaxClients: netconfig.MaxClients,
			Seed:       1,
		},
		Sim: SimConfig{
			PlayerSpeed:     120,
			NPCCount:        6,
			NPCSpeed:        60,
			NPCLifetimeMs:   20000,
			NPCRespawnMs:    3000,
			FlatArenaSize:   640,
			WanderRadius:    96,
			ThinkIntervalMs: 1500,
		},
		Client: ClientConfig{
			Server:        "localhost:7373",
			Transport:     TransportWS,
			Name:          "player",
			PersistTokens: true,
			Bot:           defaultBot(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

const (
	TransportWS     = "ws"
	TransportRakNet = "raknet"
)

// Load reads a TOML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the server or client cannot run with.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportWS, TransportRakNet:
	default:
		return fmt.Errorf("unknown server transport %q", c.Server.Transport)
	}
	switch c.Client.Transport {
	case TransportWS, TransportRakNet:
	default:
		return fmt.Errorf("unknown client transport %q", c.Client.Transport)
	}
	if c.Server.MaxClients < 1 || c.Server.MaxClients > netconfig.MaxClients {
		return fmt.Errorf("max_clients must be between 1 and %d", netconfig.MaxClients)
	}
	if c.Sim.PlayerSpeed <= 0 || c.Sim.NPCSpeed < 0 {
		return fmt.Errorf("speeds must be positive")
	}
	if c.Sim.NPCCount < 0 {
		return fmt.Errorf("npc_count must not be negative")
	}
	if c.Sim.FlatArenaSize <= 0 {
		return fmt.Errorf("flat_arena_size must be positive")
	}
	return nil
}

// NPCLifetime returns how long an NPC lives before dying.
func (s SimConfig) NPCLifetime() time.Duration {
	return time.Duration(s.NPCLifetimeMs) * time.Millisecond
}

// NPCRespawn returns how long a dead NPC stays out of the world.
func (s SimConfig) NPCRespawn() time.Duration {
	return time.Duration(s.NPCRespawnMs) * time.Millisecond
}

// ThinkInterval returns how often an NPC picks a new wander target.
func (s SimConfig) ThinkInterval() time.Duration {
	return time.Duration(s.ThinkIntervalMs) * time.Millisecond
}
