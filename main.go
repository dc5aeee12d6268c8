package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/network"
	"github.com/automoto/lynxsync/shared/netcomponents"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/sirupsen/logrus"
)

const reportInterval = time.Second

func main() {
	configPath := flag.String("config", "", "TOML config file (empty = defaults)")
	server := flag.String("server", "", "Server address (overrides config)")
	transportName := flag.String("transport", "", "Transport: ws or raknet (overrides config)")
	name := flag.String("name", "", "Player name (overrides config)")
	pattern := flag.String("bot", "", "Bot pattern: idle, circle or zigzag (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *server != "" {
		cfg.Client.Server = *server
	}
	if *transportName != "" {
		cfg.Client.Transport = *transportName
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	if *pattern != "" {
		cfg.Client.Bot.Pattern = config.BotPattern(*pattern)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	logger := config.NewLogger(cfg.Log)
	log := logger.WithField("component", "main")

	opts := network.Options{
		Server:      cfg.Client.Server,
		Name:        cfg.Client.Name,
		Bot:         cfg.Client.Bot,
		PlayerSpeed: cfg.Sim.PlayerSpeed,
		Log:         logger,
	}
	if cfg.Client.PersistTokens {
		tokens, err := network.OpenDiskTokens("lynxsync")
		if err != nil {
			log.WithError(err).Warn("reconnect tokens will not persist")
		} else {
			opts.Tokens = tokens
		}
	}
	client := network.NewClient(opts)

	var conn transport.Conn
	switch cfg.Client.Transport {
	case config.TransportRakNet:
		conn, err = transport.DialRakNet(cfg.Client.Server, client.Queue())
		if err != nil {
			log.WithError(err).Fatal("Failed to connect")
		}
	default:
		conn = transport.DialWS(cfg.Client.Server, client.Queue(), logger)
	}
	log.WithFields(logrus.Fields{"server": cfg.Client.Server, "transport": cfg.Client.Transport}).Info("Connecting")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(netconfig.ClientUpdateRate)
	defer ticker.Stop()
	report := time.NewTicker(reportInterval)
	defer report.Stop()

	for {
		select {
		case <-sigChan:
			log.Info("Disconnecting...")
			client.Disconnect("quit")
			_ = conn.Close()
			return
		case <-ticker.C:
			client.Tick()
			switch client.State() {
			case network.StateError:
				log.WithError(client.LastError()).Fatal("Client error")
			case network.StateDisconnected:
				log.Info("Disconnected from server")
				return
			}
		case <-report.C:
			stats := client.Stats()
			ip := client.Interpolator()
			var held, players int
			ip.Each(func(_ worldstate.ObjectID, r netcomponents.RenderData) {
				if r.Held {
					held++
				}
				if r.State.Kind == worldstate.KindPlayer {
					players++
				}
			})
			fields := logrus.Fields{
				"state":     client.State(),
				"object":    client.ObjectID(),
				"rendered":  ip.Len(),
				"players":   players,
				"held":      held,
				"buffered":  client.Reception().Len(),
				"snapshots": stats.Snapshots,
				"resyncs":   stats.Resyncs,
				"drift":     stats.DriftSnaps,
			}
			if avatar, ok := ip.Shadow(client.ObjectID()); ok {
				fields["avatar"] = avatar.State.Origin
			}
			log.WithFields(fields).Info("status")
		}
	}
}
