package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/server/core"
	"github.com/automoto/lynxsync/server/replay"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "TOML config file (empty = defaults)")
	port := flag.Uint("port", 0, "WebSocket port (overrides config)")
	transportName := flag.String("transport", "", "Transport: ws or raknet (overrides config)")
	levelPath := flag.String("level", "", "TMX level path (overrides config; empty = flat arena)")
	maxClients := flag.Int("maxclients", 0, "Maximum joined clients (overrides config)")
	metricsAddr := flag.String("metrics", "", "Address serving /metrics (overrides config)")
	replayDir := flag.String("replay", "", "Directory for the snapshot replay store (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transportName != "" {
		cfg.Server.Transport = *transportName
	}
	if *levelPath != "" {
		cfg.Server.Level = *levelPath
	}
	if *maxClients != 0 {
		cfg.Server.MaxClients = *maxClients
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *replayDir != "" {
		cfg.Server.ReplayDir = *replayDir
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	logger := config.NewLogger(cfg.Log)
	log := logger.WithField("component", "main")

	if cfg.Server.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Server.SentryDSN, ServerName: cfg.Server.Name}); err != nil {
			log.WithError(err).Warn("sentry disabled")
		}
		defer sentry.Flush(2 * time.Second)
	}

	level, err := loadLevel(cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to load level")
	}

	opts := core.Options{
		Server: cfg.Server,
		Sim:    cfg.Sim,
		Level:  level,
		Log:    logger,
	}
	if cfg.Server.ReplayDir != "" {
		rec, err := replay.Open(cfg.Server.ReplayDir, nil)
		if err != nil {
			log.WithError(err).Fatal("Failed to open replay store")
		}
		defer rec.Close()
		opts.Recorder = rec
	}

	server := core.NewServer(opts)

	if cfg.Server.MetricsAddr != "" {
		serveMetrics(cfg.Server.MetricsAddr, log)
	}
	if cfg.Server.StatsView {
		// set configurations before calling `statsview.New()`
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr("localhost:18066"))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
	}

	switch cfg.Server.Transport {
	case config.TransportRakNet:
		rs, err := transport.ListenRakNet(cfg.Server.RakNetAddr, server.Queue(), logger)
		if err != nil {
			log.WithError(err).Fatal("Failed to listen")
		}
		defer rs.Close()
		go func() {
			if err := rs.Serve(); err != nil {
				log.WithError(err).Error("raknet server stopped")
			}
		}()
	default:
		ws := transport.NewWSServer(server.Queue(), logger)
		go func() {
			if err := ws.ListenAndServe(cfg.Server.Port); err != nil {
				log.WithError(err).Fatal("Server error")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"name":        cfg.Server.Name,
		"transport":   cfg.Server.Transport,
		"port":        cfg.Server.Port,
		"max_clients": cfg.Server.MaxClients,
	}).Info("Starting server")
	server.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down server...")
	server.Stop()
}

func loadLevel(cfg *config.Config, log logrus.FieldLogger) (core.Level, error) {
	if cfg.Server.Level == "" {
		return core.FlatLevel{Size: cfg.Sim.FlatArenaSize}, nil
	}
	return core.LoadServerLevel(cfg.Server.Level, log)
}

func serveMetrics(addr string, log logrus.FieldLogger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(core.Collectors()...)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
}
