// Package main is the entry point for the hostmend agent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostmend/internal/actions"
	"hostmend/internal/api"
	"hostmend/internal/config"
	"hostmend/internal/engine"
	"hostmend/internal/forwarder"
	"hostmend/internal/metrics"
	"hostmend/internal/probes"
	"hostmend/internal/schema"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"buffer_capacity", cfg.Buffer.Capacity,
		"forwarder_enabled", cfg.Forwarder.Enabled,
	)

	// Engine and patterns
	eng := engine.New(cfg.Buffer.Capacity)
	registry := actions.DefaultRegistry(actions.DefaultConfig())

	if cfg.Patterns.Builtin {
		if err := registerBuiltinPatterns(eng, registry); err != nil {
			slog.Error("failed to register built-in patterns", "error", err)
			os.Exit(1)
		}
	}
	loaded, err := engine.LoadPatternDir(eng, cfg.Patterns.Dir, registry)
	if err != nil {
		slog.Error("failed to load pattern directory", "dir", cfg.Patterns.Dir, "error", err)
		os.Exit(1)
	}
	slog.Info("patterns registered",
		"builtin", cfg.Patterns.Builtin,
		"from_dir", loaded,
	)

	// Metrics
	m := metrics.New(bufferStats{eng}, func() uint64 { return eng.BufferMetrics().Evicted })
	eng.AddHandler(func(f engine.Firing) {
		m.ObserveFiring(f.Pattern, f.Err != nil)
	})
	sink := &instrumentedEngine{Engine: eng, metrics: m}

	ctx, cancel := context.WithCancel(context.Background())

	// Optional Kafka forwarder
	var fwd *forwarder.Forwarder
	if cfg.Forwarder.Enabled {
		hostname, _ := os.Hostname()
		fwd, err = forwarder.New(forwarder.Config{
			Brokers:      cfg.Forwarder.Brokers,
			Topic:        cfg.Forwarder.Topic,
			WriteTimeout: cfg.Forwarder.WriteTimeout,
		}, hostname, slog.Default())
		if err != nil {
			slog.Error("failed to initialize forwarder", "error", err)
			os.Exit(1)
		}
		eng.AddHandler(fwd.Handler(ctx))
	}

	// Probes
	probeSet := probes.NewSet()
	if cfg.Probes.Network.Enabled {
		probeSet.Add(probes.NewNetworkProbe(sink, probes.NetworkProbeConfig{
			Interval:    cfg.Probes.Network.Interval,
			Address:     cfg.Probes.Network.Address,
			DialTimeout: cfg.Probes.Network.DialTimeout,
		}, m))
	}
	if cfg.Probes.Process.Enabled {
		probeSet.Add(probes.NewProcessProbe(sink, probes.ProcessProbeConfig{
			Interval:  cfg.Probes.Process.Interval,
			Processes: cfg.Probes.Process.Processes,
		}, m))
	}
	if cfg.Probes.Disk.Enabled {
		probeSet.Add(probes.NewDiskProbe(sink, probes.DiskProbeConfig{
			Interval:    cfg.Probes.Disk.Interval,
			Path:        cfg.Probes.Disk.Path,
			UsedPercent: cfg.Probes.Disk.UsedPercent,
		}, m))
	}
	probeSet.Start(ctx)

	// HTTP API
	apiServer := api.NewServer(sink, probeSet, m.Handler(), version)
	mux := http.NewServeMux()
	apiServer.Routes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting status server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Heartbeat
	go heartbeat(ctx, eng, cfg.Agent.Heartbeat)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	probeSet.Wait()

	if fwd != nil {
		if err := fwd.Close(); err != nil {
			slog.Error("forwarder close error", "error", err)
		}
	}

	bm := eng.BufferMetrics()
	slog.Info("shutdown complete",
		"events_inserted", bm.Inserted,
		"events_evicted", bm.Evicted,
		"events_retained", bm.Retained,
	)
}

// setupLogging configures the default slog logger from config, with
// HOSTMEND_LOG_LEVEL taking precedence.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	name := cfg.Level
	if env := os.Getenv("HOSTMEND_LOG_LEVEL"); env != "" {
		name = env
	}
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// bufferStats adapts the engine to the metrics gauge interface.
type bufferStats struct {
	eng *engine.Engine
}

func (b bufferStats) Len() int { return b.eng.BufferMetrics().Retained }

// instrumentedEngine counts accepted events on their way into the
// engine. It serves both the probes and the HTTP API.
type instrumentedEngine struct {
	*engine.Engine
	metrics *metrics.Metrics
}

func (ie *instrumentedEngine) AddEvent(ev *schema.Event) ([]engine.Firing, error) {
	firings, err := ie.Engine.AddEvent(ev)
	if err == nil {
		ie.metrics.ObserveEvent(ev.Type)
	}
	return firings, err
}

// heartbeat logs a liveness line with buffer counters on every tick.
func heartbeat(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bm := eng.BufferMetrics()
			slog.Info("heartbeat",
				"events_inserted", bm.Inserted,
				"events_retained", bm.Retained,
				"events_evicted", bm.Evicted,
			)
		}
	}
}

// registerBuiltinPatterns installs the shipped correlation patterns.
func registerBuiltinPatterns(eng *engine.Engine, registry engine.ActionRegistry) error {
	specs := []*engine.PatternSpec{
		{
			Name: "wifi_instability",
			Conditions: []engine.Condition{
				{Field: "type", Operator: "eq", Value: schema.TypeNetworkDisconnect},
			},
			Window:    5 * time.Minute,
			Threshold: 2,
			Cooldown:  10 * time.Minute,
			Action:    engine.ActionSpec{Name: "network.reconnect"},
		},
		{
			Name: "explorer_freeze",
			Conditions: []engine.Condition{
				{Field: "type", Operator: "eq", Value: schema.TypeProcessFrozen},
				{Field: "data.process_name", Operator: "eq", Value: "explorer.exe"},
			},
			Window:    time.Minute,
			Threshold: 1,
			Cooldown:  5 * time.Minute,
			Action: engine.ActionSpec{
				Name:   "process.restart",
				Params: map[string]any{"process_name": "explorer.exe"},
			},
		},
		{
			Name: "temp_files_cleanup",
			Conditions: []engine.Condition{
				{Field: "type", Operator: "eq", Value: schema.TypeDiskSpaceLow},
			},
			Window:    time.Hour,
			Threshold: 1,
			Cooldown:  2 * time.Hour,
			Action:    engine.ActionSpec{Name: "temp.purge"},
		},
	}

	for _, spec := range specs {
		pattern, err := spec.Bind(registry)
		if err != nil {
			return fmt.Errorf("bind %s: %w", spec.Name, err)
		}
		if err := eng.RegisterPattern(pattern); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}
