package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxkit/voxd"
)

type command struct {
	flags *GlobalFlags
}

func (c command) load() (*voxd.Config, *slog.Logger, error) {
	cfg, err := voxd.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", c.flags.ConfigPath, err)
	}
	log := voxd.NewLogger(cfg)
	slog.SetDefault(log)
	return cfg, log, nil
}

// Run is the main lifecycle: migrate, bootstrap models, start the backend
// and block until a shutdown signal arrives or the backend exits.
func (c command) Run(f RunFlags) error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	if err := voxd.RegisterMetricsDefault(); err != nil {
		return err
	}

	mig := voxd.NewMigrator(cfg, log)
	outcome, err := mig.Run()
	if err != nil {
		return err
	}
	log.Info("resource migration", "outcome", outcome)

	if !f.SkipModels {
		res := voxd.NewBootstrapper(cfg, log).Bootstrap()
		for _, e := range res.Errors {
			log.Warn("model bootstrap error", "model", e.Name, "error", e.Message)
		}
	}

	var sinks []voxd.HistorySink
	if cfg.History.Enabled {
		sink, err := voxd.NewHistorySink(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		sinks = append(sinks, sink)
	}

	sup := voxd.NewSupervisor(cfg, log, sinks...)
	if err := sup.Start(context.Background()); err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv := voxd.NewHTTPServer(cfg.Server.Addr, sup, mig)
		defer func() { _ = srv.Close() }()
		log.Info("status server listening", "addr", cfg.Server.Addr)
	}

	return c.superviseLoop(sup, log)
}

// superviseLoop drains the event stream and blocks until SIGINT/SIGTERM or a
// backend exit. A non-zero backend exit becomes this process's exit code.
func (c command) superviseLoop(sup *voxd.Supervisor, log *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return sup.Stop(ctx)
		case e := <-sup.Events():
			switch e.Kind {
			case voxd.EventExit:
				if e.ExitCode != 0 {
					return exitError{code: exitFailure, msg: fmt.Sprintf("backend exited with code %d", e.ExitCode)}
				}
				log.Info("backend exited cleanly")
				return nil
			case voxd.EventUnhealthy:
				log.Warn("backend unhealthy", "detail", e.Message)
			case voxd.EventError:
				log.Error("supervisor error", "detail", e.Message)
			case voxd.EventLog:
				// Already captured to the rotating log files.
			}
		}
	}
}

// Migrate runs only the resource migration and prints the outcome.
func (c command) Migrate() error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	mig := voxd.NewMigrator(cfg, log)
	outcome, err := mig.Run()
	if err != nil {
		return err
	}
	fmt.Println(string(outcome))
	return nil
}

// Check reports migration currency; exit code 2 means stale.
func (c command) Check(f CheckFlags) error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	current, err := voxd.NewMigrator(cfg, log).EnvironmentCurrent()
	if err != nil {
		return err
	}
	if !f.Quiet {
		printJSON(map[string]bool{"current": current})
	}
	if !current {
		return exitError{code: exitStale, msg: "environment is stale; run 'voxd migrate'"}
	}
	return nil
}

// Models bootstraps the model cache and prints the structured result.
func (c command) Models() error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	res := voxd.NewBootstrapper(cfg, log).Bootstrap()
	printJSON(res)
	if len(res.Errors) > 0 {
		return exitError{code: exitFailure, msg: fmt.Sprintf("%d model asset(s) failed to bootstrap", len(res.Errors))}
	}
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(b))
}
