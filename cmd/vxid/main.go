// Command vxid is the vxi-dash process entrypoint: it wires the
// configuration store, readings ring, instrument transport, the two
// engines (collector and state machine), and the HTTP/JSON control surface,
// then runs them under a single cancellable context (SPEC_FULL.md "AMBIENT
// STACK", grounded on the teacher's cmd/aegis-edge subcommand style and
// darshan-rambhia/glint's errgroup-coordinated cmd/glint startup).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kbralten/vxi-dash/internal/adapters/configstore"
	"github.com/kbralten/vxi-dash/internal/adapters/observability"
	"github.com/kbralten/vxi-dash/internal/adapters/readings"
	"github.com/kbralten/vxi-dash/internal/adapters/transport"
	"github.com/kbralten/vxi-dash/internal/api"
	"github.com/kbralten/vxi-dash/internal/app/collector"
	"github.com/kbralten/vxi-dash/internal/app/config"
	"github.com/kbralten/vxi-dash/internal/app/shared"
	"github.com/kbralten/vxi-dash/internal/app/statemachine"
	"github.com/kbralten/vxi-dash/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run", "serve":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("vxid %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./vxid.yaml", "path to the bootstrap configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	reg := prometheus.NewRegistry()
	obs := observability.New(reg, level)

	store, err := configstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	ring, err := readings.New(filepath.Join(cfg.DataDir, "readings.json"), cfg.Readings.MaxEntries)
	if err != nil {
		return fmt.Errorf("open readings ring: %w", err)
	}

	tr := transport.New(cfg.Transport.Timeout.Duration)
	overrides := shared.NewModeOverrides()

	col := collector.New(store, ring, tr, obs, overrides)
	sm := statemachine.New(store, ring, tr, col, overrides, obs, cfg.Engine.StateMachineTick.Duration)

	server := api.NewServer(cfg.Listen, store, ring, tr, col, sm, obs, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })

	obs.LogInfo("vxid started", ports.Field{Key: "listen", Value: cfg.Listen}, ports.Field{Key: "data_dir", Value: cfg.DataDir})

	waitErr := g.Wait()

	// Ordered teardown: state machine sessions first (each also stops its
	// collector), then any collector still running on its own.
	for _, id := range sm.ActiveSetupIDs() {
		_ = sm.Stop(id)
	}
	for _, id := range col.ActiveSetupIDs() {
		_ = col.Stop(id)
	}

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./vxid.yaml", "path to the bootstrap configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := configstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	if _, err := store.ListInstruments(); err != nil {
		return fmt.Errorf("instruments.json: %w", err)
	}
	if _, err := store.ListSetups(); err != nil {
		return fmt.Errorf("setups.json: %w", err)
	}

	fmt.Printf("config %s and data in %s look good\n", *cfgPath, cfg.DataDir)
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `vxid - laboratory instrument monitoring engine

Usage:
  vxid <command> [flags]

Commands:
  run        Start the HTTP control surface and engines (default way to run the daemon)
  serve      Alias of run
  validate   Load the bootstrap config and the on-disk JSON documents without starting anything

Examples:
  vxid run -config ./vxid.yaml
  vxid validate -config ./vxid.yaml
`)
}
