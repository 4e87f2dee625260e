// Command ruginx serves static responses over TCP, handling every
// connection on a fixed-size thread pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vnykmshr/ruginx/internal/app"
	"github.com/vnykmshr/ruginx/internal/config"
	"github.com/vnykmshr/ruginx/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ruginx:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("ruginx", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML or JSON config file")
	addr := fs.String("addr", "", "listen address (overrides config)")
	workers := fs.Int("workers", 0, "number of pool workers (overrides config)")
	root := fs.String("root", "", "directory holding hello.html and 404.html (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *workers != 0 {
		cfg.Pool.Workers = *workers
	}
	if *root != "" {
		cfg.Server.Root = *root
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("ruginx starting",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("workers", cfg.Pool.Workers),
		zap.String("root", cfg.Server.Root))

	return a.Run(ctx)
}
