package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/formulafinance/licensehub/pkg/cli"
	"github.com/formulafinance/licensehub/pkg/config"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Commands run migrations explicitly
	cfg.Storage.AutoMigrate = false
	logger := observability.NewLogger(observability.WarnLevel, os.Stderr)

	env := &cli.Env{
		Out:  os.Stdout,
		Auth: cfg.Auth,
		Connect: func(ctx context.Context) (*storage.ConnectionManager, error) {
			return storage.NewConnectionManager(ctx, cfg.Storage, logger)
		},
	}

	if err := cli.NewRootCommand().Execute(ctx, env, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
