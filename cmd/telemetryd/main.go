package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/EarthNatchanon/Topgun2/internal/app"
	"github.com/EarthNatchanon/Topgun2/internal/config"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run boots the service: config → logging → DB + schema → feed + HTTP.
func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (environment variables override it)")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("telemetryd %s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Component("main").Info("starting", "version", version, "addr", cfg.HTTPAddr)
	return app.Run(ctx, cfg)
}
