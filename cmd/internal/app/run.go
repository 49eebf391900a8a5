package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run is the serve entrypoint used by cmd/huddle. configPath may be empty.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(configPath string, override func(*Config)) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if override != nil {
		override(&cfg)
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
