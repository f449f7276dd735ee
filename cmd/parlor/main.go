// Command parlor runs the encrypted chat server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"parlor/internal/config"
	"parlor/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parlor: %v\n", err)
		os.Exit(1)
	}

	pflag.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "address to listen on")
	pflag.DurationVarP(&cfg.MinSendInterval, "between", "b", cfg.MinSendInterval, "minimum interval between sends per session")
	pflag.IntVarP(&cfg.MaxMessageLength, "msglen", "m", cfg.MaxMessageLength, "maximum message length in bytes")
	pflag.IntVarP(&cfg.Backlog, "backlog", "g", cfg.Backlog, "maximum concurrent connections")
	pflag.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "log errors only")
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "parlor: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server")
	if err := server.New(cfg, logger).ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
