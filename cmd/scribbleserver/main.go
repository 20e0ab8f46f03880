package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/scribbleserver/internal/config"
	"github.com/udisondev/scribbleserver/internal/manager"
	"github.com/udisondev/scribbleserver/internal/wordlist"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.ParseFlags(flag.NewFlagSet("scribbleserver", flag.ExitOnError), args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	slog.Info("scribbleserver starting",
		"port", cfg.Port,
		"words", cfg.WordsPath,
		"lobby_capacity", cfg.LobbyCapacity,
		"rounds", cfg.Rounds,
		"scoring", cfg.Scoring,
	)

	words, err := wordlist.Load(cfg.WordsPath)
	if err != nil {
		return fmt.Errorf("loading word list: %w", err)
	}

	guesser, drawer, err := cfg.BuildAwards()
	if err != nil {
		return fmt.Errorf("building scoring strategy: %w", err)
	}

	mgr := manager.New(manager.Config{
		Words:          words,
		GuesserAward:   guesser,
		DrawerAward:    drawer,
		Rounds:         cfg.Rounds,
		RoundSeconds:   cfg.RoundSeconds,
		StartCountdown: cfg.StartCountdown,
		LobbyCapacity:  cfg.LobbyCapacity,
	}, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	slog.Info("listening", "address", ln.Addr())
	if err := mgr.Serve(ctx, ln); err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("shutdown complete")
	return nil
}
