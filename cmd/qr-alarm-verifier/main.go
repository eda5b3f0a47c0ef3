package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bark-labs/qr-alarm/internal/backend"
	"github.com/bark-labs/qr-alarm/internal/config"
	"github.com/bark-labs/qr-alarm/internal/crypto"
	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New("qr-alarm-verifier", cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	store, err := backend.OpenStore(cfg.Backend.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer store.Close()

	secret := strings.TrimSpace(cfg.Backend.JWTSecret)
	if secret == "" {
		secret, err = crypto.GenerateString(32)
		if err != nil {
			return err
		}
		log.Warn("no backend.jwt_secret configured, sessions will not survive a restart")
	}
	auth, err := backend.NewAuthService(store, secret, cfg.Backend.TokenTTL)
	if err != nil {
		return err
	}
	srv := backend.NewServer(cfg.Backend.Addr, store, auth, log)

	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Printf("Verifier:  %s\n", cfg.Backend.Addr)
	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Backend.DatabasePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
