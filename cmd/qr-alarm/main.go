package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/barkclient"
	"github.com/bark-labs/qr-alarm/internal/capability"
	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/config"
	"github.com/bark-labs/qr-alarm/internal/identity"
	"github.com/bark-labs/qr-alarm/internal/lifecycle"
	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/metrics"
	"github.com/bark-labs/qr-alarm/internal/notify"
	"github.com/bark-labs/qr-alarm/internal/scan"
	"github.com/bark-labs/qr-alarm/internal/server"
	"github.com/bark-labs/qr-alarm/internal/service"
	"github.com/bark-labs/qr-alarm/internal/storage"
	"github.com/bark-labs/qr-alarm/internal/storage/bolt"
	"github.com/bark-labs/qr-alarm/internal/storage/memory"
	"github.com/bark-labs/qr-alarm/internal/verify"
	"github.com/bark-labs/qr-alarm/internal/verifyclient"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	showIdentity := flag.Bool("show-identity", false, "Print the bound QR identity and exit")
	newIdentity := flag.String("new-identity", "", "Generate a new QR identity from this name and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *showIdentity, *newIdentity); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, showIdentity bool, newIdentity string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New("qr-alarm", cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	kv, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()
	repo := alarmstore.New(kv, log)
	clk := clock.Real{}

	verifier, err := verifyclient.New(cfg.Verifier.BaseURL, cfg.Verifier.Token, cfg.Verifier.RequestTimeout)
	if err != nil {
		return fmt.Errorf("init verifier client: %w", err)
	}
	if cfg.Verifier.Email != "" {
		if _, err := verifier.Login(ctx, cfg.Verifier.Email, cfg.Verifier.Password); err != nil {
			// the client signs in again on the next verification
			log.Warn("verifier login failed", "error", err)
		}
	}

	binding := identity.New(repo, verifier, clk, log)
	if newIdentity != "" {
		if _, err := binding.Generate(ctx, newIdentity); err != nil {
			return err
		}
		return printIdentity(ctx, binding)
	}
	if showIdentity {
		return printIdentity(ctx, binding)
	}

	var bark *barkclient.Client
	if cfg.Bark.BaseURL != "" {
		bark, err = barkclient.New(cfg.Bark.BaseURL, cfg.Bark.Token, cfg.Bark.RequestTimeout)
		if err != nil {
			return fmt.Errorf("init bark client: %w", err)
		}
	}

	recorder := metrics.New()
	engine := lifecycle.New(lifecycle.Options{
		Clock:          clk,
		Verifier:       verify.NewGateway(repo, verifier, log),
		Notifier:       newNotifier(cfg, bark, clk, log),
		Player:         newPlayer(cfg, log),
		Vibrator:       capability.NopVibrator{},
		SnoozeInterval: cfg.Alarm.SnoozeInterval,
		Observers:      []lifecycle.Observer{recorder},
		Logger:         log,
	})
	alarms := service.NewAlarmService(repo, engine, clk, log)
	engine.Subscribe(alarms)
	alarms.Start(ctx)

	srv := server.New(cfg, server.Deps{
		Alarms:   alarms,
		Engine:   engine,
		Identity: binding,
		Decoder:  scan.ImageDecoder{},
		Bark:     bark,
		Verifier: verifier,
		Metrics:  recorder,
		Logger:   log,
	})

	printSummary(cfg, alarms)

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
		engine.Disarm()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case storage.DriverMemory:
		return memory.New(), nil
	case storage.DriverBolt, "":
		db, err := bolt.New(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newNotifier(cfg *config.Config, bark *barkclient.Client, clk clock.Clock, log *slog.Logger) notify.Notifier {
	if bark == nil || cfg.Bark.DeviceKey == "" {
		return notify.NewLogDispatcher(clk, log)
	}
	return notify.NewBarkDispatcher(bark, notify.BarkOptions{
		DeviceKey: cfg.Bark.DeviceKey,
		EncodeKey: cfg.Bark.EncodeKey,
		IV:        cfg.Bark.IV,
		Timeout:   cfg.Bark.RequestTimeout,
	}, clk, log)
}

func newPlayer(cfg *config.Config, log *slog.Logger) capability.Player {
	if strings.TrimSpace(cfg.Sound.Command) == "" {
		return capability.Nop{}
	}
	return capability.NewCommandPlayer(cfg.Sound.Command, log)
}

func printIdentity(ctx context.Context, binding *identity.Binding) error {
	token, err := binding.Current(ctx)
	if errors.Is(err, identity.ErrIdentityMissing) {
		color.New(color.FgYellow).Println("No QR identity yet. Run with -new-identity NAME to create one.")
		return nil
	}
	if err != nil {
		return err
	}
	art, err := binding.PresentTerminal(ctx)
	if err != nil {
		return err
	}
	fmt.Print(art)
	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Print("Identity: ")
	color.New(color.FgCyan).Println(token)
	return nil
}

func printSummary(cfg *config.Config, alarms *service.AlarmService) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.HTTP.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
	green.Print("    ▶ ")
	fmt.Printf("Verifier:  %s\n", cfg.Verifier.BaseURL)

	next := alarms.Next()
	green.Print("    ▶ ")
	fmt.Print("Next:      ")
	if next.Alarm == nil {
		gray.Println("no alarms enabled")
		return
	}
	cyan.Printf("%s", next.Alarm.Time.Local().Format(time.DateTime))
	gray.Printf(" (in %s)\n", next.ETA)
}
