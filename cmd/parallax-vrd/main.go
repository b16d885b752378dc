// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/config"
	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/lib/service"
	"github.com/parallax-foundation/parallax/lib/servicetoken"
	"github.com/parallax-foundation/parallax/lib/version"
	"github.com/parallax-foundation/parallax/platform"
	"github.com/parallax-foundation/parallax/vr"
	"github.com/parallax-foundation/parallax/vr/vrlistener"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "configuration file (default: $"+config.EnvVar+")")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("parallax-vrd %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.RuntimeDir, cfg.StateDir, cfg.ListenerSocketDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	publicKey, _, generated, err := servicetoken.LoadOrGenerateKeypair(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("loading token signing keypair: %w", err)
	}
	if generated {
		logger.Info("generated token signing keypair", "state_dir", cfg.StateDir)
	}

	clk := clock.Real()
	identity := platform.NewIdentity("parallax-vrd")

	index, err := platform.NewPackageIndex(cfg.PackageManifest, logger)
	if err != nil {
		return err
	}
	settings, err := platform.NewSettingsStore(cfg.SettingsDir(), logger)
	if err != nil {
		return err
	}
	permissions, err := platform.NewPermissionStore(cfg.PermissionsDir(), identity, clk, logger)
	if err != nil {
		return err
	}
	policy, err := platform.NewNotificationPolicyStore(
		filepath.Join(cfg.StateDir, "notification-policy.json"), clk, logger)
	if err != nil {
		return err
	}
	overlay, err := platform.NewOverlayController(
		filepath.Join(cfg.RuntimeDir, "overlay-restriction.json"), logger)
	if err != nil {
		return err
	}
	oracle := platform.NewOracle(index, settings, logger)
	factory := vrlistener.NewFactory(cfg.ListenerSocketDir(), logger, clk)

	options := vr.Options{
		Logger:             logger,
		Clock:              clk,
		Oracle:             oracle,
		Bind:               factory.New,
		Packages:           index,
		Permissions:        permissions,
		NotificationPolicy: policy,
		Settings:           settings,
		Overlay:            overlay,
		Identity:           identity,
	}
	if runner := platform.NewModeHookRunner(cfg.ModeHook, logger); runner != nil {
		options.Hook = runner
	}
	manager := vr.NewManager(options)
	defer manager.Close()

	// Package and settings changes re-validate the bound listener.
	index.SetChangeHook(manager.RecheckCurrentService)
	settings.SetChangeHook(func(ref.UserID) { manager.RecheckCurrentService() })

	// SIGHUP reloads the package manifest.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	go func() {
		for range reload {
			logger.Info("reloading package manifest")
			if err := index.Reload(); err != nil {
				logger.Error("package manifest reload failed", "error", err)
			}
		}
	}()

	if cfg.DBusAnnounce {
		announcer, err := newDBusAnnouncer(logger)
		if err != nil {
			return fmt.Errorf("connecting d-bus announcer: %w", err)
		}
		defer announcer.Close()
		manager.RegisterCallback(announcer)
		defer manager.UnregisterCallback(announcer)
	}

	server := service.NewSocketServer(cfg.SocketPath(), logger, &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  "vr",
	})
	server.RequireSameUIDPeer()
	newVrService(manager, index, clk, logger).register(server)

	logger.Info("parallax-vrd starting",
		"version", version.Short(),
		"socket", cfg.SocketPath())
	return server.Serve(ctx)
}
