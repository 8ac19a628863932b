package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-facility/internal/config"
	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
	"parking-facility/internal/server"
	"parking-facility/internal/store"
)

var (
	mode    = flag.String("mode", "", "Mode to run: cli, server, or both (overrides MODE)")
	port    = flag.String("port", "", "Port for HTTP server (overrides PORT)")
	envFile = flag.String("env", ".env", "Optional env file to load")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to load configuration")
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		logging.Logger().Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Init(cfg.IsDevelopment(), cfg.OTelServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryProvider, err := parking.NewTelemetryProvider(ctx, parking.TelemetryConfig{
		ServiceName:  cfg.OTelServiceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		Disabled:     !cfg.OTelEnabled,
	})
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer shutdownTelemetry(telemetryProvider)

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to open store")
		return
	}
	defer closeStore(backend)

	ledger, err := parking.NewLedger(ctx, backend, cfg.Capacity,
		parking.WithPricing(parking.Pricing{
			StandardCap:   cfg.PriceCapStandard,
			SurchargedCap: cfg.PriceCapSurcharged,
		}),
		parking.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to load facility ledger")
		return
	}

	instrumented, err := parking.NewInstrumentedLedger(ledger, telemetryProvider)
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to instrument ledger")
		return
	}

	logging.Info(ctx).
		Str("mode", cfg.Mode).
		Str("store", cfg.StoreDriver).
		Int("capacity", instrumented.Capacity()).
		Msg("facility ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch cfg.Mode {
	case config.ModeCLI:
		runCLI(ctx, cancel, instrumented, telemetryProvider, sigChan)
	case config.ModeServer:
		runServer(ctx, cancel, cfg, instrumented, backend, sigChan)
	case config.ModeBoth:
		runBoth(ctx, cancel, cfg, instrumented, telemetryProvider, backend, sigChan)
	}
}

func runCLI(ctx context.Context, cancel context.CancelFunc, ledger *parking.InstrumentedLedger, telemetryProvider *parking.TelemetryProvider, sigChan chan os.Signal) {
	go func() {
		<-sigChan
		logging.Info(ctx).Msg("shutting down")
		cancel()
	}()

	shell := parking.NewInstrumentedShell(ledger, telemetryProvider, os.Stdin, os.Stdout)
	if err := shell.Run(ctx); err != nil {
		logging.Error(ctx).Err(err).Msg("shell stopped")
	}
}

func runServer(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, ledger *parking.InstrumentedLedger, backend store.Backend, sigChan chan os.Signal) {
	srv := server.NewServer(cfg.Port, ledger, backend, cfg.OTelServiceName)

	go func() {
		<-sigChan
		logging.Info(ctx).Msg("received shutdown signal")
		shutdownServer(srv)
		cancel()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(ctx).Err(err).Msg("server error")
	}
}

func runBoth(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, ledger *parking.InstrumentedLedger, telemetryProvider *parking.TelemetryProvider, backend store.Backend, sigChan chan os.Signal) {
	srv := server.NewServer(cfg.Port, ledger, backend, cfg.OTelServiceName)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan struct{})
	go func() {
		defer close(cliDone)
		shell := parking.NewInstrumentedShell(ledger, telemetryProvider, os.Stdin, os.Stdout)
		if err := shell.Run(ctx); err != nil {
			logging.Error(ctx).Err(err).Msg("shell stopped")
		}
	}()

	go func() {
		<-sigChan
		logging.Info(ctx).Msg("received shutdown signal")
		cancel()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-cliDone:
		logging.Info(ctx).Msg("CLI exited")
	case <-ctx.Done():
		logging.Info(ctx).Msg("context cancelled")
	}

	shutdownServer(srv)
}

func shutdownServer(srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("server shutdown error")
	}
}

func closeStore(backend store.Backend) {
	if err := backend.Close(); err != nil {
		logging.Error(context.Background()).Err(err).Msg("error closing store")
	}
}

func shutdownTelemetry(telemetryProvider *parking.TelemetryProvider) {
	logging.Info(context.Background()).Msg("shutting down telemetry")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("error shutting down telemetry")
	}
}
