// Package main implements bridged, the cross-chain asset bridge
// daemon: it exposes the bridge REST API, processes relay deliveries
// and keeps the lock ledger.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/CrossMart-Network/bridge_layer/internal/app"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	domainregistry "github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/httpapi"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage/postgres"
	"github.com/CrossMart-Network/bridge_layer/internal/app/transport"
	"github.com/CrossMart-Network/bridge_layer/internal/config"
	"github.com/CrossMart-Network/bridge_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to bridge.yaml (default config/bridge.yaml)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	log := logger.NewDefault("bridged")

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.LoadFromPath(*configPath)
		if err != nil {
			log.WithError(err).Error("failed to load config")
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	stores := app.Stores{}
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Error("failed to open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.WithError(err).Error("database unreachable")
			os.Exit(1)
		}
		pg := postgres.New(db)
		stores = app.Stores{Locks: pg, Requests: pg, Messages: pg, Chains: pg}
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	sweepInterval, _ := time.ParseDuration(cfg.Bridge.SweepInterval)
	staleAge, _ := time.ParseDuration(cfg.Bridge.StaleAge)

	var relay transport.Transport
	if cfg.Relay.BaseURL != "" {
		relayTimeout, _ := time.ParseDuration(cfg.Relay.Timeout)
		relay = transport.NewHTTPRelay(transport.HTTPRelayConfig{
			BaseURL:        cfg.Relay.BaseURL,
			Token:          cfg.Relay.Token,
			SourceEndpoint: cfg.Bridge.LocalEndpoint,
			Timeout:        relayTimeout,
			MaxRetries:     cfg.Relay.MaxRetries,
		})
		log.Infof("using relay node at %s", cfg.Relay.BaseURL)
	}

	application, err := app.New(stores, app.Options{
		LocalChain:    cfg.Bridge.LocalChain,
		LocalEndpoint: cfg.Bridge.LocalEndpoint,
		MinBridgeFee:  cfg.Bridge.MinBridgeFee,
		CallerID:      cfg.Bridge.CallerID,
		Relay:         relay,
		SweepInterval: sweepInterval,
		StaleAge:      staleAge,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// seed chain configuration before serving traffic
	for _, chain := range cfg.Chains {
		_, err := application.Registry.SetChainConfig(ctx, domainregistry.ChainConfig{
			Chain:         asset.ChainTag(chain.Chain),
			Endpoint:      chain.Endpoint,
			Confirmations: chain.Confirmations,
			FeeBps:        chain.FeeBps,
			Active:        chain.Active,
		})
		if err != nil {
			log.WithError(err).Errorf("failed to seed chain %d", chain.Chain)
			os.Exit(1)
		}
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start services")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application.Bridge, application.Registry, application.Events, httpapi.Config{
		JWTSecret:  cfg.Bridge.JWTSecret,
		RelayToken: cfg.Bridge.RelayToken,
		RateLimit:  cfg.Server.RateLimit,
		RateBurst:  cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}
	log.Info("bridged stopped")
}
