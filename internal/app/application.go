// Package app wires the bridge services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	bridgesvc "github.com/CrossMart-Network/bridge_layer/internal/app/services/bridge"
	registrysvc "github.com/CrossMart-Network/bridge_layer/internal/app/services/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage/memory"
	"github.com/CrossMart-Network/bridge_layer/internal/app/system"
	"github.com/CrossMart-Network/bridge_layer/internal/app/transport"
	"github.com/CrossMart-Network/bridge_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to
// the in-memory implementation.
type Stores struct {
	Locks    storage.LockStore
	Requests storage.RequestStore
	Messages storage.MessageStore
	Chains   storage.ChainStore
}

// Options carries the wiring parameters beyond storage.
type Options struct {
	LocalChain    uint16
	LocalEndpoint string
	MinBridgeFee  int64
	CallerID      string
	// Relay is the outbound transport. Nil wires a loopback relay
	// that redelivers sends to this node, which is the single-chain
	// development mode.
	Relay transport.Transport
	// Custodian and Listings are the marketplace hooks. Nil values
	// disable the respective asset class at the service level.
	Custodian bridgesvc.TokenCustodian
	Listings  bridgesvc.ListingBook
	// EventBufferSize caps the audit ring buffer.
	EventBufferSize int
	SweepInterval   time.Duration
	StaleAge        time.Duration
	// AuthorizedCallers may lock and unlock assets through the
	// registry. The controller's CallerID is always included.
	AuthorizedCallers []string
}

// Application ties the bridge services together.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bridge   *bridgesvc.Service
	Registry *registrysvc.Service
	Events   events.Logger
	Sweeper  *bridgesvc.Sweeper
	// Relay is the transport the bridge sends through, either the
	// configured one or the dev-mode loopback.
	Relay transport.Transport
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Locks == nil {
		stores.Locks = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Messages == nil {
		stores.Messages = mem
	}
	if stores.Chains == nil {
		stores.Chains = mem
	}

	if opts.CallerID == "" {
		opts.CallerID = "bridge-controller"
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 1024
	}

	audit := events.NewRingBuffer(opts.EventBufferSize)
	callers := append([]string{opts.CallerID}, opts.AuthorizedCallers...)
	registry := registrysvc.New(stores.Locks, stores.Messages, stores.Chains, audit, log, callers)

	relay := opts.Relay
	var loopback *transport.Loopback
	if relay == nil {
		loopback = transport.NewLoopback(asset.ChainTag(opts.LocalChain), opts.LocalEndpoint)
		relay = loopback
		log.Warn("no relay configured; using in-process loopback transport")
	}

	cfg := bridgesvc.Config{
		LocalChain:    asset.ChainTag(opts.LocalChain),
		LocalEndpoint: opts.LocalEndpoint,
		MinBridgeFee:  opts.MinBridgeFee,
		CallerID:      opts.CallerID,
	}
	bridge := bridgesvc.New(cfg, stores.Requests, stores.Messages, registry, relay, opts.Custodian, opts.Listings, audit, log)
	if loopback != nil {
		loopback.Register(bridge)
	}

	manager := system.NewManager()
	sweeper := bridgesvc.NewSweeper(stores.Requests, stores.Messages, stores.Locks, audit, log)
	if opts.SweepInterval > 0 {
		sweeper.WithInterval(opts.SweepInterval)
	}
	if opts.StaleAge > 0 {
		sweeper.WithStaleAge(opts.StaleAge)
	}
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register sweeper: %w", err)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Bridge:   bridge,
		Registry: registry,
		Events:   audit,
		Sweeper:  sweeper,
		Relay:    relay,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call
// before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
