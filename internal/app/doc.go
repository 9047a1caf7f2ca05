// Package app composes the bridge services into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── asset/          # Deterministic cross-chain asset identity
//	│   ├── bridge/         # Bridge requests and wire messages
//	│   └── registry/       # Lock ledger, pending queues, chain config
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # LockStore, RequestStore, MessageStore, ChainStore
//	│   ├── memory/         # In-memory implementation
//	│   └── postgres/       # PostgreSQL implementation
//	├── services/
//	│   ├── registry/       # Registration, sync, lock transitions
//	│   └── bridge/         # Outbound controller, inbound processor, sweeper
//	├── transport/          # Relay abstraction: codec, loopback, HTTP adapter
//	├── httpapi/            # REST handlers and middleware
//	├── events/             # Audit ring buffer
//	├── metrics/            # Prometheus collectors
//	└── system/             # Service lifecycle management
//
// Services hold business rules and never touch HTTP; handlers in
// httpapi translate between the wire and service calls; storage
// implementations stay behind the interfaces in storage.
package app
