package bridge

import (
	"context"
	"sync"
	"time"

	domainbridge "github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/metrics"
	"github.com/CrossMart-Network/bridge_layer/internal/app/storage"
	"github.com/CrossMart-Network/bridge_layer/internal/app/system"
	"github.com/CrossMart-Network/bridge_layer/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Sweeper periodically surveys pending requests, held locks and the
// retry backlog, publishing gauges and warning events for stale state.
// It never mutates anything: a request that stays pending forever is a
// relay problem the operator has to resolve, not something to unwind
// automatically.
type Sweeper struct {
	requests storage.RequestStore
	messages storage.MessageStore
	locks    storage.LockStore
	audit    events.Logger
	log      *logger.Logger

	interval time.Duration
	staleAge time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a lifecycle-managed bridge state sweeper.
func NewSweeper(requests storage.RequestStore, messages storage.MessageStore, locks storage.LockStore, audit events.Logger, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("bridge-sweeper")
	}
	if audit == nil {
		audit = events.NoOpLogger{}
	}
	return &Sweeper{
		requests: requests,
		messages: messages,
		locks:    locks,
		audit:    audit,
		log:      log,
		interval: 30 * time.Second,
		staleAge: 15 * time.Minute,
	}
}

// WithInterval overrides the sweep cadence.
func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithStaleAge overrides the age past which a pending request is
// reported as stale.
func (s *Sweeper) WithStaleAge(d time.Duration) *Sweeper {
	if d > 0 {
		s.staleAge = d
	}
	return s
}

func (s *Sweeper) Name() string { return "bridge-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(runCtx)
			}
		}
	}()

	s.log.Info("bridge sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("bridge sweeper stopped")
	return nil
}

// Sweep runs one survey pass. Exported so tests and operators can
// trigger it without waiting for the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pending, err := s.requests.ListRequestsByStatus(ctx, domainbridge.StatusPending)
	if err != nil {
		s.log.WithError(err).Warn("sweep: pending request scan failed")
	} else {
		metrics.SetPendingRequests(len(pending))
		cutoff := time.Now().Add(-s.staleAge)
		for _, req := range pending {
			if req.Timestamp.Before(cutoff) {
				s.audit.Log(events.Event{
					Type:      events.EventRequestStale,
					Severity:  events.SeverityWarning,
					RequestID: req.ID,
					AssetID:   req.IdentityHex,
					Message:   "request pending past stale threshold",
				})
			}
		}
	}

	retries, err := s.messages.ListRetries(ctx)
	if err != nil {
		s.log.WithError(err).Warn("sweep: retry scan failed")
	} else {
		metrics.SetRetryBacklog(len(retries))
	}

	locks, err := s.locks.ListLocks(ctx)
	if err != nil {
		s.log.WithError(err).Warn("sweep: lock scan failed")
		return
	}
	held := 0
	for _, rec := range locks {
		if rec.Locked {
			held++
		}
	}
	metrics.SetLocksHeld(held)
}
