package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/mcpserver"
	"switchboard/pkg/logging"

	"github.com/cenkalti/backoff/v4"
)

const defaultReconnectInterval = 200 * time.Millisecond

// persistentStrategy keeps one client per backend for the aggregator's
// lifetime. A handle that failed or has not been seen for the health check
// interval is pinged before reuse and reconnected with exponential backoff.
type persistentStrategy struct {
	opts     StrategyOptions
	counters connectionCounters

	mu      sync.Mutex
	records map[string]*persistentRecord
	closed  bool
}

// persistentRecord guards its fields with mu. dialMu serializes health
// checks and connects for one backend so concurrent callers share a single
// connection attempt; mu is never held across network I/O.
type persistentRecord struct {
	dialMu sync.Mutex

	mu       sync.Mutex
	cfg      config.BackendConfig
	client   mcpserver.MCPClient
	everUp   bool
	suspect  bool
	removed  bool
	lastSeen time.Time
	failures int
}

func newPersistentStrategy(opts StrategyOptions) *persistentStrategy {
	return &persistentStrategy{
		opts:    opts.withDefaults(),
		records: make(map[string]*persistentRecord),
	}
}

func (s *persistentStrategy) Initialize(ctx context.Context, configs []config.BackendConfig) error {
	for _, cfg := range configs {
		if err := s.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *persistentStrategy) Register(cfg config.BackendConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("connection strategy is shut down")
	}
	if _, exists := s.records[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.Name)
	}
	s.records[cfg.Name] = &persistentRecord{cfg: cfg}
	return nil
}

func (s *persistentStrategy) lookup(name string) (*persistentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok && !s.closed
}

func (s *persistentStrategy) GetConnection(ctx context.Context, name string) (*Lease, error) {
	rec, ok := s.lookup(name)
	if !ok {
		s.counters.failed()
		return nil, unknownBackend(name)
	}

	rec.dialMu.Lock()
	defer rec.dialMu.Unlock()

	rec.mu.Lock()
	client, removed, check := rec.client, rec.removed, s.needsHealthCheck(rec)
	rec.mu.Unlock()

	if removed {
		s.counters.failed()
		return nil, unknownBackend(name)
	}

	if client != nil && check {
		if err := client.Ping(ctx); err != nil {
			logging.Warn("Connections", "Health check of %s failed, reconnecting: %v", name, err)
			rec.mu.Lock()
			if rec.client == client {
				rec.client = nil
			}
			rec.mu.Unlock()
			_ = client.Close()
			client = nil
		} else {
			rec.mu.Lock()
			rec.suspect = false
			rec.lastSeen = time.Now()
			rec.mu.Unlock()
		}
	}

	if client == nil {
		var err error
		client, err = s.connect(ctx, rec)
		if err != nil {
			rec.mu.Lock()
			rec.failures++
			rec.mu.Unlock()
			s.counters.failed()
			return nil, err
		}
	}

	s.counters.routedOne()
	return &Lease{
		Backend: name,
		Client:  client,
		release: func(err error) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if rec.client != client {
				return
			}
			if err != nil {
				rec.suspect = true
				return
			}
			rec.lastSeen = time.Now()
		},
	}, nil
}

// needsHealthCheck must be called with rec.mu held.
func (s *persistentStrategy) needsHealthCheck(rec *persistentRecord) bool {
	if rec.suspect {
		return true
	}
	return s.opts.HealthCheckInterval > 0 && time.Since(rec.lastSeen) > s.opts.HealthCheckInterval
}

// connect establishes rec's client. A backend that was connected before is
// retried with exponential backoff; a first connection gets a single attempt
// so unreachable backends fail fast during loading. The caller holds dialMu.
func (s *persistentStrategy) connect(ctx context.Context, rec *persistentRecord) (mcpserver.MCPClient, error) {
	rec.mu.Lock()
	cfg, everUp := rec.cfg, rec.everUp
	rec.mu.Unlock()

	var b backoff.BackOff = &backoff.StopBackOff{}
	if everUp && s.opts.MaxReconnectAttempts > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = s.opts.ReconnectInterval
		b = backoff.WithMaxRetries(exp, uint64(s.opts.MaxReconnectAttempts))
	}

	var client mcpserver.MCPClient
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, elapsed, err := dial(ctx, s.opts.Factory, cfg)
		if err != nil {
			if attempt > 1 {
				logging.Debug("Connections", "Reconnect attempt %d to %s failed: %v", attempt, cfg.Name, err)
			}
			return err
		}
		s.counters.connected(elapsed)
		client = c
		logging.Info("Connections", "Connected to %s in %s", cfg.Name, elapsed.Round(time.Millisecond))
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Backend: cfg.Name, Err: err}
		}
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		_ = client.Close()
		return nil, unknownBackend(cfg.Name)
	}
	rec.client = client
	rec.everUp = true
	rec.suspect = false
	rec.lastSeen = time.Now()
	return client, nil
}

// detach marks rec removed and closes its client.
func (s *persistentStrategy) detach(rec *persistentRecord) error {
	rec.mu.Lock()
	rec.removed = true
	client := rec.client
	rec.client = nil
	rec.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

func (s *persistentStrategy) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	rec, ok := s.records[name]
	delete(s.records, name)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	if err := s.detach(rec); err != nil {
		logging.Warn("Connections", "Error closing %s: %v", name, err)
	}
	return nil
}

func (s *persistentStrategy) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	records := s.records
	s.records = make(map[string]*persistentRecord)
	s.mu.Unlock()

	var errs []error
	for name, rec := range records {
		if err := s.detach(rec); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *persistentStrategy) Statistics() ConnectionStatistics {
	stats := ConnectionStatistics{Mode: config.ConnectionModePersistent}
	for _, rec := range s.Records() {
		stats.TotalConnections++
		if rec.Connected {
			stats.ActiveConnections++
		}
	}
	s.counters.fill(&stats)
	return stats
}

func (s *persistentStrategy) Records() []ConnectionRecord {
	s.mu.Lock()
	recs := make([]*persistentRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	out := make([]ConnectionRecord, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		r := ConnectionRecord{
			BackendName:  rec.cfg.Name,
			Config:       rec.cfg,
			Connected:    rec.client != nil,
			LastSeenAt:   rec.lastSeen,
			FailureCount: rec.failures,
		}
		if r.Connected {
			r.OpenHandles = 1
		}
		rec.mu.Unlock()
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BackendName < out[j].BackendName })
	return out
}
