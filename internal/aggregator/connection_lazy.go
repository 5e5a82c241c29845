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
)

// minReapInterval keeps the idle reaper from spinning on tiny timeouts.
const minReapInterval = 10 * time.Millisecond

// lazyStrategy connects on demand. Released handles go back to a small
// per-backend idle pool and are closed by a reaper once idle for longer than
// IdleTimeout. Handles released with an error are discarded.
type lazyStrategy struct {
	opts     StrategyOptions
	counters connectionCounters

	mu       sync.Mutex
	backends map[string]*lazyBackend
	closed   bool

	reaperOnce sync.Once
	reaping    bool
	stop       chan struct{}
	done       chan struct{}
}

type lazyBackend struct {
	cfg      config.BackendConfig
	idle     []idleHandle
	inUse    int
	lastSeen time.Time
	failures int
	removed  bool
}

type idleHandle struct {
	client mcpserver.MCPClient
	since  time.Time
}

func newLazyStrategy(opts StrategyOptions) *lazyStrategy {
	return &lazyStrategy{
		opts:     opts.withDefaults(),
		backends: make(map[string]*lazyBackend),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *lazyStrategy) Initialize(ctx context.Context, configs []config.BackendConfig) error {
	for _, cfg := range configs {
		if err := s.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *lazyStrategy) Register(cfg config.BackendConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("connection strategy is shut down")
	}
	if _, exists := s.backends[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.Name)
	}
	s.backends[cfg.Name] = &lazyBackend{cfg: cfg}
	s.startReaper()
	return nil
}

// startReaper launches the idle reaper once. Caller holds s.mu.
func (s *lazyStrategy) startReaper() {
	s.reaperOnce.Do(func() {
		interval := s.opts.IdleTimeout / 2
		if interval < minReapInterval {
			interval = minReapInterval
		}
		s.reaping = true
		go s.reapLoop(interval)
	})
}

func (s *lazyStrategy) reapLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.reapIdle(now); n > 0 {
				logging.Debug("Connections", "Closed %d idle connections", n)
			}
		}
	}
}

// reapIdle closes handles idle for longer than IdleTimeout as of now.
func (s *lazyStrategy) reapIdle(now time.Time) int {
	var expired []mcpserver.MCPClient

	s.mu.Lock()
	for _, b := range s.backends {
		kept := b.idle[:0]
		for _, h := range b.idle {
			if now.Sub(h.since) > s.opts.IdleTimeout {
				expired = append(expired, h.client)
			} else {
				kept = append(kept, h)
			}
		}
		b.idle = kept
	}
	s.mu.Unlock()

	closeAll(expired)
	return len(expired)
}

func (s *lazyStrategy) GetConnection(ctx context.Context, name string) (*Lease, error) {
	s.mu.Lock()
	b, ok := s.backends[name]
	if !ok || s.closed {
		s.mu.Unlock()
		s.counters.failed()
		return nil, unknownBackend(name)
	}

	var pooled *idleHandle
	if n := len(b.idle); n > 0 {
		h := b.idle[n-1]
		b.idle = b.idle[:n-1]
		pooled = &h
	}
	b.inUse++
	cfg := b.cfg
	s.mu.Unlock()

	var client mcpserver.MCPClient
	if pooled != nil {
		client = pooled.client
		if s.opts.HealthCheckInterval > 0 && time.Since(pooled.since) > s.opts.HealthCheckInterval {
			if err := client.Ping(ctx); err != nil {
				logging.Debug("Connections", "Discarding stale pooled connection to %s: %v", name, err)
				_ = client.Close()
				client = nil
			}
		}
	}

	if client == nil {
		c, elapsed, err := dial(ctx, s.opts.Factory, cfg)
		if err != nil {
			s.mu.Lock()
			b.inUse--
			b.failures++
			s.mu.Unlock()
			s.counters.failed()
			return nil, err
		}
		s.counters.connected(elapsed)
		client = c
		logging.Debug("Connections", "Opened connection to %s in %s", name, elapsed.Round(time.Millisecond))
	}

	s.counters.routedOne()
	return &Lease{
		Backend: name,
		Client:  client,
		release: func(err error) { s.release(b, client, err) },
	}, nil
}

// release returns client to b's idle pool unless it failed, the pool is full
// or the backend is gone.
func (s *lazyStrategy) release(b *lazyBackend, client mcpserver.MCPClient, err error) {
	s.mu.Lock()
	b.inUse--
	keep := err == nil && !b.removed && !s.closed && len(b.idle) < s.opts.PoolSize
	if err == nil {
		b.lastSeen = time.Now()
	}
	if keep {
		b.idle = append(b.idle, idleHandle{client: client, since: time.Now()})
	}
	s.mu.Unlock()

	if !keep {
		if cerr := client.Close(); cerr != nil {
			logging.Debug("Connections", "Error closing connection to %s: %v", b.cfg.Name, cerr)
		}
	}
}

func (s *lazyStrategy) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	b, ok := s.backends[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	delete(s.backends, name)
	b.removed = true
	idle := b.idle
	b.idle = nil
	s.mu.Unlock()

	closeAll(clientsOf(idle))
	return nil
}

func (s *lazyStrategy) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var idle []idleHandle
	for _, b := range s.backends {
		b.removed = true
		idle = append(idle, b.idle...)
		b.idle = nil
	}
	s.backends = make(map[string]*lazyBackend)
	s.reaperOnce.Do(func() {}) // no reaper after shutdown
	reaping := s.reaping
	s.mu.Unlock()

	close(s.stop)
	if reaping {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	return closeAll(clientsOf(idle))
}

func (s *lazyStrategy) Statistics() ConnectionStatistics {
	stats := ConnectionStatistics{Mode: config.ConnectionModeLazy}
	for _, rec := range s.Records() {
		stats.TotalConnections++
		stats.ActiveConnections += rec.OpenHandles
	}
	s.counters.fill(&stats)
	return stats
}

func (s *lazyStrategy) Records() []ConnectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConnectionRecord, 0, len(s.backends))
	for name, b := range s.backends {
		open := b.inUse + len(b.idle)
		out = append(out, ConnectionRecord{
			BackendName:  name,
			Config:       b.cfg,
			Connected:    open > 0,
			LastSeenAt:   b.lastSeen,
			FailureCount: b.failures,
			OpenHandles:  open,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BackendName < out[j].BackendName })
	return out
}

func clientsOf(handles []idleHandle) []mcpserver.MCPClient {
	out := make([]mcpserver.MCPClient, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.client)
	}
	return out
}

func closeAll(clients []mcpserver.MCPClient) error {
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
