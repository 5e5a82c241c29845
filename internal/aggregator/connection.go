package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/mcpserver"
)

// ClientFactory creates a disconnected client for a backend.
type ClientFactory func(cfg config.BackendConfig) (mcpserver.MCPClient, error)

// ConnectionStrategy obtains live client handles for backends under a
// lifecycle policy. Implementations are safe for concurrent use.
type ConnectionStrategy interface {
	// Initialize registers every backend configuration. It does not connect.
	Initialize(ctx context.Context, configs []config.BackendConfig) error
	// Register adds one backend. It fails with ErrAlreadyExists for a known name.
	Register(cfg config.BackendConfig) error
	// Remove closes and forgets a backend. It fails with ErrUnknownBackend.
	Remove(ctx context.Context, name string) error
	// GetConnection returns a live handle. The lease must be released.
	// Unknown or unreachable backends yield a *ConnectionError.
	GetConnection(ctx context.Context, name string) (*Lease, error)
	// Shutdown closes every managed connection. It is idempotent and
	// returns the close errors it encountered.
	Shutdown(ctx context.Context) error
	Statistics() ConnectionStatistics
	Records() []ConnectionRecord
}

// StrategyOptions configures both strategies. Zero values fall back to the
// config package defaults.
type StrategyOptions struct {
	Factory              ClientFactory
	IdleTimeout          time.Duration
	HealthCheckInterval  time.Duration
	PoolSize             int
	MaxReconnectAttempts int
	// ReconnectInterval is the first backoff step of a persistent reconnect.
	ReconnectInterval time.Duration
}

func (o StrategyOptions) withDefaults() StrategyOptions {
	if o.Factory == nil {
		o.Factory = mcpserver.NewMCPClient
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = config.DefaultIdleTimeout
	}
	if o.PoolSize <= 0 {
		o.PoolSize = config.DefaultPoolSize
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = defaultReconnectInterval
	}
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = 0
	}
	return o
}

// NewConnectionStrategy selects the implementation for mode.
func NewConnectionStrategy(mode string, opts StrategyOptions) (ConnectionStrategy, error) {
	switch mode {
	case config.ConnectionModePersistent, "":
		return newPersistentStrategy(opts), nil
	case config.ConnectionModeLazy:
		return newLazyStrategy(opts), nil
	}
	return nil, fmt.Errorf("unknown connection mode %q", mode)
}

// ConnectionRecord is a snapshot of one backend's connection state.
type ConnectionRecord struct {
	BackendName  string               `json:"backendName"`
	Config       config.BackendConfig `json:"config"`
	Connected    bool                 `json:"connected"`
	LastSeenAt   time.Time            `json:"lastSeenAt,omitempty"`
	FailureCount int                  `json:"failureCount"`
	// OpenHandles counts live clients; always 0 or 1 in persistent mode.
	OpenHandles int `json:"openHandles"`
}

// ConnectionStatistics summarizes a strategy.
type ConnectionStatistics struct {
	Mode                  string        `json:"mode"`
	TotalConnections      int           `json:"totalConnections"`
	ActiveConnections     int           `json:"activeConnections"`
	OperationsRouted      int64         `json:"operationsRouted"`
	ConnectionErrors      int64         `json:"connectionErrors"`
	AverageConnectionTime time.Duration `json:"averageConnectionTime"`
}

// Lease hands a client to one caller. Release reports the outcome of the
// work done with it; a non-nil error marks the handle as suspect.
type Lease struct {
	Backend string
	Client  mcpserver.MCPClient

	once    sync.Once
	release func(err error)
}

// Release returns the handle to its strategy. Only the first call has effect.
func (l *Lease) Release(err error) {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.release != nil {
			l.release(err)
		}
	})
}

// connectionCounters is shared bookkeeping for both strategies.
type connectionCounters struct {
	mu          sync.Mutex
	routed      int64
	errors      int64
	connects    int64
	connectTime time.Duration
}

func (c *connectionCounters) routedOne() {
	c.mu.Lock()
	c.routed++
	c.mu.Unlock()
}

func (c *connectionCounters) failed() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

func (c *connectionCounters) connected(d time.Duration) {
	c.mu.Lock()
	c.connects++
	c.connectTime += d
	c.mu.Unlock()
}

func (c *connectionCounters) fill(stats *ConnectionStatistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats.OperationsRouted = c.routed
	stats.ConnectionErrors = c.errors
	if c.connects > 0 {
		stats.AverageConnectionTime = c.connectTime / time.Duration(c.connects)
	}
}

// dial creates and initializes a client for cfg, closing it again if the
// handshake fails.
func dial(ctx context.Context, factory ClientFactory, cfg config.BackendConfig) (mcpserver.MCPClient, time.Duration, error) {
	start := time.Now()

	client, err := factory(cfg)
	if err != nil {
		return nil, 0, &ConnectionError{Backend: cfg.Name, Err: err}
	}

	if err := client.Initialize(ctx); err != nil {
		_ = client.Close()
		return nil, 0, &ConnectionError{Backend: cfg.Name, Err: err}
	}

	return client, time.Since(start), nil
}

func unknownBackend(name string) error {
	return &ConnectionError{Backend: name, Err: ErrUnknownBackend}
}
