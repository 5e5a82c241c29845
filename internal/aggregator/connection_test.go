package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"switchboard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategy(t *testing.T, mode string, f *mockFactory, opts StrategyOptions) ConnectionStrategy {
	t.Helper()
	opts.Factory = f.create
	s, err := NewConnectionStrategy(mode, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestNewConnectionStrategy(t *testing.T) {
	s, err := NewConnectionStrategy("", StrategyOptions{})
	require.NoError(t, err)
	assert.IsType(t, &persistentStrategy{}, s)

	s, err = NewConnectionStrategy(config.ConnectionModeLazy, StrategyOptions{})
	require.NoError(t, err)
	assert.IsType(t, &lazyStrategy{}, s)
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = NewConnectionStrategy("pooled", StrategyOptions{})
	assert.Error(t, err)
}

func TestPersistentStrategy_ReusesConnection(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{})

	require.NoError(t, s.Initialize(ctx, backends("a")))
	assert.Equal(t, 0, f.count("a"), "registration must not connect")

	for i := 0; i < 3; i++ {
		lease, err := s.GetConnection(ctx, "a")
		require.NoError(t, err)
		assert.Same(t, f.last("a"), lease.Client)
		lease.Release(nil)
	}
	assert.Equal(t, 1, f.count("a"))

	stats := s.Statistics()
	assert.Equal(t, config.ConnectionModePersistent, stats.Mode)
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, int64(3), stats.OperationsRouted)

	records := s.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Connected)
	assert.Equal(t, 1, records[0].OpenHandles)
}

func TestPersistentStrategy_UnknownBackend(t *testing.T) {
	f := newMockFactory(nil)
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{})

	_, err := s.GetConnection(context.Background(), "missing")
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "missing", connErr.Backend)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	assert.ErrorIs(t, s.Remove(context.Background(), "missing"), ErrUnknownBackend)
	assert.Equal(t, int64(1), s.Statistics().ConnectionErrors)
}

func TestPersistentStrategy_RegisterDuplicate(t *testing.T) {
	s := newTestStrategy(t, config.ConnectionModePersistent, newMockFactory(nil), StrategyOptions{})

	require.NoError(t, s.Register(backends("a")[0]))
	assert.ErrorIs(t, s.Register(backends("a")[0]), ErrAlreadyExists)
}

func TestPersistentStrategy_ConnectFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("handshake refused")
	f := newMockFactory(map[string]*mockMCPClient{"a": {initErr: boom}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{MaxReconnectAttempts: 3})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	_, err := s.GetConnection(ctx, "a")
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.ErrorIs(t, err, boom)

	// a backend that never came up is not retried with backoff
	assert.Equal(t, 1, f.count("a"))
	assert.True(t, f.last("a").isClosed())

	records := s.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Connected)
	assert.Equal(t, 1, records[0].FailureCount)
}

func TestPersistentStrategy_ReconnectsAfterFailedHealthCheck(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{MaxReconnectAttempts: 1})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	first := f.last("a")
	first.setPingErr(errors.New("broken pipe"))
	lease.Release(errors.New("call failed"))

	lease, err = s.GetConnection(ctx, "a")
	require.NoError(t, err)
	defer lease.Release(nil)

	assert.Equal(t, 2, f.count("a"))
	assert.True(t, first.isClosed())
	assert.Same(t, f.last("a"), lease.Client)
}

// breakConnection connects to backend a once and leaves the handle failing
// its next health check.
func breakConnection(t *testing.T, s ConnectionStrategy, f *mockFactory) {
	t.Helper()
	lease, err := s.GetConnection(context.Background(), "a")
	require.NoError(t, err)
	f.last("a").setPingErr(errors.New("broken pipe"))
	lease.Release(errors.New("call failed"))
}

func TestPersistentStrategy_ReconnectRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{
		MaxReconnectAttempts: 3,
		ReconnectInterval:    time.Millisecond,
	})
	require.NoError(t, s.Initialize(ctx, backends("a")))
	breakConnection(t, s, f)

	f.failDials("a", 2)
	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	defer lease.Release(nil)

	// initial connect, two refused dials, then the one that succeeds
	assert.Equal(t, 4, f.count("a"))
	assert.Same(t, f.last("a"), lease.Client)

	records := s.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Connected)
	assert.Equal(t, 0, records[0].FailureCount)
}

func TestPersistentStrategy_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{
		MaxReconnectAttempts: 2,
		ReconnectInterval:    time.Millisecond,
	})
	require.NoError(t, s.Initialize(ctx, backends("a")))
	breakConnection(t, s, f)

	f.failDials("a", 3)
	_, err := s.GetConnection(ctx, "a")
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "a", connErr.Backend)

	// one initial connect plus MaxReconnectAttempts+1 refused dials
	assert.Equal(t, 4, f.count("a"))

	records := s.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Connected)
	assert.Equal(t, 1, records[0].FailureCount)

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)
	assert.Equal(t, 5, f.count("a"))
}

func TestPersistentStrategy_SuspectHandleKeptWhenPingSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(errors.New("tool error"))

	lease, err = s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)

	assert.Equal(t, 1, f.count("a"))
	assert.False(t, f.last("a").isClosed())
}

func TestPersistentStrategy_RemoveAndShutdown(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}, "b": {}})
	s := newTestStrategy(t, config.ConnectionModePersistent, f, StrategyOptions{})
	require.NoError(t, s.Initialize(ctx, backends("a", "b")))

	for _, name := range []string{"a", "b"} {
		lease, err := s.GetConnection(ctx, name)
		require.NoError(t, err)
		lease.Release(nil)
	}

	require.NoError(t, s.Remove(ctx, "a"))
	assert.True(t, f.last("a").isClosed())
	_, err := s.GetConnection(ctx, "a")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, f.last("b").isClosed())
	require.NoError(t, s.Shutdown(ctx))

	assert.Empty(t, s.Records())
	assert.Error(t, s.Register(backends("c")[0]))
}

func TestLazyStrategy_PoolsReleasedHandles(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{PoolSize: 1, IdleTimeout: time.Hour})
	require.NoError(t, s.Initialize(ctx, backends("a")))
	assert.Equal(t, 0, f.count("a"))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)

	lease, err = s.GetConnection(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("a"), "idle handle should be reused")
	lease.Release(nil)

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].OpenHandles)
}

func TestLazyStrategy_PoolSizeCapsIdleHandles(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{PoolSize: 1, IdleTimeout: time.Hour})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	first, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	second, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("a"))
	assert.Equal(t, 2, s.Statistics().ActiveConnections)

	first.Release(nil)
	second.Release(nil)

	assert.False(t, first.Client.(*mockMCPClient).isClosed())
	assert.True(t, second.Client.(*mockMCPClient).isClosed())
	assert.Equal(t, 1, s.Records()[0].OpenHandles)
}

func TestLazyStrategy_DiscardsFailedHandles(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{IdleTimeout: time.Hour})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(errors.New("transport closed"))
	lease.Release(nil) // second release is a no-op

	assert.True(t, f.last("a").isClosed())
	assert.Equal(t, 0, s.Records()[0].OpenHandles)

	lease, err = s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)
	assert.Equal(t, 2, f.count("a"))
}

func TestLazyStrategy_ReapsIdleHandles(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{IdleTimeout: time.Hour})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)

	lazy := s.(*lazyStrategy)
	assert.Equal(t, 0, lazy.reapIdle(time.Now()))
	assert.Equal(t, 1, lazy.reapIdle(time.Now().Add(2*time.Hour)))
	assert.True(t, f.last("a").isClosed())
	assert.Equal(t, 0, s.Records()[0].OpenHandles)
}

func TestLazyStrategy_ReaperClosesIdleHandles(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{IdleTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	lease, err := s.GetConnection(ctx, "a")
	require.NoError(t, err)
	lease.Release(nil)

	assert.Eventually(t, func() bool {
		return f.last("a").isClosed()
	}, time.Second, 10*time.Millisecond)
}

func TestLazyStrategy_DialFailure(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {initErr: errors.New("exec: not found")}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{})
	require.NoError(t, s.Initialize(ctx, backends("a")))

	_, err := s.GetConnection(ctx, "a")
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FailureCount)
	assert.Equal(t, 0, records[0].OpenHandles)
	assert.Equal(t, int64(1), s.Statistics().ConnectionErrors)
}

func TestLazyStrategy_RemoveAndShutdown(t *testing.T) {
	ctx := context.Background()
	f := newMockFactory(map[string]*mockMCPClient{"a": {}, "b": {}})
	s := newTestStrategy(t, config.ConnectionModeLazy, f, StrategyOptions{IdleTimeout: time.Hour})
	require.NoError(t, s.Initialize(ctx, backends("a", "b")))

	for _, name := range []string{"a", "b"} {
		lease, err := s.GetConnection(ctx, name)
		require.NoError(t, err)
		lease.Release(nil)
	}

	require.NoError(t, s.Remove(ctx, "a"))
	assert.True(t, f.last("a").isClosed())
	assert.ErrorIs(t, s.Remove(ctx, "a"), ErrUnknownBackend)

	// a handle still leased during shutdown is closed on release
	lease, err := s.GetConnection(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))

	lease.Release(nil)
	assert.True(t, lease.Client.(*mockMCPClient).isClosed())

	_, err = s.GetConnection(ctx, "b")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
