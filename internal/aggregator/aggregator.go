package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/mcpserver"
	"switchboard/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the aggregator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures an Aggregator.
type Options struct {
	ConflictPolicy       ConflictPolicy
	ConnectionMode       string
	LoadingMode          string
	StrictInitialization bool
	// LoadTimeout bounds each backend's load unless the backend sets its own.
	LoadTimeout time.Duration
	Strategy    StrategyOptions
}

// OptionsFromConfig maps the aggregator section of the configuration.
func OptionsFromConfig(cfg config.AggregatorConfig) (Options, error) {
	policy, err := ParseConflictPolicy(cfg.ConflictPolicy)
	if err != nil {
		return Options{}, err
	}
	switch cfg.LoadingMode {
	case "", config.LoadingModeParallel, config.LoadingModeSequential:
	default:
		return Options{}, fmt.Errorf("unknown loading mode %q", cfg.LoadingMode)
	}
	return Options{
		ConflictPolicy:       policy,
		ConnectionMode:       cfg.ConnectionMode,
		LoadingMode:          cfg.LoadingMode,
		StrictInitialization: cfg.StrictInitialization,
		LoadTimeout:          cfg.LoadTimeout,
		Strategy: StrategyOptions{
			IdleTimeout:          cfg.IdleTimeout,
			HealthCheckInterval:  cfg.HealthCheckInterval,
			PoolSize:             cfg.PoolSize,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		},
	}, nil
}

// InitOptions modifies a single Initialize call.
type InitOptions struct {
	// Force re-initializes an already initialized aggregator.
	Force bool
}

type backendState struct {
	cfg      config.BackendConfig
	loaded   bool
	lastErr  error
	loadedAt time.Time
	loadTime time.Duration
}

// loadResult is what one backend returned during a load.
type loadResult struct {
	tools     []mcp.Tool
	prompts   []mcp.Prompt
	resources []mcp.Resource
	elapsed   time.Duration
	err       error
}

// Aggregator presents many backend MCP servers as one. It exclusively owns
// one ResourceRegistry and one ConnectionStrategy.
type Aggregator struct {
	id        string
	opts      Options
	startedAt time.Time

	state atomic.Int32
	ready atomic.Bool
	group singleflight.Group
	loads atomic.Int64

	// mutate serializes initialize, load, add, remove and shutdown.
	mutate sync.Mutex

	mu            sync.RWMutex
	registry      *ResourceRegistry
	strategy      ConnectionStrategy
	backends      map[string]*backendState
	order         []string
	initializedAt time.Time

	ops operationStats

	listenersMu sync.Mutex
	listeners   []func()
}

// New creates an uninitialized aggregator.
func New(opts Options) *Aggregator {
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = PolicyPrefix
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = config.DefaultLoadTimeout
	}
	return &Aggregator{
		id:        uuid.NewString(),
		opts:      opts,
		startedAt: time.Now(),
		registry:  NewResourceRegistry(opts.ConflictPolicy),
		backends:  make(map[string]*backendState),
	}
}

// ID identifies this aggregator instance.
func (a *Aggregator) ID() string { return a.id }

// State returns the current lifecycle state.
func (a *Aggregator) State() State { return State(a.state.Load()) }

func (a *Aggregator) setState(s State) {
	old := State(a.state.Swap(int32(s)))
	if old != s {
		logging.Debug("Aggregator", "State %s -> %s", old, s)
	}
}

// OnChange registers fn to run after the set of capabilities may have changed.
func (a *Aggregator) OnChange(fn func()) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Aggregator) notify() {
	a.listenersMu.Lock()
	listeners := append([]func(){}, a.listeners...)
	a.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (a *Aggregator) checkReady(op string) error {
	if !a.ready.Load() {
		return &NotInitializedError{Operation: op, State: a.State()}
	}
	return nil
}

func (a *Aggregator) current() (*ResourceRegistry, ConnectionStrategy) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry, a.strategy
}

// Initialize validates the backend names, builds a fresh connection strategy
// and loads every backend. An initialized aggregator ignores further calls
// unless opts.Force is set, in which case the new state replaces the old one
// only once it loaded successfully.
//
// Concurrent calls of the same kind (plain or forced) collapse into one
// execution: a caller that joins gets the result of the call already in
// flight, which ran with that first caller's backends and ctx. Plain and
// forced calls never join each other; they run one after the other.
func (a *Aggregator) Initialize(ctx context.Context, backends []config.BackendConfig, opts InitOptions) error {
	key := "initialize"
	if opts.Force {
		key = "reload"
	}
	_, err, shared := a.group.Do(key, func() (interface{}, error) {
		return nil, a.initialize(ctx, backends, opts)
	})
	if shared {
		logging.Debug("Aggregator", "Joined a %s already in progress", key)
	}
	return err
}

// Reload forces re-initialization with a new backend set. Concurrent reloads
// share the first one's result.
func (a *Aggregator) Reload(ctx context.Context, backends []config.BackendConfig) error {
	return a.Initialize(ctx, backends, InitOptions{Force: true})
}

func (a *Aggregator) initialize(ctx context.Context, backends []config.BackendConfig, opts InitOptions) error {
	a.mutate.Lock()
	defer a.mutate.Unlock()

	prev := a.State()
	switch prev {
	case StateInitialized:
		if !opts.Force {
			return nil
		}
	case StateShuttingDown, StateShutdown:
		return fmt.Errorf("aggregator is %s", prev)
	}

	seen := make(map[string]bool, len(backends))
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		if err := ValidateBackendName(b.Name); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, b.Name)
		}
		seen[b.Name] = true
		names = append(names, b.Name)
	}

	a.setState(StateInitializing)
	start := time.Now()

	strategy, err := NewConnectionStrategy(a.opts.ConnectionMode, a.opts.Strategy)
	if err != nil {
		a.setState(prev)
		return err
	}
	if err := strategy.Initialize(ctx, backends); err != nil {
		a.shutdownStrategy(ctx, strategy)
		a.setState(prev)
		return err
	}

	registry := NewResourceRegistry(a.opts.ConflictPolicy)
	states := make(map[string]*backendState, len(backends))
	for _, b := range backends {
		states[b.Name] = &backendState{cfg: b}
	}

	if err := a.loadInto(ctx, registry, strategy, backends, states); err != nil {
		a.shutdownStrategy(ctx, strategy)
		a.setState(prev)
		return err
	}

	a.mu.Lock()
	old := a.strategy
	a.registry = registry
	a.strategy = strategy
	a.backends = states
	a.order = names
	a.initializedAt = time.Now()
	a.mu.Unlock()

	a.ready.Store(true)
	a.setState(StateInitialized)

	if old != nil {
		a.shutdownStrategy(ctx, old)
	}

	stats := registry.Statistics()
	logging.Info("Aggregator", "Initialized %d backends in %s: %d tools, %d prompts, %d resources",
		len(backends), time.Since(start).Round(time.Millisecond), stats.Tools, stats.Prompts, stats.Resources)

	a.notify()
	return nil
}

func (a *Aggregator) shutdownStrategy(ctx context.Context, s ConnectionStrategy) {
	if err := s.Shutdown(ctx); err != nil {
		logging.Error("Aggregator", err, "Error closing backend connections")
	}
}

// LoadServers fetches capabilities again. Without force only backends that
// are not loaded yet are attempted; with force every backend is reloaded and
// its previous entries are dropped first.
func (a *Aggregator) LoadServers(ctx context.Context, force bool) error {
	if err := a.checkReady("LoadServers"); err != nil {
		return err
	}

	a.mutate.Lock()
	defer a.mutate.Unlock()

	a.mu.RLock()
	registry, strategy := a.registry, a.strategy
	var configs []config.BackendConfig
	for _, name := range a.order {
		st := a.backends[name]
		if force || !st.loaded {
			configs = append(configs, st.cfg)
		}
	}
	states := a.backends
	a.mu.RUnlock()

	if len(configs) == 0 {
		return nil
	}
	if force {
		for _, cfg := range configs {
			registry.RemoveBackend(cfg.Name)
		}
	}

	err := a.loadInto(ctx, registry, strategy, configs, states)
	a.notify()
	return err
}

// loadInto loads configs into registry. Parallel mode attempts every backend
// and registers results in configuration order; sequential mode stops at the
// first failure when strict initialization is on. In both modes a failure
// only propagates under strict initialization.
func (a *Aggregator) loadInto(ctx context.Context, registry *ResourceRegistry, strategy ConnectionStrategy,
	configs []config.BackendConfig, states map[string]*backendState) error {
	a.loads.Add(1)

	if a.opts.LoadingMode == config.LoadingModeSequential {
		for _, cfg := range configs {
			res := a.fetchBackend(ctx, strategy, cfg)
			a.applyResult(registry, states[cfg.Name], res)
			if res.err != nil && a.opts.StrictInitialization {
				return fmt.Errorf("loading backend %s: %w", cfg.Name, res.err)
			}
		}
		return nil
	}

	results := make([]loadResult, len(configs))
	var g errgroup.Group
	for i, cfg := range configs {
		g.Go(func() error {
			results[i] = a.fetchBackend(ctx, strategy, cfg)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, cfg := range configs {
		a.applyResult(registry, states[cfg.Name], results[i])
		if results[i].err != nil && firstErr == nil {
			firstErr = fmt.Errorf("loading backend %s: %w", cfg.Name, results[i].err)
		}
	}
	if firstErr != nil && a.opts.StrictInitialization {
		return firstErr
	}
	return nil
}

// fetchBackend connects to one backend and lists its tools, prompts and
// resources concurrently within the backend's load timeout. A kind the
// backend does not offer is not an error; the load only fails when the
// connection fails, the timeout expires or every listing fails.
func (a *Aggregator) fetchBackend(ctx context.Context, strategy ConnectionStrategy, cfg config.BackendConfig) loadResult {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = a.opts.LoadTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var res loadResult

	lease, err := strategy.GetConnection(lctx, cfg.Name)
	if err != nil {
		res.err = asTimeout(ctx, lctx, cfg.Name, timeout, err)
		res.elapsed = time.Since(start)
		return res
	}

	var toolsErr, promptsErr, resourcesErr error
	var g errgroup.Group
	g.Go(func() error {
		res.tools, toolsErr = lease.Client.ListTools(lctx)
		return nil
	})
	g.Go(func() error {
		res.prompts, promptsErr = lease.Client.ListPrompts(lctx)
		return nil
	})
	g.Go(func() error {
		res.resources, resourcesErr = lease.Client.ListResources(lctx)
		return nil
	})
	_ = g.Wait()

	switch {
	case toolsErr != nil && promptsErr != nil && resourcesErr != nil:
		res.err = asTimeout(ctx, lctx, cfg.Name, timeout,
			&ConnectionError{Backend: cfg.Name, Err: errors.Join(toolsErr, promptsErr, resourcesErr)})
	case lctx.Err() != nil && ctx.Err() == nil:
		res.err = &TimeoutError{Backend: cfg.Name, Timeout: timeout, Err: lctx.Err()}
	default:
		for kind, err := range map[CapabilityKind]error{KindTool: toolsErr, KindPrompt: promptsErr, KindResource: resourcesErr} {
			if err != nil {
				logging.Debug("Aggregator", "Backend %s offers no %ss: %v", cfg.Name, kind, err)
			}
		}
	}

	lease.Release(res.err)
	res.elapsed = time.Since(start)
	return res
}

// asTimeout converts err into a *TimeoutError when the per-backend deadline,
// not the caller's context, ended the attempt.
func asTimeout(parent, lctx context.Context, backend string, timeout time.Duration, err error) error {
	if errors.Is(lctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Backend: backend, Timeout: timeout, Err: err}
	}
	return err
}

func (a *Aggregator) applyResult(registry *ResourceRegistry, st *backendState, res loadResult) {
	name := st.cfg.Name

	if res.err != nil {
		a.mu.Lock()
		st.loaded = false
		st.lastErr = res.err
		a.mu.Unlock()
		logging.Error("Aggregator", res.err, "Failed to load backend %s", name)
		return
	}

	reports := []AddReport{
		registry.AddCapabilities(name, KindTool, ToolCapabilities(res.tools)),
		registry.AddCapabilities(name, KindPrompt, PromptCapabilities(res.prompts)),
		registry.AddCapabilities(name, KindResource, ResourceCapabilities(res.resources)),
	}
	for _, r := range reports {
		if err := r.Err(); err != nil {
			logging.Warn("Aggregator", "Backend %s: %d %ss dropped by conflict policy", name, len(r.Conflicts), r.Kind)
		}
	}

	a.mu.Lock()
	st.loaded = true
	st.lastErr = nil
	st.loadedAt = time.Now()
	st.loadTime = res.elapsed
	a.mu.Unlock()

	logging.Info("Aggregator", "Loaded backend %s in %s (%d tools, %d prompts, %d resources)",
		name, res.elapsed.Round(time.Millisecond), len(res.tools), len(res.prompts), len(res.resources))
}

// ListTools returns every tool under its public name, sorted by name.
func (a *Aggregator) ListTools() ([]mcp.Tool, error) {
	if err := a.checkReady("ListTools"); err != nil {
		return nil, err
	}
	registry, _ := a.current()
	entries := registry.Entries(KindTool)
	tools := make([]mcp.Tool, 0, len(entries))
	for _, e := range entries {
		if t, ok := e.Descriptor.(mcp.Tool); ok {
			t.Name = e.PublicName
			tools = append(tools, t)
		}
	}
	return tools, nil
}

// ListPrompts returns every prompt under its public name, sorted by name.
func (a *Aggregator) ListPrompts() ([]mcp.Prompt, error) {
	if err := a.checkReady("ListPrompts"); err != nil {
		return nil, err
	}
	registry, _ := a.current()
	entries := registry.Entries(KindPrompt)
	prompts := make([]mcp.Prompt, 0, len(entries))
	for _, e := range entries {
		if p, ok := e.Descriptor.(mcp.Prompt); ok {
			p.Name = e.PublicName
			prompts = append(prompts, p)
		}
	}
	return prompts, nil
}

// ListResources returns every resource under its public URI, sorted by URI.
func (a *Aggregator) ListResources() ([]mcp.Resource, error) {
	if err := a.checkReady("ListResources"); err != nil {
		return nil, err
	}
	registry, _ := a.current()
	entries := registry.Entries(KindResource)
	resources := make([]mcp.Resource, 0, len(entries))
	for _, e := range entries {
		if r, ok := e.Descriptor.(mcp.Resource); ok {
			r.URI = e.PublicName
			resources = append(resources, r)
		}
	}
	return resources, nil
}

// CallTool routes a tool call to the owning backend.
func (a *Aggregator) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	var result *mcp.CallToolResult
	err := a.route(ctx, KindTool, "CallTool", name, func(ctx context.Context, c mcpserver.MCPClient, original string) error {
		var err error
		result, err = c.CallTool(ctx, original, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetPrompt routes a prompt request to the owning backend.
func (a *Aggregator) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	var result *mcp.GetPromptResult
	err := a.route(ctx, KindPrompt, "GetPrompt", name, func(ctx context.Context, c mcpserver.MCPClient, original string) error {
		var err error
		result, err = c.GetPrompt(ctx, original, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadResource routes a read to the owning backend. Contents reported under
// the backend's URI are relabelled with the public URI.
func (a *Aggregator) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	var result *mcp.ReadResourceResult
	err := a.route(ctx, KindResource, "ReadResource", uri, func(ctx context.Context, c mcpserver.MCPClient, original string) error {
		var err error
		result, err = c.ReadResource(ctx, original)
		if err == nil && result != nil && original != uri {
			result.Contents = relabelContents(result.Contents, original, uri)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// route resolves a public name, leases a connection to its backend, runs
// call and records the outcome. Unknown names are recorded as failures.
func (a *Aggregator) route(ctx context.Context, kind CapabilityKind, op, name string,
	call func(ctx context.Context, c mcpserver.MCPClient, original string) error) error {
	if err := a.checkReady(op); err != nil {
		return err
	}

	start := time.Now()
	sample := OperationSample{Kind: kind, Name: name}
	registry, strategy := a.current()
	if strategy == nil {
		return &NotInitializedError{Operation: op, State: a.State()}
	}

	entry, ok := registry.Get(kind, name)
	if !ok {
		err := &NotFoundError{Kind: kind, Name: name}
		a.record(sample, start, err)
		return err
	}
	sample.Backend = entry.BackendName

	lease, err := strategy.GetConnection(ctx, entry.BackendName)
	if err != nil {
		a.record(sample, start, err)
		return err
	}

	err = call(ctx, lease.Client, entry.OriginalName)
	lease.Release(err)
	a.record(sample, start, err)
	if err != nil {
		logging.Debug("Aggregator", "%s %s failed on backend %s: %v", op, name, entry.BackendName, err)
		return fmt.Errorf("%s %s on backend %s: %w", kind, name, entry.BackendName, err)
	}
	return nil
}

func (a *Aggregator) record(sample OperationSample, start time.Time, err error) {
	sample.Latency = time.Since(start)
	sample.Success = err == nil
	a.ops.record(sample)
}

func relabelContents(contents []mcp.ResourceContents, original, public string) []mcp.ResourceContents {
	out := make([]mcp.ResourceContents, 0, len(contents))
	for _, c := range contents {
		switch v := c.(type) {
		case mcp.TextResourceContents:
			if v.URI == original {
				v.URI = public
			}
			out = append(out, v)
		case mcp.BlobResourceContents:
			if v.URI == original {
				v.URI = public
			}
			out = append(out, v)
		default:
			out = append(out, c)
		}
	}
	return out
}

// AddServer registers a new backend and loads its capabilities immediately.
// If the load fails the backend is not kept.
func (a *Aggregator) AddServer(ctx context.Context, name string, cfg config.BackendConfig) error {
	if err := a.checkReady("AddServer"); err != nil {
		return err
	}
	if err := ValidateBackendName(name); err != nil {
		return err
	}
	cfg.Name = name

	a.mutate.Lock()
	defer a.mutate.Unlock()

	a.mu.RLock()
	_, exists := a.backends[name]
	registry, strategy := a.registry, a.strategy
	a.mu.RUnlock()

	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	if err := strategy.Register(cfg); err != nil {
		return err
	}

	res := a.fetchBackend(ctx, strategy, cfg)
	if res.err != nil {
		if err := strategy.Remove(ctx, name); err != nil {
			logging.Warn("Aggregator", "Error unregistering %s: %v", name, err)
		}
		return fmt.Errorf("adding backend %s: %w", name, res.err)
	}

	st := &backendState{cfg: cfg}
	a.mu.Lock()
	a.backends[name] = st
	a.order = append(a.order, name)
	a.mu.Unlock()

	a.applyResult(registry, st, res)
	a.notify()
	return nil
}

// RemoveServer drops a backend's registry entries and its connection.
func (a *Aggregator) RemoveServer(ctx context.Context, name string) error {
	if err := a.checkReady("RemoveServer"); err != nil {
		return err
	}

	a.mutate.Lock()
	defer a.mutate.Unlock()

	a.mu.Lock()
	if _, ok := a.backends[name]; !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	delete(a.backends, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			break
		}
	}
	registry, strategy := a.registry, a.strategy
	a.mu.Unlock()

	removed := registry.RemoveBackend(name)
	if err := strategy.Remove(ctx, name); err != nil {
		logging.Warn("Aggregator", "Error closing connection to %s: %v", name, err)
	}

	logging.Info("Aggregator", "Removed backend %s (%d capabilities)", name, removed)
	a.notify()
	return nil
}

// Shutdown closes every backend connection and clears the registry. Errors
// are logged; Shutdown always completes and is idempotent.
func (a *Aggregator) Shutdown(ctx context.Context) {
	a.mutate.Lock()
	defer a.mutate.Unlock()

	switch a.State() {
	case StateShuttingDown, StateShutdown:
		return
	}

	a.setState(StateShuttingDown)
	a.ready.Store(false)

	// The closed strategy stays in place so calls that passed checkReady
	// just before this point get a *ConnectionError from it.
	a.mu.Lock()
	strategy := a.strategy
	registry := a.registry
	a.backends = make(map[string]*backendState)
	a.order = nil
	a.mu.Unlock()

	if strategy != nil {
		a.shutdownStrategy(ctx, strategy)
	}
	registry.Reset()

	a.setState(StateShutdown)
	logging.Info("Aggregator", "Shut down")
	a.notify()
}
