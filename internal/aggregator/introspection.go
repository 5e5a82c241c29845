package aggregator

import (
	"fmt"
	"time"

	"switchboard/internal/config"
)

// ServerCapabilities describes one backend and the public names it contributes.
type ServerCapabilities struct {
	Name         string             `json:"name"`
	Type         config.BackendType `json:"type"`
	Tools        []string           `json:"tools"`
	Prompts      []string           `json:"prompts"`
	Resources    []string           `json:"resources"`
	Loaded       bool               `json:"loaded"`
	Connected    bool               `json:"connected"`
	LastError    string             `json:"lastError,omitempty"`
	LoadedAt     time.Time          `json:"loadedAt,omitempty"`
	LoadDuration time.Duration      `json:"loadDuration,omitempty"`
	FailureCount int                `json:"failureCount"`
}

// Statistics is a read-only snapshot of the whole aggregator.
type Statistics struct {
	InstanceID     string               `json:"instanceId"`
	State          string               `json:"state"`
	ServerCount    int                  `json:"serverCount"`
	LoadedServers  int                  `json:"loadedServers"`
	FailedServers  int                  `json:"failedServers"`
	TotalTools     int                  `json:"totalTools"`
	TotalPrompts   int                  `json:"totalPrompts"`
	TotalResources int                  `json:"totalResources"`
	Conflicts      int                  `json:"conflicts"`
	Registry       RegistryStatistics   `json:"registry"`
	Connections    ConnectionStatistics `json:"connections"`
	Operations     OperationStatistics  `json:"operations"`
	StartedAt      time.Time            `json:"startedAt"`
	InitializedAt  time.Time            `json:"initializedAt,omitempty"`
	Uptime         time.Duration        `json:"uptime"`
}

// GetServerCapabilities reports what backend name contributes.
func (a *Aggregator) GetServerCapabilities(name string) (ServerCapabilities, error) {
	if err := a.checkReady("GetServerCapabilities"); err != nil {
		return ServerCapabilities{}, err
	}

	a.mu.RLock()
	st, ok := a.backends[name]
	var snapshot backendState
	if ok {
		snapshot = *st
	}
	registry, strategy := a.registry, a.strategy
	a.mu.RUnlock()

	if !ok {
		return ServerCapabilities{}, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	return describe(snapshot, registry, connectionRecords(strategy)), nil
}

// ListServers describes every backend in configuration order.
func (a *Aggregator) ListServers() ([]ServerCapabilities, error) {
	if err := a.checkReady("ListServers"); err != nil {
		return nil, err
	}

	a.mu.RLock()
	snapshots := make([]backendState, 0, len(a.order))
	for _, name := range a.order {
		snapshots = append(snapshots, *a.backends[name])
	}
	registry, strategy := a.registry, a.strategy
	a.mu.RUnlock()

	records := connectionRecords(strategy)
	out := make([]ServerCapabilities, 0, len(snapshots))
	for _, st := range snapshots {
		out = append(out, describe(st, registry, records))
	}
	return out, nil
}

func connectionRecords(strategy ConnectionStrategy) map[string]ConnectionRecord {
	out := make(map[string]ConnectionRecord)
	if strategy == nil {
		return out
	}
	for _, r := range strategy.Records() {
		out[r.BackendName] = r
	}
	return out
}

func describe(st backendState, registry *ResourceRegistry, records map[string]ConnectionRecord) ServerCapabilities {
	names := registry.CapabilitiesOf(st.cfg.Name)
	rec := records[st.cfg.Name]
	sc := ServerCapabilities{
		Name:         st.cfg.Name,
		Type:         st.cfg.Type,
		Tools:        names[KindTool],
		Prompts:      names[KindPrompt],
		Resources:    names[KindResource],
		Loaded:       st.loaded,
		Connected:    rec.Connected,
		LoadedAt:     st.loadedAt,
		LoadDuration: st.loadTime,
		FailureCount: rec.FailureCount,
	}
	if st.lastErr != nil {
		sc.LastError = st.lastErr.Error()
	}
	return sc
}

// GetStatistics returns a snapshot. It is valid in every state.
func (a *Aggregator) GetStatistics() Statistics {
	a.mu.RLock()
	registry, strategy := a.registry, a.strategy
	stats := Statistics{
		InstanceID:    a.id,
		ServerCount:   len(a.backends),
		StartedAt:     a.startedAt,
		InitializedAt: a.initializedAt,
	}
	for _, st := range a.backends {
		if st.loaded {
			stats.LoadedServers++
		} else if st.lastErr != nil {
			stats.FailedServers++
		}
	}
	a.mu.RUnlock()

	stats.State = a.State().String()
	stats.Uptime = time.Since(a.startedAt)
	stats.Registry = registry.Statistics()
	stats.TotalTools = stats.Registry.Tools
	stats.TotalPrompts = stats.Registry.Prompts
	stats.TotalResources = stats.Registry.Resources
	stats.Conflicts = stats.Registry.Conflicts
	if strategy != nil {
		stats.Connections = strategy.Statistics()
	}
	stats.Operations = a.ops.snapshot()
	return stats
}

// RecentOperations returns the samples in the rolling window, oldest first.
func (a *Aggregator) RecentOperations() []OperationSample {
	return a.ops.recent()
}
