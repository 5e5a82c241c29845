package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"switchboard/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// CapabilityKind distinguishes the three independent name spaces.
type CapabilityKind int

const (
	KindTool CapabilityKind = iota
	KindPrompt
	KindResource
)

var allKinds = []CapabilityKind{KindTool, KindPrompt, KindResource}

func (k CapabilityKind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindPrompt:
		return "prompt"
	case KindResource:
		return "resource"
	}
	return fmt.Sprintf("CapabilityKind(%d)", int(k))
}

// Capability is an item offered by a backend, before namespacing. Name is the
// tool or prompt name, or the resource URI. Descriptor holds the mcp.Tool,
// mcp.Prompt or mcp.Resource as reported by the backend.
type Capability struct {
	Name       string
	Descriptor interface{}
}

// ToolCapabilities wraps backend tools for registration.
func ToolCapabilities(tools []mcp.Tool) []Capability {
	out := make([]Capability, 0, len(tools))
	for _, t := range tools {
		out = append(out, Capability{Name: t.Name, Descriptor: t})
	}
	return out
}

// PromptCapabilities wraps backend prompts for registration.
func PromptCapabilities(prompts []mcp.Prompt) []Capability {
	out := make([]Capability, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, Capability{Name: p.Name, Descriptor: p})
	}
	return out
}

// ResourceCapabilities wraps backend resources for registration.
func ResourceCapabilities(resources []mcp.Resource) []Capability {
	out := make([]Capability, 0, len(resources))
	for _, r := range resources {
		out = append(out, Capability{Name: r.URI, Descriptor: r})
	}
	return out
}

// CapabilityEntry is one registered capability.
type CapabilityEntry struct {
	PublicName   string
	BackendName  string
	OriginalName string
	Descriptor   interface{}
	RegisteredAt time.Time
}

// Rejection records a capability that was not registered.
type Rejection struct {
	OriginalName string
	Outcome      Outcome
	Reason       string
}

// AddReport summarizes one AddCapabilities call.
type AddReport struct {
	Backend  string
	Kind     CapabilityKind
	Accepted map[string]string // original name -> public name
	Rejected []Rejection
	// Conflicts holds the *ConflictError of every entry dropped under PolicyError.
	Conflicts []error
}

// Err joins the conflict errors, or returns nil.
func (r AddReport) Err() error {
	return errors.Join(r.Conflicts...)
}

// BackendCounts is the number of entries a backend contributes per kind.
type BackendCounts struct {
	Tools     int `json:"tools"`
	Prompts   int `json:"prompts"`
	Resources int `json:"resources"`
}

// RegistryStatistics describes the registry contents.
type RegistryStatistics struct {
	Tools      int                      `json:"tools"`
	Prompts    int                      `json:"prompts"`
	Resources  int                      `json:"resources"`
	PerBackend map[string]BackendCounts `json:"perBackend"`
	Conflicts  int                      `json:"conflicts"`
	// ApproxMemoryBytes is an estimate based on the encoded size of names and descriptors.
	ApproxMemoryBytes int `json:"approxMemoryBytes"`
}

// ResourceRegistry maps public capability names to their owning backend,
// separately for tools, prompts and resources. Each Aggregator owns exactly
// one registry.
type ResourceRegistry struct {
	policy ConflictPolicy

	mu        sync.RWMutex
	entries   map[CapabilityKind]map[string]*CapabilityEntry
	conflicts int
}

// NewResourceRegistry creates an empty registry using policy for conflicts.
func NewResourceRegistry(policy ConflictPolicy) *ResourceRegistry {
	r := &ResourceRegistry{policy: policy}
	r.reset()
	return r
}

func (r *ResourceRegistry) reset() {
	r.entries = make(map[CapabilityKind]map[string]*CapabilityEntry, len(allKinds))
	for _, k := range allKinds {
		r.entries[k] = make(map[string]*CapabilityEntry)
	}
	r.conflicts = 0
}

// Policy returns the conflict policy in use.
func (r *ResourceRegistry) Policy() ConflictPolicy {
	return r.policy
}

// AddCapabilities registers items of one kind offered by backend. Every item
// is resolved independently; a rejected or conflicting item never prevents
// its siblings from registering.
func (r *ResourceRegistry) AddCapabilities(backend string, kind CapabilityKind, items []Capability) AddReport {
	report := AddReport{
		Backend:  backend,
		Kind:     kind,
		Accepted: make(map[string]string),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries[kind]
	now := time.Now()

	for _, item := range items {
		if item.Name == "" {
			continue
		}

		holder := ""
		if existing, ok := entries[item.Name]; ok {
			holder = existing.BackendName
			if holder != backend {
				r.conflicts++
			}
		}

		decision, err := Resolve(holder, backend, item.Name, r.policy)
		if err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				conflict.Kind = kind
			}
			logging.Warn("Registry", "Dropping %s %s from %s: %v", kind, item.Name, backend, err)
			report.Rejected = append(report.Rejected, Rejection{OriginalName: item.Name, Outcome: decision.Outcome, Reason: err.Error()})
			report.Conflicts = append(report.Conflicts, err)
			continue
		}

		if decision.Outcome == OutcomeAccepted {
			if _, taken := entries[decision.PublicName]; taken {
				decision = Decision{Outcome: OutcomeRejected, Reason: "prefixed name taken"}
			}
		}

		if decision.Outcome != OutcomeAccepted {
			logging.Info("Registry", "%s %s from %s not registered: %s", kind, item.Name, backend, decision.Reason)
			report.Rejected = append(report.Rejected, Rejection{OriginalName: item.Name, Outcome: decision.Outcome, Reason: decision.Reason})
			continue
		}

		entries[decision.PublicName] = &CapabilityEntry{
			PublicName:   decision.PublicName,
			BackendName:  backend,
			OriginalName: item.Name,
			Descriptor:   item.Descriptor,
			RegisteredAt: now,
		}
		report.Accepted[item.Name] = decision.PublicName
	}

	logging.Debug("Registry", "Backend %s: %d %ss registered, %d rejected",
		backend, len(report.Accepted), kind, len(report.Rejected))
	return report
}

// GetAll returns a copy of the public name -> descriptor view for kind.
func (r *ResourceRegistry) GetAll(kind CapabilityKind) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]interface{}, len(r.entries[kind]))
	for name, e := range r.entries[kind] {
		out[name] = e.Descriptor
	}
	return out
}

// Entries returns copies of all entries of kind sorted by public name.
func (r *ResourceRegistry) Entries(kind CapabilityKind) []CapabilityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CapabilityEntry, 0, len(r.entries[kind]))
	for _, e := range r.entries[kind] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicName < out[j].PublicName })
	return out
}

// Get looks up a public name.
func (r *ResourceRegistry) Get(kind CapabilityKind, publicName string) (CapabilityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[kind][publicName]
	if !ok {
		return CapabilityEntry{}, false
	}
	return *e, true
}

// RemoveBackend deletes every entry contributed by backend and returns how
// many were removed. Freed names stay vacant; shadowed candidates from other
// backends are not promoted.
func (r *ResourceRegistry) RemoveBackend(backend string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, entries := range r.entries {
		for name, e := range entries {
			if e.BackendName == backend {
				delete(entries, name)
				removed++
			}
		}
	}
	if removed > 0 {
		logging.Debug("Registry", "Removed %d entries of backend %s", removed, backend)
	}
	return removed
}

// CapabilitiesOf returns the sorted public names contributed by backend, per kind.
func (r *ResourceRegistry) CapabilitiesOf(backend string) map[CapabilityKind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[CapabilityKind][]string, len(allKinds))
	for _, k := range allKinds {
		names := []string{}
		for name, e := range r.entries[k] {
			if e.BackendName == backend {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		out[k] = names
	}
	return out
}

// Statistics computes counts, per-backend counts, the conflict counter and a
// memory estimate.
func (r *ResourceRegistry) Statistics() RegistryStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStatistics{
		Tools:      len(r.entries[KindTool]),
		Prompts:    len(r.entries[KindPrompt]),
		Resources:  len(r.entries[KindResource]),
		PerBackend: make(map[string]BackendCounts),
		Conflicts:  r.conflicts,
	}

	for kind, entries := range r.entries {
		for _, e := range entries {
			counts := stats.PerBackend[e.BackendName]
			switch kind {
			case KindTool:
				counts.Tools++
			case KindPrompt:
				counts.Prompts++
			case KindResource:
				counts.Resources++
			}
			stats.PerBackend[e.BackendName] = counts
			stats.ApproxMemoryBytes += approxEntrySize(e)
		}
	}
	return stats
}

// Reset drops every entry and the conflict counter.
func (r *ResourceRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func approxEntrySize(e *CapabilityEntry) int {
	size := len(e.PublicName) + len(e.BackendName) + len(e.OriginalName)
	if data, err := json.Marshal(e.Descriptor); err == nil {
		size += len(data)
	}
	return size
}
