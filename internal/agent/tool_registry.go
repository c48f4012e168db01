package agent

import (
	"sort"
	"sync"

	"github.com/haasonsaas/conductor/pkg/models"
)

// Binding carries the per-turn values a tool is instantiated with.
type Binding struct {
	UserID         string
	User           *models.User
	ConversationID string

	// Output writes transient progress to the turn's client. It may be nil.
	// It can block until the notice is streamed or the turn ends.
	Output func(Notice)
}

// Notice is a progress line a tool reports while it runs. Notices are
// streamed but never persisted.
type Notice struct {
	Tool string `json:"tool"`
	Text string `json:"text"`
}

// ToolFactory builds a tool bound to one turn.
type ToolFactory func(Binding) Tool

// Registration is one registry entry.
type Registration struct {
	// Name is the function name offered to the model.
	Name string

	// Integration is the display name of the backing integration, or "" for
	// tools that need no account.
	Integration string

	// Action is the backend action slug, or "" for local tools.
	Action string

	Factory ToolFactory
}

// ToolRegistry holds tool factories keyed by name. It is populated once at
// startup and read concurrently afterwards.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Registration
	loaded bool
}

// NewToolRegistry creates a new empty tool registry ready for registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Registration),
	}
}

// Register adds a factory under name. A second registration with the same
// name replaces the first.
func (r *ToolRegistry) Register(name string, factory ToolFactory, integration, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = Registration{
		Name:        name,
		Integration: integration,
		Action:      action,
		Factory:     factory,
	}
}

// Get returns the registration for name.
func (r *ToolRegistry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Snapshot returns a copy of all registrations sorted by name.
func (r *ToolRegistry) Snapshot() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByIntegration returns the registrations for one integration, sorted by name.
func (r *ToolRegistry) ByIntegration(integration string) []Registration {
	var out []Registration
	for _, reg := range r.Snapshot() {
		if reg.Integration == integration {
			out = append(out, reg)
		}
	}
	return out
}

// Names returns the sorted registered tool names.
func (r *ToolRegistry) Names() []string {
	snapshot := r.Snapshot()
	names := make([]string, len(snapshot))
	for i, reg := range snapshot {
		names[i] = reg.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// MarkLoaded flags the registry as populated. It returns false if it was
// already marked, letting callers register exactly once.
func (r *ToolRegistry) MarkLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return false
	}
	r.loaded = true
	return true
}

// IsLoaded reports whether MarkLoaded has been called.
func (r *ToolRegistry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// InstantiateAll binds every registered factory to b.
func (r *ToolRegistry) InstantiateAll(b Binding) *Toolset {
	snapshot := r.Snapshot()
	set := &Toolset{
		tools: make(map[string]Tool, len(snapshot)),
		order: make([]string, 0, len(snapshot)),
	}
	for _, reg := range snapshot {
		if reg.Factory == nil {
			continue
		}
		tool := reg.Factory(b)
		if tool == nil {
			continue
		}
		set.tools[reg.Name] = tool
		set.order = append(set.order, reg.Name)
	}
	return set
}
