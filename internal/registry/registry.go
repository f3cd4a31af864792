package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/triage-ai/palisade/services/tool_gateway/internal/params"
	"go.uber.org/zap"
)

// ErrInvalidToolDefinition is returned by Register for a missing name or handler,
// an unknown risk level, or a schema that does not compile.
var ErrInvalidToolDefinition = errors.New("invalid tool definition")

// Registry holds tool definitions by name. Safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]*ToolDefinition
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New creates an empty registry. A non-positive defaultTimeout falls back to DefaultTimeout.
func New(defaultTimeout time.Duration, logger *zap.Logger) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Registry{
		tools:          make(map[string]*ToolDefinition),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Register validates and normalizes def, then stores it under def.Name.
// Re-registering a name replaces the previous definition (last write wins).
func (r *Registry) Register(def ToolDefinition) (*ToolDefinition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("Register: %w: name is required", ErrInvalidToolDefinition)
	}
	if def.Handler == nil {
		return nil, fmt.Errorf("Register: %w: handler is required for %s", ErrInvalidToolDefinition, def.Name)
	}

	if def.RiskLevel == "" {
		def.RiskLevel = RiskLow
	}
	if !def.RiskLevel.Valid() {
		return nil, fmt.Errorf("Register: %w: unknown risk level %q for %s", ErrInvalidToolDefinition, def.RiskLevel, def.Name)
	}
	if def.Timeout <= 0 {
		def.Timeout = r.defaultTimeout
	}
	caps := make([]string, len(def.Capabilities))
	copy(caps, def.Capabilities)
	def.Capabilities = caps

	compiled, err := params.Compile(def.ParamsSchema)
	if err != nil {
		return nil, fmt.Errorf("Register: %w: %s: %v", ErrInvalidToolDefinition, def.Name, err)
	}
	def.compiled = compiled
	def.ParamsSchema = compiled.Schema()

	stored := def
	r.mu.Lock()
	_, replaced := r.tools[def.Name]
	r.tools[def.Name] = &stored
	r.mu.Unlock()

	r.logger.Info("tool registered",
		zap.String("tool_name", def.Name),
		zap.String("risk_level", string(def.RiskLevel)),
		zap.Duration("timeout", def.Timeout),
		zap.Bool("replaced", replaced),
	)

	out := stored
	out.Capabilities = make([]string, len(stored.Capabilities))
	copy(out.Capabilities, stored.Capabilities)
	out.ParamsSchema = stored.ParamsSchema.Clone()
	return &out, nil
}

// Unregister removes a tool. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()

	if ok {
		r.logger.Info("tool unregistered", zap.String("tool_name", name))
	}
}

// Get returns the definition for name, or nil if it is not registered.
// The definition is shared with the registry and must not be modified.
func (r *Registry) Get(name string) *ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns redacted summaries of every tool, sorted by name.
func (r *Registry) List() []ToolSummary {
	r.mu.RLock()
	out := make([]ToolSummary, 0, len(r.tools))
	for _, td := range r.tools {
		caps := make([]string, len(td.Capabilities))
		copy(caps, td.Capabilities)
		out = append(out, ToolSummary{
			Name:         td.Name,
			Description:  td.Description,
			Capabilities: caps,
			RiskLevel:    td.RiskLevel,
			ParamsSchema: td.ParamsSchema.Clone(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
