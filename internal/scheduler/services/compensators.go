package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go-batchd/internal/scheduler/models"
)

// CompensatorRegistry maps action types to compensators. First registration
// wins; later conflicting registrations are kept out with a warning so a
// misconfigured wiring cannot silently change replay behavior.
type CompensatorRegistry struct {
	mu sync.RWMutex
	m  map[string]models.Compensator
}

// NewCompensatorRegistry creates an empty registry.
func NewCompensatorRegistry() *CompensatorRegistry {
	return &CompensatorRegistry{m: make(map[string]models.Compensator)}
}

// Register binds a compensator to its action type.
func (g *CompensatorRegistry) Register(c models.Compensator) error {
	if c == nil {
		return errors.New("compensator must not be nil")
	}
	actionType := c.ActionType()
	if actionType == "" {
		return fmt.Errorf("compensator action type must not be empty: %s", typeName(c))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, exists := g.m[actionType]; exists && prev != c {
		slog.Warn("Compensator conflict, keeping existing",
			slog.String("action_type", actionType),
			slog.String("existing", typeName(prev)),
			slog.String("new", typeName(c)))
		return nil
	}
	g.m[actionType] = c
	return nil
}

// Get returns the compensator for an action type, or nil when none exists.
func (g *CompensatorRegistry) Get(actionType string) models.Compensator {
	if actionType == "" {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.m[actionType]
}

// Contains reports whether an action type has a registered compensator.
func (g *CompensatorRegistry) Contains(actionType string) bool {
	return g.Get(actionType) != nil
}

// AvailableTypes returns the registered action types, sorted.
func (g *CompensatorRegistry) AvailableTypes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.m))
	for k := range g.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
