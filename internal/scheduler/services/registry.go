package services

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/config"
)

// RunnerFactory builds a runner on demand. Factories let the mapping file
// point at types that are only constructed when a task actually needs them.
type RunnerFactory func() models.Runner

// RunnerRegistry resolves task type codes to runner instances.
//
// Resolution order:
//  1. cache
//  2. explicitly registered name
//  3. mapping file entry, whose value is either a registered name or a
//     factory name gated by the allow-list of package prefixes
//  4. scan of registered runners by their Go type name
//
// Successful lookups are cached.
type RunnerRegistry struct {
	mu        sync.RWMutex
	runners   map[string]models.Runner
	factories map[string]RunnerFactory
	mapping   map[string]string
	cache     map[string]models.Runner
	allowed   []string
	strict    bool
}

// NewRunnerRegistry creates a registry. RUNNER_ALLOWED_PACKAGES (comma
// separated) bounds which factory names the mapping file may instantiate;
// the default admits only this module's own packages.
// RUNNER_STRICT_REGISTRATION makes duplicate registrations an error instead
// of a warning.
func NewRunnerRegistry() *RunnerRegistry {
	var allowed []string
	for _, p := range strings.Split(config.GetEnv("RUNNER_ALLOWED_PACKAGES", "go-batchd/"), ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			allowed = append(allowed, p)
		}
	}
	return &RunnerRegistry{
		runners:   make(map[string]models.Runner),
		factories: make(map[string]RunnerFactory),
		mapping:   make(map[string]string),
		cache:     make(map[string]models.Runner),
		allowed:   allowed,
		strict:    config.GetBoolEnv("RUNNER_STRICT_REGISTRATION", false),
	}
}

// Register binds a runner to a type code. Registering the same instance twice
// is a no-op; binding a different runner to an existing code is an error in
// strict mode and keeps the existing mapping otherwise.
func (g *RunnerRegistry) Register(typeCode string, r models.Runner) error {
	if strings.TrimSpace(typeCode) == "" {
		return errors.New("runner type code must not be empty")
	}
	if r == nil {
		return errors.New("runner instance must not be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, exists := g.runners[typeCode]
	if !exists {
		g.runners[typeCode] = r
		g.seedCacheLocked(typeCode, r)
		slog.Info("Runner registered", slog.String("type", typeCode), slog.String("runner", typeName(r)))
		return nil
	}
	if prev == r {
		slog.Debug("Runner already registered with same instance", slog.String("type", typeCode))
		return nil
	}

	msg := fmt.Sprintf("duplicate runner type code %q (existing=%s, new=%s)", typeCode, typeName(prev), typeName(r))
	if g.strict {
		slog.Error("Runner registration conflict", slog.String("detail", msg))
		return errors.New(msg)
	}
	slog.Warn("Runner registration conflict, keeping existing mapping", slog.String("detail", msg))
	return nil
}

// RegisterByType registers a runner under its Go type name.
func (g *RunnerRegistry) RegisterByType(r models.Runner) error {
	if r == nil {
		return errors.New("runner instance must not be nil")
	}
	return g.Register(typeName(r), r)
}

// RegisterFactory binds a factory to a name the mapping file may reference.
// Names should be fully package-qualified so the allow-list can gate them.
func (g *RunnerRegistry) RegisterFactory(name string, f RunnerFactory) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("runner factory name must not be empty")
	}
	if f == nil {
		return errors.New("runner factory must not be nil")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.factories[name]; exists {
		slog.Warn("Runner factory already registered, keeping existing", slog.String("name", name))
		return nil
	}
	g.factories[name] = f
	return nil
}

// LoadMappingFile loads type-code mappings from a properties-style file:
// one key=value per line, # and ! comments, ':' accepted as separator.
// A missing file is legal and leaves the mapping empty.
func (g *RunnerRegistry) LoadMappingFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("No runner mapping file found", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to open runner mapping file %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		sep := strings.IndexAny(line, "=:")
		if sep <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		val := strings.TrimSpace(line[sep+1:])
		if key == "" || val == "" {
			continue
		}
		g.mu.Lock()
		g.mapping[key] = val
		g.mu.Unlock()
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read runner mapping file %s: %w", path, err)
	}
	slog.Info("Loaded runner mapping file", slog.String("path", path), slog.Int("entries", count))
	return nil
}

// Resolve returns the runner for a type code, or false when none is known.
func (g *RunnerRegistry) Resolve(typeCode string) (models.Runner, bool) {
	if typeCode == "" {
		return nil, false
	}

	g.mu.RLock()
	if r, ok := g.cache[typeCode]; ok {
		g.mu.RUnlock()
		return r, true
	}
	if r, ok := g.runners[typeCode]; ok {
		g.mu.RUnlock()
		g.storeCache(typeCode, r)
		return r, true
	}
	target, mapped := g.mapping[typeCode]
	g.mu.RUnlock()

	if mapped && target != "" {
		if r := g.resolveMapped(typeCode, target); r != nil {
			return r, true
		}
	}

	// Last resort: match registered runners by their Go type name.
	g.mu.RLock()
	var found models.Runner
	for _, r := range g.runners {
		if typeName(r) == typeCode || typeFullPath(r) == typeCode {
			found = r
			break
		}
	}
	g.mu.RUnlock()
	if found == nil {
		return nil, false
	}
	g.storeCache(typeCode, found)
	return found, true
}

func (g *RunnerRegistry) resolveMapped(typeCode, target string) models.Runner {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.runners[target]; ok {
		g.cache[typeCode] = r
		return r
	}
	if !g.isAllowedName(target) {
		slog.Warn("Mapped runner name not allowed by package prefix list", slog.String("target", target))
		return nil
	}
	f, ok := g.factories[target]
	if !ok {
		slog.Warn("No runner factory registered for mapped name", slog.String("target", target))
		return nil
	}
	r := f()
	if r == nil {
		slog.Warn("Runner factory returned nil", slog.String("target", target))
		return nil
	}
	g.cache[typeCode] = r
	g.seedCacheLocked(typeCode, r)
	return r
}

// HasRunner reports whether a type code resolves to a runner.
func (g *RunnerRegistry) HasRunner(typeCode string) bool {
	_, ok := g.Resolve(typeCode)
	return ok
}

// AvailableTypes returns the type codes to offer operators: the mapping file
// keys when a mapping is loaded, otherwise the registered names. Sorted for
// stable display.
func (g *RunnerRegistry) AvailableTypes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	if len(g.mapping) > 0 {
		for k := range g.mapping {
			out = append(out, k)
		}
	} else {
		for k := range g.runners {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Init loads the mapping file named by RUNNER_MAPPING_FILE (default
// batch.properties) and warms the cache for every mapped type so that
// misconfigured mappings surface at startup rather than at dispatch.
func (g *RunnerRegistry) Init() {
	path := config.GetEnv("RUNNER_MAPPING_FILE", "batch.properties")
	if err := g.LoadMappingFile(path); err != nil {
		slog.Warn("Failed to load runner mapping file", slog.String("path", path), slog.String("error", err.Error()))
	}

	g.mu.RLock()
	keys := make([]string, 0, len(g.mapping))
	for k := range g.mapping {
		keys = append(keys, k)
	}
	g.mu.RUnlock()

	for _, typeCode := range keys {
		if _, ok := g.Resolve(typeCode); !ok {
			slog.Debug("No runner instance found for mapped type", slog.String("type", typeCode))
		}
	}

	g.mu.RLock()
	slog.Info("Runner registry initialized",
		slog.Int("registered", len(g.runners)),
		slog.Int("mapped", len(g.mapping)),
		slog.Int("cached", len(g.cache)))
	g.mu.RUnlock()
}

func (g *RunnerRegistry) storeCache(typeCode string, r models.Runner) {
	g.mu.Lock()
	g.cache[typeCode] = r
	g.mu.Unlock()
}

// seedCacheLocked caches a runner under its type names so lookups by Go type
// succeed without a scan. Callers must hold the write lock.
func (g *RunnerRegistry) seedCacheLocked(typeCode string, r models.Runner) {
	g.cache[typeCode] = r
	if _, ok := g.cache[typeName(r)]; !ok {
		g.cache[typeName(r)] = r
	}
	if _, ok := g.cache[typeFullPath(r)]; !ok {
		g.cache[typeFullPath(r)] = r
	}
}

func (g *RunnerRegistry) isAllowedName(name string) bool {
	for _, p := range g.allowed {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// typeName returns the short package-qualified type name, e.g. "codeindex.Runner".
func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.String()
}

// typeFullPath returns the import-path-qualified type name,
// e.g. "go-batchd/internal/runner/codeindex.Runner".
func typeFullPath(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.PkgPath() == "" {
		return ""
	}
	return t.PkgPath() + "." + t.Name()
}
