// Package plugin loads review extensions from Go source files
// evaluated in a sandboxed yaegi interpreter, without compilation or
// process restarts.
//
// A plugin file may define any of three well-known functions:
//
//	BeforeReview(code, language string) (string, error)
//	AfterReview(findings []map[string]any) ([]map[string]any, error)
//	Check(content string) (message, severity string, err error)
//
// Whatever subset a file defines is wired into the hook pipeline under
// the file's base name; a file defining none is a loaded no-op. Before
// evaluation each file's imports are checked against a whitelist of
// side-effect-free stdlib packages; files importing anything else are
// rejected and recorded as plugin-phase degradations rather than
// failing the load of the whole directory.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/ahrav/go-critique/internal/domain"
	"github.com/ahrav/go-critique/internal/pipeline"
)

// ErrNoPluginDir indicates the configured plugin directory does not exist.
var ErrNoPluginDir = errors.New("plugin directory does not exist")

// Plugins is the outcome of loading a directory: the pipeline
// components contributed by plugin files, plus degradation annotations
// for every file that failed to load.
type Plugins struct {
	// Registry holds the hooks and checks wired from loaded modules.
	Registry *pipeline.Registry

	// Degradations records modules that were rejected or failed to
	// evaluate. They annotate reviews run while the modules are broken.
	Degradations []domain.Degradation

	// Modules is the number of files that loaded successfully.
	Modules int
}

// Loader evaluates plugin files and wires their exported functions
// into pipeline registrations.
type Loader struct {
	logger *slog.Logger
}

// LoaderOption configures optional Loader behavior.
type LoaderOption func(*Loader)

// WithLogger sets the logger for load outcomes.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "plugin_loader")
	return l
}

// LoadDir loads every .go file in dir in lexical order. Files that
// fail the sandbox check or evaluation become degradations; only a
// missing or unreadable directory is an error. An empty dir yields an
// empty registry.
func (l *Loader) LoadDir(dir string) (*Plugins, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoPluginDir, dir)
		}
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := &Plugins{Registry: pipeline.NewRegistry()}
	for _, name := range names {
		component := strings.TrimSuffix(name, ".go")
		mod, err := l.loadFile(filepath.Join(dir, name), component)
		if err != nil {
			l.logger.Warn("plugin rejected", "file", name, "error", err)
			out.Degradations = append(out.Degradations, domain.Degradation{
				Component: component,
				Phase:     domain.PhasePlugin,
				Reason:    err.Error(),
			})
			continue
		}
		mod.register(out.Registry)
		out.Modules++
		l.logger.Info("plugin loaded",
			"file", name,
			"before_review", mod.pre != nil,
			"after_review", mod.post != nil,
			"check", mod.check != nil)
	}
	return out, nil
}

// module holds the functions one plugin file contributed. Calls into
// the same interpreter are serialized: yaegi interpreters are not safe
// for concurrent use.
type module struct {
	name  string
	mu    sync.Mutex
	pre   func(string, string) (string, error)
	post  func([]map[string]any) ([]map[string]any, error)
	check func(string) (string, string, error)
}

// loadFile validates, evaluates, and extracts symbols from one plugin
// file.
func (l *Loader) loadFile(path, component string) (*module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin: %w", err)
	}

	pkgName, err := vetSource(path, src)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load interpreter stdlib: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluate plugin: %w", err)
	}

	mod := &module{name: component}

	if v, err := i.Eval(pkgName + ".BeforeReview"); err == nil {
		fn, ok := v.Interface().(func(string, string) (string, error))
		if !ok {
			return nil, fmt.Errorf("BeforeReview has wrong signature, want func(string, string) (string, error)")
		}
		mod.pre = fn
	}
	if v, err := i.Eval(pkgName + ".AfterReview"); err == nil {
		fn, ok := v.Interface().(func([]map[string]any) ([]map[string]any, error))
		if !ok {
			return nil, fmt.Errorf("AfterReview has wrong signature, want func([]map[string]any) ([]map[string]any, error)")
		}
		mod.post = fn
	}
	if v, err := i.Eval(pkgName + ".Check"); err == nil {
		fn, ok := v.Interface().(func(string) (string, string, error))
		if !ok {
			return nil, fmt.Errorf("Check has wrong signature, want func(string) (string, string, error)")
		}
		mod.check = fn
	}

	return mod, nil
}

// register wires the module's functions into the registry under its
// component name.
func (m *module) register(reg *pipeline.Registry) {
	if m.pre != nil {
		reg.RegisterPreHook(m.name, m.beforeReview)
	}
	if m.check != nil {
		reg.RegisterCheck(m.name, m.runCheck)
	}
	if m.post != nil {
		reg.RegisterPostHook(m.name, m.afterReview)
	}
}

func (m *module) beforeReview(_ context.Context, content string, language domain.Language) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pre(content, string(language))
}

func (m *module) runCheck(_ context.Context, content string, _ []domain.Finding) ([]domain.Finding, error) {
	m.mu.Lock()
	message, severity, err := m.check(content)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, nil
	}

	sev, perr := domain.ParseSeverity(severity)
	if perr != nil {
		sev = domain.SeverityInfo
	}
	return []domain.Finding{{
		Severity: sev,
		Message:  message,
		Source:   m.name,
	}}, nil
}

func (m *module) afterReview(_ context.Context, result *domain.ReviewResult) (*domain.ReviewResult, error) {
	raw := make([]map[string]any, len(result.Findings))
	for i, f := range result.Findings {
		raw[i] = map[string]any{
			"severity": string(f.Severity),
			"message":  f.Message,
			"line":     f.Location.Line,
			"rule":     f.RuleID,
			"source":   f.Source,
		}
	}

	m.mu.Lock()
	transformed, err := m.post(raw)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := result.Clone()
	out.Findings = out.Findings[:0]
	for _, entry := range transformed {
		f, ok := findingFromMap(entry, m.name)
		if !ok {
			continue
		}
		out.Findings = append(out.Findings, f)
	}
	return out, nil
}

// findingFromMap rebuilds a finding from the loosely-typed plugin
// representation. Entries without a message are dropped; an unknown
// severity downgrades to info.
func findingFromMap(entry map[string]any, fallbackSource string) (domain.Finding, bool) {
	message, _ := entry["message"].(string)
	if strings.TrimSpace(message) == "" {
		return domain.Finding{}, false
	}

	sevRaw, _ := entry["severity"].(string)
	sev, err := domain.ParseSeverity(sevRaw)
	if err != nil {
		sev = domain.SeverityInfo
	}

	f := domain.Finding{Severity: sev, Message: message}
	if rule, ok := entry["rule"].(string); ok {
		f.RuleID = rule
	}
	if source, ok := entry["source"].(string); ok && source != "" {
		f.Source = source
	} else {
		f.Source = fallbackSource
	}
	switch line := entry["line"].(type) {
	case int:
		f.Location = domain.Location{Line: line}
	case float64:
		f.Location = domain.Location{Line: int(line)}
	}
	return f, true
}
