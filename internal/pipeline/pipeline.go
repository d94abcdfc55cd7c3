// Package pipeline runs the extensible stages that surround backend
// analysis: pre-hooks that transform content before it is analyzed,
// custom checks that contribute findings after the backend, and
// post-hooks that transform the finished result.
//
// The package provides failure isolation as its core guarantee: a
// hook or check that errors, panics, exceeds its time budget, or
// returns a malformed value is skipped and recorded as a degradation
// annotation, and the review continues with the remaining components.
// No registered extension can abort a review.
//
// Hooks and checks run in registration order. A Registry is an
// immutable snapshot of registrations; the Runner holds the active
// registry behind an atomic pointer so plugin reloads can swap the
// whole set without locking the hot path.
package pipeline

import (
	"context"

	"github.com/ahrav/go-critique/internal/domain"
)

// PreHookFunc transforms artifact content before analysis. The
// returned content replaces the input for all later stages; the
// language never changes.
type PreHookFunc func(ctx context.Context, content string, language domain.Language) (string, error)

// CheckFunc contributes additional findings after backend analysis.
// It receives the content and the findings accumulated so far, and
// returns only its own new findings.
type CheckFunc func(ctx context.Context, content string, findings []domain.Finding) ([]domain.Finding, error)

// PostHookFunc transforms a completed review result. It must preserve
// the result's artifact identity; hooks wanting to modify findings
// should Clone first.
type PostHookFunc func(ctx context.Context, result *domain.ReviewResult) (*domain.ReviewResult, error)

// PreHook is a named pre-analysis content transformer.
type PreHook struct {
	Name string
	Fn   PreHookFunc
}

// Check is a named custom finding producer.
type Check struct {
	Name string
	Fn   CheckFunc
}

// PostHook is a named result transformer.
type PostHook struct {
	Name string
	Fn   PostHookFunc
}

// Registry is an ordered collection of hooks and checks. Register all
// components before handing the registry to a Runner; a registry in
// use by a Runner must not be mutated, swap a new one in instead.
type Registry struct {
	pre    []PreHook
	checks []Check
	post   []PostHook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// RegisterPreHook appends a pre-hook in execution order.
func (r *Registry) RegisterPreHook(name string, fn PreHookFunc) {
	r.pre = append(r.pre, PreHook{Name: name, Fn: fn})
}

// RegisterCheck appends a custom check in execution order.
func (r *Registry) RegisterCheck(name string, fn CheckFunc) {
	r.checks = append(r.checks, Check{Name: name, Fn: fn})
}

// RegisterPostHook appends a post-hook in execution order.
func (r *Registry) RegisterPostHook(name string, fn PostHookFunc) {
	r.post = append(r.post, PostHook{Name: name, Fn: fn})
}

// Size returns the total number of registered components.
func (r *Registry) Size() int {
	return len(r.pre) + len(r.checks) + len(r.post)
}

// Merge returns a new registry running r's components first, then
// other's, stage by stage. Neither input is modified; either may be
// nil.
func (r *Registry) Merge(other *Registry) *Registry {
	merged := NewRegistry()
	for _, reg := range []*Registry{r, other} {
		if reg == nil {
			continue
		}
		merged.pre = append(merged.pre, reg.pre...)
		merged.checks = append(merged.checks, reg.checks...)
		merged.post = append(merged.post, reg.post...)
	}
	return merged
}
