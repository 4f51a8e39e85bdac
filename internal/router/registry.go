// Package router maps updates to handlers.
//
// Routes are keyed by update kind and a pattern. When several routes match
// one update the most specific wins: an exact pattern beats a prefix, a
// prefix beats a kind-wide route, a longer prefix beats a shorter one, and
// the earlier registration breaks any remaining tie.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
)

// MatchType selects how a route pattern is compared with an update.
type MatchType int

const (
	MatchAny    MatchType = iota // every update of the kind
	MatchPrefix                  // subject starts with pattern
	MatchExact                   // subject equals pattern
)

func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	default:
		return "any"
	}
}

var (
	ErrDuplicateRoute = errors.New("route already registered")
	ErrInvalidRoute   = errors.New("invalid route")
)

// Route binds a handler to updates of one kind.
type Route struct {
	Kind        bus.Kind
	Match       MatchType
	Pattern     string
	Description string // shown by /help for command routes; empty hides the route
	AdminOnly   bool
	Handler     Handler

	seq int
}

// Name identifies the route in logs, e.g. "command:start" or "callback:menu:*".
func (r Route) Name() string {
	switch r.Match {
	case MatchExact:
		return string(r.Kind) + ":" + r.Pattern
	case MatchPrefix:
		return string(r.Kind) + ":" + r.Pattern + "*"
	default:
		return string(r.Kind) + ":*"
	}
}

// Option customizes a route registered through the helper methods.
type Option func(*Route)

// AdminOnly restricts the route to configured admins.
func AdminOnly() Option { return func(r *Route) { r.AdminOnly = true } }

// Describe sets the /help description of a route.
func Describe(desc string) Option { return func(r *Route) { r.Description = desc } }

// Registry holds routes. It is safe for concurrent use; registration
// normally happens once at startup and matching on every update.
type Registry struct {
	mu     sync.RWMutex
	routes map[bus.Kind][]Route
	next   int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[bus.Kind][]Route)}
}

// Handle registers a route. Two exact routes with the same kind and pattern,
// or two kind-wide routes for the same kind, are rejected.
func (r *Registry) Handle(route Route) error {
	if route.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidRoute, route.Name())
	}
	if route.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidRoute)
	}
	if route.Match != MatchAny && route.Pattern == "" {
		return fmt.Errorf("%w: %s needs a pattern", ErrInvalidRoute, route.Name())
	}
	if route.Kind == bus.KindCommand {
		route.Pattern = normalizeCommand(route.Pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes[route.Kind] {
		if existing.Match == route.Match && existing.Pattern == route.Pattern {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, route.Name())
		}
	}
	route.seq = r.next
	r.next++
	r.routes[route.Kind] = append(r.routes[route.Kind], route)
	return nil
}

// Command registers an exact command route. name may be given with or without the slash.
func (r *Registry) Command(name string, h Handler, opts ...Option) error {
	return r.Handle(build(Route{Kind: bus.KindCommand, Match: MatchExact, Pattern: name, Handler: h}, opts))
}

// Callback registers a callback route matching button data by prefix.
func (r *Registry) Callback(prefix string, h Handler, opts ...Option) error {
	return r.Handle(build(Route{Kind: bus.KindCallback, Match: MatchPrefix, Pattern: prefix, Handler: h}, opts))
}

// Text registers a message route matching the whole message text, as sent
// by reply keyboard buttons.
func (r *Registry) Text(text string, h Handler, opts ...Option) error {
	return r.Handle(build(Route{Kind: bus.KindMessage, Match: MatchExact, Pattern: text, Handler: h}, opts))
}

// Kind registers a catch-all route for every update of kind.
func (r *Registry) Kind(kind bus.Kind, h Handler, opts ...Option) error {
	return r.Handle(build(Route{Kind: kind, Match: MatchAny, Handler: h}, opts))
}

func build(route Route, opts []Option) Route {
	for _, opt := range opts {
		opt(&route)
	}
	return route
}

// Match returns the most specific route for upd.
func (r *Registry) Match(upd bus.Update) (Route, bool) {
	subject := Subject(upd)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Route
	found := false
	for _, route := range r.routes[upd.Kind] {
		if !route.matches(subject) {
			continue
		}
		if !found || route.beats(best) {
			best = route
			found = true
		}
	}
	return best, found
}

func (r Route) matches(subject string) bool {
	switch r.Match {
	case MatchExact:
		return subject == r.Pattern
	case MatchPrefix:
		return strings.HasPrefix(subject, r.Pattern)
	default:
		return true
	}
}

func (r Route) beats(other Route) bool {
	if r.Match != other.Match {
		return r.Match > other.Match
	}
	if len(r.Pattern) != len(other.Pattern) {
		return len(r.Pattern) > len(other.Pattern)
	}
	return r.seq < other.seq
}

// Commands returns the described command routes sorted by name.
func (r *Registry) Commands() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Route
	for _, route := range r.routes[bus.KindCommand] {
		if route.Match == MatchExact && route.Description != "" {
			out = append(out, route)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, routes := range r.routes {
		n += len(routes)
	}
	return n
}

// Subject returns the part of upd that route patterns are compared with.
func Subject(upd bus.Update) string {
	switch upd.Kind {
	case bus.KindCommand, bus.KindScheduled:
		return upd.Command
	case bus.KindCallback:
		return upd.CallbackData
	case bus.KindMessage, bus.KindEdited:
		return strings.TrimSpace(upd.Text)
	default:
		return ""
	}
}

func normalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
