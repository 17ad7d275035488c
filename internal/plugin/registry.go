package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

// Registry holds the process-wide parser and provider bindings. Install
// populates it once at startup and it is read-only afterwards; tests build
// isolated instances with NewRegistry instead of mutating a global.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	parsers   map[string]ports.StatementParser
	providers map[string]ports.CategorizationProvider
}

func NewRegistry() *Registry {
	return &Registry{
		parsers:   make(map[string]ports.StatementParser),
		providers: make(map[string]ports.CategorizationProvider),
	}
}

// RegisterParser binds name to p. Re-registering a name replaces the binding
// in place and keeps its original resolution position. Replacement is logged,
// never silent.
func (r *Registry) RegisterParser(name string, p ports.StatementParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[name]; exists {
		slog.Warn("parser_registration_replaced", "name", name)
	} else {
		r.order = append(r.order, name)
	}
	r.parsers[name] = p
}

// RegisterProvider binds name to p, last registration wins.
func (r *Registry) RegisterProvider(name string, p ports.CategorizationProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		slog.Warn("provider_registration_replaced", "name", name)
	}
	r.providers[name] = p
}

// ResolveParser returns the first registered parser whose Detect claims the
// file. Ties are broken by registration order, first registered wins.
func (r *Registry) ResolveParser(data []byte, filename string) (ports.StatementParser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if p := r.parsers[name]; p.Detect(data, filename) {
			return p, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNoParserMatched, "resolve parser", fmt.Errorf("no registered parser claims %q", filename))
}

// ResolveProvider returns the provider registered under name.
func (r *Registry) ResolveProvider(name string) (ports.CategorizationProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.WrapError(domain.ErrProviderFailed, "resolve provider", fmt.Errorf("provider %q is not registered, available: %v", name, r.providerNamesLocked()))
	}
	return p, nil
}

// ParserNames returns parser names in resolution order.
func (r *Registry) ParserNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providerNamesLocked()
}

func (r *Registry) providerNamesLocked() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
