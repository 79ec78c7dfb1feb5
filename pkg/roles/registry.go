package roles

import (
	"fmt"
	"sync"
)

// Provider produces role definitions for a database+schema pair.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Definitions returns the role definitions this provider contributes
	// for the given database and schema.
	Definitions(database, schema string) []Definition
}

var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// Register adds a provider to the registry. Registering the same name twice
// is an error; providers are wired explicitly at startup.
func Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("cannot register nil provider")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := providers[p.Name()]; exists {
		return fmt.Errorf("provider already registered: %s", p.Name())
	}

	providers[p.Name()] = p
	return nil
}

// Unregister removes a provider from the registry.
func Unregister(name string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := providers[name]; !exists {
		return fmt.Errorf("provider not found: %s", name)
	}

	delete(providers, name)
	return nil
}

// Providers returns all registered providers.
func Providers() []Provider {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	return out
}

// Definitions merges the definitions of every registered provider for the
// given database and schema into one catalog.
func Definitions(database, schema string) []Definition {
	mu.RLock()
	defer mu.RUnlock()

	var out []Definition
	for _, p := range providers {
		out = append(out, p.Definitions(database, schema)...)
	}
	return out
}

// Lookup finds a definition by role name across all providers.
func Lookup(database, schema, name string) (Definition, bool) {
	for _, def := range Definitions(database, schema) {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}
