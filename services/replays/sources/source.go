// Package sources defines the catalog source abstraction: where the index
// document and the replay payloads come from.
package sources

import (
	"context"
	"fmt"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Source is a backend the browser can read an archive from.
type Source interface {
	// Name returns the source identifier (e.g. "http", "local").
	Name() string

	// Init initializes the source with configuration.
	Init(config map[string]any) error

	// FetchIndex performs the single startup read of the catalog document.
	FetchIndex(ctx context.Context) (models.Index, error)

	// FetchReplay returns the payload of one replay by its catalog URL.
	FetchReplay(ctx context.Context, url string) ([]byte, error)
}

// Registry manages the available catalog sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register initializes a source and adds it to the registry.
func (r *Registry) Register(source Source, config map[string]any) error {
	if err := source.Init(config); err != nil {
		return fmt.Errorf("failed to init source %s: %w", source.Name(), err)
	}
	r.sources[source.Name()] = source
	return nil
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	source, ok := r.sources[name]
	return source, ok
}

// Names returns all registered source names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}
