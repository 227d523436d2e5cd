package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry stores plugin descriptors indexed by id, namespace and base path.
// All three identities are unique across registered plugins.
type Registry struct {
	mu          sync.RWMutex
	byID        map[string]*Descriptor
	byNamespace map[string]*Descriptor
	byBasePath  map[string]*Descriptor
	log         zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byID:        make(map[string]*Descriptor),
		byNamespace: make(map[string]*Descriptor),
		byBasePath:  make(map[string]*Descriptor),
		log:         log.With().Str("component", "registry").Logger(),
	}
}

// Register validates the descriptor, rejects identity collisions, runs the
// plugin's OnInitialize hook and only then stores it. A failing hook rolls
// the registration back completely.
func (reg *Registry) Register(ctx context.Context, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.byID[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	if _, ok := reg.byNamespace[d.Namespace]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNamespace, d.Namespace)
	}
	if _, ok := reg.byBasePath[d.BasePath]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBasePath, d.BasePath)
	}

	if d.OnInitialize != nil {
		if err := d.OnInitialize(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
		}
	}

	reg.byID[d.ID] = d
	reg.byNamespace[d.Namespace] = d
	reg.byBasePath[d.BasePath] = d
	reg.log.Info().Str("plugin", d.ID).Str("version", d.Version).Msg("plugin registered")
	return nil
}

// Unregister removes the plugin from all three indices. A failing OnCleanup
// hook is logged but never blocks removal.
func (reg *Registry) Unregister(ctx context.Context, id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	d, ok := reg.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	if d.OnCleanup != nil {
		if err := d.OnCleanup(ctx); err != nil {
			reg.log.Error().Err(err).Str("plugin", id).Msg("cleanup hook failed")
		}
	}
	delete(reg.byID, d.ID)
	delete(reg.byNamespace, d.Namespace)
	delete(reg.byBasePath, d.BasePath)
	reg.log.Info().Str("plugin", id).Msg("plugin unregistered")
	return nil
}

func (reg *Registry) ByID(id string) (*Descriptor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	d, ok := reg.byID[id]
	return d, ok
}

func (reg *Registry) ByNamespace(ns string) (*Descriptor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	d, ok := reg.byNamespace[ns]
	return d, ok
}

func (reg *Registry) ByBasePath(bp string) (*Descriptor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	d, ok := reg.byBasePath[bp]
	return d, ok
}

// All returns the registered descriptors in unspecified order.
func (reg *Registry) All() []*Descriptor {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Descriptor, 0, len(reg.byID))
	for _, d := range reg.byID {
		out = append(out, d)
	}
	return out
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.byID)
}

// DestroyAll unregisters every plugin, collecting failures instead of
// stopping on the first. Only used at process shutdown.
func (reg *Registry) DestroyAll(ctx context.Context) []error {
	var errs []error
	for _, d := range reg.All() {
		if err := reg.Unregister(ctx, d.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
