package entitymanager

import (
	"fmt"
	"sort"

	"jaqpot/backend/go/internal/models"
)

// Registry maps entity kinds to collection names. It is built once and never mutated.
type Registry struct {
	collections map[models.Kind]string
	kinds       map[string]models.Kind
}

// NewRegistry validates the table and returns an immutable registry.
// Collection names must be non-empty and unique.
func NewRegistry(table map[models.Kind]string) (*Registry, error) {
	r := &Registry{
		collections: make(map[models.Kind]string, len(table)),
		kinds:       make(map[string]models.Kind, len(table)),
	}
	for kind, name := range table {
		if kind == "" {
			return nil, fmt.Errorf("registry: empty kind")
		}
		if name == "" {
			return nil, fmt.Errorf("registry: empty collection name for kind %q", kind)
		}
		if other, dup := r.kinds[name]; dup {
			return nil, fmt.Errorf("registry: collection %q used by both %q and %q", name, other, kind)
		}
		r.collections[kind] = name
		r.kinds[name] = kind
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on an invalid table.
func MustRegistry(table map[models.Kind]string) *Registry {
	r, err := NewRegistry(table)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry registers every entity kind of the platform under its own name.
func DefaultRegistry() *Registry {
	return MustRegistry(map[models.Kind]string{
		models.KindTask:         string(models.KindTask),
		models.KindNotification: string(models.KindNotification),
		models.KindErrorReport:  string(models.KindErrorReport),
		models.KindDoa:          string(models.KindDoa),
	})
}

// CollectionName returns the collection backing kind.
func (r *Registry) CollectionName(kind models.Kind) (string, error) {
	name, ok := r.collections[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnregisteredKind, kind)
	}
	return name, nil
}

// KindFor is the reverse lookup of CollectionName.
func (r *Registry) KindFor(collection string) (models.Kind, error) {
	kind, ok := r.kinds[collection]
	if !ok {
		return "", fmt.Errorf("%w: no kind for collection %q", ErrUnregisteredKind, collection)
	}
	return kind, nil
}

// Kinds lists registered kinds in lexical order.
func (r *Registry) Kinds() []models.Kind {
	out := make([]models.Kind, 0, len(r.collections))
	for k := range r.collections {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
