package maskfx

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownFilter is returned by Registry.New for unregistered names.
	ErrUnknownFilter = errors.New("maskfx: unknown filter")
	// ErrDuplicateFilter is returned by Registry.Register when a name is taken.
	ErrDuplicateFilter = errors.New("maskfx: filter already registered")
)

// FilterArgs carries construction parameters for registry factories.
// Factories ignore fields they do not use.
type FilterArgs struct {
	Texture *Texture
	Offset  Vec2
	Flipped float64
}

// Factory builds a filter from args.
type Factory func(args FilterArgs) (Filter, error)

// Registry maps filter type names to factories. A Registry is passed
// explicitly to whatever builds pipelines; there is no package-level
// instance.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateFilter, name)
	}
	r.factories[name] = f
	return nil
}

// New builds the filter registered under name.
func (r *Registry) New(name string, args FilterArgs) (Filter, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return f(args)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins registers the filters provided by this package:
// "AlphaMask".
func RegisterBuiltins(r *Registry) error {
	return r.Register("AlphaMask", func(args FilterArgs) (Filter, error) {
		if args.Texture == nil {
			return nil, errors.New("maskfx: AlphaMask requires a texture")
		}
		return NewAlphaMaskFilter(args.Texture, args.Offset, args.Flipped), nil
	})
}
