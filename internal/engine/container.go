package engine

import (
	"fmt"
	"maps"
)

// Provider constructs a container entry on first use.
type Provider func(c *Container) (any, error)

// Container resolves named services for one action.
//
// Resolution order for Get(name): bindings are followed (name → target)
// until a name with no binding; then a stored instance; then a provider,
// whose result is cached. Every action gets its own Container, seeded
// from Config bindings and providers, the action's own Bind/Providers and
// the bus's shared services.
type Container struct {
	bind      map[string]string
	providers map[string]Provider
	instances map[string]any
}

// NewContainer creates a container from bindings and providers.
func NewContainer(bind map[string]string, providers map[string]Provider) *Container {
	c := &Container{
		bind:      make(map[string]string),
		providers: make(map[string]Provider),
		instances: make(map[string]any),
	}
	c.Bind(bind)
	c.AddProviders(providers)
	return c
}

// Bind adds name aliases. Later bindings win.
func (c *Container) Bind(bind map[string]string) {
	maps.Copy(c.bind, bind)
}

// AddProviders adds providers. Later providers win.
func (c *Container) AddProviders(providers map[string]Provider) {
	maps.Copy(c.providers, providers)
}

// Set stores an instance under name.
func (c *Container) Set(name string, v any) {
	c.instances[name] = v
}

// Has reports whether Get(name) can resolve without constructing.
func (c *Container) Has(name string) bool {
	name, err := c.target(name)
	if err != nil {
		return false
	}
	if _, ok := c.instances[name]; ok {
		return true
	}
	_, ok := c.providers[name]
	return ok
}

// Get resolves name.
func (c *Container) Get(name string) (any, error) {
	target, err := c.target(name)
	if err != nil {
		return nil, err
	}
	if v, ok := c.instances[target]; ok {
		return v, nil
	}
	p, ok := c.providers[target]
	if !ok {
		return nil, fmt.Errorf("container: %q is not defined", name)
	}
	v, err := p(c)
	if err != nil {
		return nil, fmt.Errorf("container: provide %q: %w", target, err)
	}
	c.instances[target] = v
	return v, nil
}

// target follows bindings from name, rejecting binding cycles.
func (c *Container) target(name string) (string, error) {
	seen := map[string]bool{name: true}
	for {
		next, ok := c.bind[name]
		if !ok {
			return name, nil
		}
		if seen[next] {
			return "", fmt.Errorf("container: binding cycle at %q", next)
		}
		seen[next] = true
		name = next
	}
}

// Resolve gets name from c and converts it to T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	v, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("container: %q is %T, not %s", name, v, ContractOf[T]())
	}
	return t, nil
}
