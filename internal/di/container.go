// Package di provides a minimal token-keyed dependency injection container
// used to wire bounded-context modules into the Monolith.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry exposes read access to registered services by token name.
type ServiceRegistry interface {
	Get(name string) interface{}
}

// Container additionally allows registering instances and lazy factories.
type Container interface {
	ServiceRegistry
	Register(name string, instance interface{})
	RegisterFactory(name string, factory func(ServiceRegistry) interface{})
}

type container struct {
	mu        sync.RWMutex
	instances map[string]interface{}
	factories map[string]func(ServiceRegistry) interface{}
	once      map[string]*sync.Once
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		instances: make(map[string]interface{}),
		factories: make(map[string]func(ServiceRegistry) interface{}),
		once:      make(map[string]*sync.Once),
	}
}

func (c *container) Register(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[name] = instance
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
	c.once[name] = &sync.Once{}
}

func (c *container) Get(name string) interface{} {
	c.mu.RLock()
	if inst, ok := c.instances[name]; ok {
		c.mu.RUnlock()
		return inst
	}
	factory, ok := c.factories[name]
	once := c.once[name]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: no service registered for token %q", name))
	}

	once.Do(func() {
		instance := factory(c)
		c.mu.Lock()
		c.instances[name] = instance
		c.mu.Unlock()
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instances[name]
}

// RegisterToken registers a lazily-constructed, type-safe service. The
// factory runs at most once, the first time the token is resolved.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	c.RegisterFactory(token, func(sr ServiceRegistry) interface{} {
		return factory(sr)
	})
}

// Get resolves a token to its concrete type, panicking on a type mismatch
// or an unknown token — both are wiring bugs caught at startup.
func Get[T any](sr ServiceRegistry, token string) T {
	v := sr.Get(token)
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q is not of the expected type", token))
	}
	return t
}
