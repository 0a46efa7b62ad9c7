// Package di provides a small lazy dependency injection container.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by name.
type ServiceRegistry interface {
	Get(name string) any
}

// Container registers services and factories and resolves them.
type Container interface {
	ServiceRegistry
	// Register stores a ready-made instance under name.
	Register(name string, service any)
	// RegisterFactory stores a factory invoked once, on first Get.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
	// Has reports whether name is registered.
	Has(name string) bool
}

type entry struct {
	once     sync.Once
	factory  func(ServiceRegistry) any
	instance any
}

type container struct {
	mu       sync.RWMutex
	services map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services: make(map[string]*entry),
	}
}

func (c *container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{instance: service}
	e.once.Do(func() {})
	c.services[name] = e
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.services[name] = &entry{factory: factory}
}

func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.services[name]
	return ok
}

// Get resolves name, building it on first access. It panics on unknown
// names: a missing registration is a wiring bug at startup.
func (c *container) Get(name string) any {
	c.mu.RLock()
	e, ok := c.services[name]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}

	e.once.Do(func() {
		e.instance = e.factory(c)
	})

	return e.instance
}
