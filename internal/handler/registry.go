// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handler

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registry is the process-wide catalog of handlers, indexed by name.
// It is read-mostly: registration happens at startup, toggles are rare,
// and lookups during dispatch tolerate stale snapshots.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under its name. A duplicate name overwrites the
// prior registration with a warning.
func (r *Registry) Register(h Handler) {
	name := h.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		log.Warnf("Handler '%s' already registered. Overwriting.", name)
	} else {
		r.order = append(r.order, name)
	}
	r.handlers[name] = h
	log.Infof("Registered handler: %s", name)
}

// Unregister removes a handler by name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return
	}
	delete(r.handlers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Infof("Unregistered handler: %s", name)
}

// Get returns the handler registered under name, or false when absent.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

// ListAll returns every registered handler in registration order.
func (r *Registry) ListAll() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.handlers[name])
	}
	return out
}

// ListEnabled returns the enabled handlers in registration order.
func (r *Registry) ListEnabled() []Handler {
	var out []Handler
	for _, h := range r.ListAll() {
		if h.Enabled() {
			out = append(out, h)
		}
	}
	return out
}

// FindByCapability returns the enabled handlers whose capability list
// contains keyword, compared case-insensitively.
func (r *Registry) FindByCapability(keyword string) []Handler {
	keyword = strings.ToLower(keyword)

	var out []Handler
	for _, h := range r.ListAll() {
		if !h.Enabled() {
			continue
		}
		for _, cap := range h.Capabilities() {
			if strings.ToLower(cap) == keyword {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// Info describes one registered handler for introspection surfaces.
type Info struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Capabilities        []string `json:"capabilities"`
	Enabled             bool     `json:"enabled"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// InfoAll returns metadata for every registered handler.
func (r *Registry) InfoAll() []Info {
	handlers := r.ListAll()
	out := make([]Info, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, Info{
			Name:                h.Name(),
			Description:         h.Description(),
			Capabilities:        h.Capabilities(),
			Enabled:             h.Enabled(),
			ConfidenceThreshold: h.ConfidenceThreshold(),
		})
	}
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all registrations. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Handler)
	r.order = nil
}
