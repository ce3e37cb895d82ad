// Package readiness implements a minimal health check for use as a k8s readiness probe. A registry reports ready once
// every registered component has been marked ready; it never goes back to not ready, so it is not meant for monitoring.
package readiness

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

type Component string

// Registry tracks the readiness of a set of components. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu         sync.Mutex
	components map[Component]bool
}

func NewRegistry() *Registry {
	return &Registry{components: make(map[Component]bool)}
}

// Register adds component as not ready. Registering the same component twice is an error.
func (r *Registry) Register(component Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[component]; ok {
		return fmt.Errorf("readiness component %q already registered", component)
	}
	r.components[component] = false
	return nil
}

// SetReady marks component ready, registering it if needed.
func (r *Registry) SetReady(component Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[component] = true
}

// Ready reports whether every registered component is ready.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ok := range r.components {
		if !ok {
			return false
		}
	}
	return true
}

// ServeHTTP returns 200 OK if all components are ready, or 412 Precondition Failed otherwise. For operator
// convenience, the component states are returned as plain text (not meant for machine consumption!).
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := new(bytes.Buffer)
	resp.WriteString("[not suitable for monitoring - do not parse]\n\n")
	resp.WriteString("[these values update AT STARTUP ONLY]\n\n")

	r.mu.Lock()
	names := make([]string, 0, len(r.components))
	for k := range r.components {
		names = append(names, string(k))
	}
	sort.Strings(names)
	ready := true
	for _, k := range names {
		v := r.components[Component(k)]
		fmt.Fprintf(resp, "%s\t%v\n", k, v)
		if !v {
			ready = false
		}
	}
	r.mu.Unlock()

	if !ready {
		w.WriteHeader(http.StatusPreconditionFailed)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = resp.WriteTo(w)
}
