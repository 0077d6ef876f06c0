// Package inspect routes data resources to the format-specific inspector
// registered for their data type.
package inspect

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Inspector extracts spatial metadata from one data format and optionally
// persists the data. Implementations mutate and return res.
type Inspector interface {
	Inspect(ctx context.Context, res *ingest.DataResource, mode ingest.PersistMode) (*ingest.DataResource, error)
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(ctx context.Context, res *ingest.DataResource, mode ingest.PersistMode) (*ingest.DataResource, error)

// Inspect implements Inspector.
func (f InspectorFunc) Inspect(
	ctx context.Context,
	res *ingest.DataResource,
	mode ingest.PersistMode,
) (*ingest.DataResource, error) {
	return f(ctx, res, mode)
}

// Dispatcher maps data type tags to inspectors.
type Dispatcher struct {
	mu         sync.RWMutex
	inspectors map[string]Inspector
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{inspectors: make(map[string]Inspector)}
}

// Register binds an inspector to a data type tag.
func (d *Dispatcher) Register(tag string, inspector Inspector) error {
	if tag == "" {
		return fmt.Errorf("data type tag is required")
	}
	if inspector == nil {
		return fmt.Errorf("inspector for %q is nil", tag)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inspectors[tag]; exists {
		return fmt.Errorf("inspector already registered for %q", tag)
	}
	d.inspectors[tag] = inspector
	return nil
}

// Tags lists the registered data type tags in sorted order.
func (d *Dispatcher) Tags() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tags := make([]string, 0, len(d.inspectors))
	for tag := range d.inspectors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Dispatch hands res to the inspector registered for its data type.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	res *ingest.DataResource,
	mode ingest.PersistMode,
) (*ingest.DataResource, error) {
	if res == nil || res.DataType == nil {
		return nil, ingest.Unsupported("")
	}
	tag := res.DataType.Type()
	d.mu.RLock()
	inspector, ok := d.inspectors[tag]
	d.mu.RUnlock()
	if !ok {
		return nil, ingest.Unsupported(tag)
	}
	return inspector.Inspect(ctx, res, mode)
}
