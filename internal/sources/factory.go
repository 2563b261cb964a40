package sources

import (
	"fmt"

	"github.com/stacklok/depsync/internal/config"
)

type defaultDiscovererFactory struct {
	sourceControl Discoverer
	registry      Discoverer
}

var _ DiscovererFactory = (*defaultDiscovererFactory)(nil)

// NewDiscovererFactory creates a factory serving the given discoverers.
// A nil discoverer makes its kind unsupported.
func NewDiscovererFactory(sourceControl, registry Discoverer) DiscovererFactory {
	return &defaultDiscovererFactory{
		sourceControl: sourceControl,
		registry:      registry,
	}
}

// CreateDiscoverer returns the discoverer for the given kind
func (f *defaultDiscovererFactory) CreateDiscoverer(kind string) (Discoverer, error) {
	var d Discoverer
	switch kind {
	case config.KindSourceControl:
		d = f.sourceControl
	case config.KindRegistry:
		d = f.registry
	}
	if d == nil {
		return nil, fmt.Errorf("unsupported repository kind: %s", kind)
	}
	return d, nil
}
