// collectors/collector.go
package collectors

import (
	"context"
	"fmt"
	"sort"

	"github.com/Themichaelreimer/medistat/models"
)

// Collector is one data-source pipeline. Extract fetches raw data into the
// datalake and reports whether anything new was found; Transform turns raw
// records into clean datums and returns how many it produced. Transform
// with a nil records slice processes everything unprocessed for the
// collector's source.
type Collector interface {
	Name() string
	Extract(ctx context.Context) (bool, error)
	Transform(ctx context.Context, records []models.RawRecord) (int, error)
}

// Registry holds the known collectors. Registration is explicit; there is
// no dynamic lookup by module name.
type Registry struct {
	collectors map[string]Collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]Collector)}
}

func (r *Registry) Register(c Collector) {
	r.collectors[c.Name()] = c
}

func (r *Registry) Get(name string) (Collector, error) {
	c, ok := r.collectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown collector %q, supported: %v", name, r.Names())
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
