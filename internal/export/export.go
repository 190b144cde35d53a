// Package export serializes a completed task's product set into the
// supported output formats. Exporters are pure: the same product set always
// produces byte-identical output.
package export

import (
	"sort"

	"github.com/parselab/shop-parser/internal/parser"
)

// Exporter renders one output format.
type Exporter interface {
	Format() string
	ContentType() string
	Export(task parser.Task, products []parser.Product) ([]byte, error)
}

// Registry maps format names to exporters.
type Registry struct {
	exporters map[string]Exporter
}

// NewRegistry wires up all built-in exporters.
func NewRegistry() *Registry {
	r := &Registry{exporters: make(map[string]Exporter)}
	for _, e := range []Exporter{
		&JSONExporter{},
		&CSVExporter{},
		&SQLExporter{Table: "products", BatchSize: 100},
		&WXRExporter{},
		&JSONLDExporter{},
	} {
		r.exporters[e.Format()] = e
	}
	return r
}

// Export renders products in the requested format. Unknown formats are
// rejected synchronously with an ExportError.
func (r *Registry) Export(format string, task parser.Task, products []parser.Product) ([]byte, string, error) {
	exporter, ok := r.exporters[format]
	if !ok {
		return nil, "", &parser.ExportError{Format: format}
	}
	data, err := exporter.Export(task, products)
	if err != nil {
		return nil, "", err
	}
	return data, exporter.ContentType(), nil
}

// Formats lists the supported format names, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// sortedKeys returns map keys in a stable order for deterministic output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
