package export

import (
	"encoding/json"
	"fmt"

	"github.com/parselab/shop-parser/internal/parser"
)

// JSONExporter renders the full nested product records.
type JSONExporter struct{}

// Format implements Exporter.
func (e *JSONExporter) Format() string { return "json" }

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

type jsonDocument struct {
	TaskID     string            `json:"task_id"`
	URL        string            `json:"url"`
	ParserType parser.ParserType `json:"parser_type"`
	Count      int               `json:"count"`
	Products   []parser.Product  `json:"products"`
}

// Export implements Exporter. encoding/json sorts map keys, so attribute
// maps serialize deterministically.
func (e *JSONExporter) Export(task parser.Task, products []parser.Product) ([]byte, error) {
	doc := jsonDocument{
		TaskID:     task.ID,
		URL:        task.URL,
		ParserType: task.ParserType,
		Count:      len(products),
		Products:   products,
	}
	if doc.Products == nil {
		doc.Products = []parser.Product{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal products: %w", err)
	}
	return append(data, '\n'), nil
}
