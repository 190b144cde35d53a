package memory

import (
	"context"
	"sync"

	"github.com/parselab/shop-parser/internal/parser"
)

// ProductStore keeps products in insertion order, guarded by a mutex.
type ProductStore struct {
	mu       sync.RWMutex
	products []parser.Product
	tasks    parser.TaskStore
}

// NewProductStore returns an empty in-memory product store. The task store
// is consulted only for the Stats total.
func NewProductStore(tasks parser.TaskStore) *ProductStore {
	return &ProductStore{tasks: tasks}
}

// InsertProduct implements parser.ProductStore.
func (s *ProductStore) InsertProduct(_ context.Context, product parser.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, cloneProduct(product))
	return nil
}

// ListProducts implements parser.ProductStore, in insertion order.
func (s *ProductStore) ListProducts(_ context.Context, taskID string) ([]parser.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []parser.Product
	for _, p := range s.products {
		if p.TaskID == taskID {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

// Stats implements parser.ProductStore.
func (s *ProductStore) Stats(ctx context.Context) (parser.Stats, error) {
	s.mu.RLock()
	sites := make(map[string]struct{})
	for _, p := range s.products {
		sites[p.SourceSite] = struct{}{}
	}
	stats := parser.Stats{
		TotalProducts: int64(len(s.products)),
		TotalSites:    int64(len(sites)),
	}
	s.mu.RUnlock()

	if s.tasks != nil {
		tasks, err := s.tasks.ListTasks(ctx, nil, 1<<30)
		if err != nil {
			return parser.Stats{}, err
		}
		stats.TotalTasks = int64(len(tasks))
	}
	return stats, nil
}

func cloneProduct(p parser.Product) parser.Product {
	if p.Breadcrumbs != nil {
		p.Breadcrumbs = append([]string(nil), p.Breadcrumbs...)
	}
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	if p.Attributes != nil {
		attrs := make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = v
		}
		p.Attributes = attrs
	}
	if p.Price != nil {
		price := *p.Price
		p.Price = &price
	}
	if p.OldPrice != nil {
		v := *p.OldPrice
		p.OldPrice = &v
	}
	if p.DiscountPercent != nil {
		v := *p.DiscountPercent
		p.DiscountPercent = &v
	}
	return p
}
