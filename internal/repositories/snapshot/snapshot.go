// Package snapshot serves the bundled product catalog used when the remote catalog cannot.
package snapshot

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

//go:embed products.yaml
var bundledProducts []byte

type snapshotFile struct {
	Products []snapshotProduct `yaml:"products"`
}

type snapshotProduct struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       int64    `yaml:"price"`
	Category    string   `yaml:"category"`
	Images      []string `yaml:"images"`
	CreatedAt   string   `yaml:"created_at"`
}

// ProductRepository returns a fixed product list. Callers receive copies.
type ProductRepository struct {
	products []domain.Product
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewBundled parses the embedded snapshot.
func NewBundled() (*ProductRepository, error) {
	return Parse(bundledProducts)
}

// MustBundled panics when the embedded snapshot is malformed.
func MustBundled() *ProductRepository {
	repo, err := NewBundled()
	if err != nil {
		panic(err)
	}
	return repo
}

// Parse decodes a YAML snapshot document.
func Parse(data []byte) (*ProductRepository, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("snapshot: decode products: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, errors.New("snapshot: no products defined")
	}

	products := make([]domain.Product, 0, len(file.Products))
	seen := make(map[string]struct{}, len(file.Products))
	for i, p := range file.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("snapshot: product %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("snapshot: duplicate product id %q", id)
		}
		seen[id] = struct{}{}

		var createdAt time.Time
		if raw := strings.TrimSpace(p.CreatedAt); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("snapshot: product %s: created_at: %w", id, err)
			}
			createdAt = parsed.UTC()
		}

		products = append(products, domain.Product{
			ID:          id,
			Name:        strings.TrimSpace(p.Name),
			Description: strings.TrimSpace(p.Description),
			Price:       p.Price,
			Category:    strings.TrimSpace(p.Category),
			Images:      append([]string(nil), p.Images...),
			CreatedAt:   createdAt,
		})
	}
	return &ProductRepository{products: products}, nil
}

// ListProducts returns the snapshot in file order.
func (r *ProductRepository) ListProducts(context.Context) ([]domain.Product, error) {
	return r.Products(), nil
}

// Products returns a copy of the snapshot.
func (r *ProductRepository) Products() []domain.Product {
	if r == nil {
		return nil
	}
	out := make([]domain.Product, len(r.products))
	for i, p := range r.products {
		p.Images = append([]string(nil), p.Images...)
		out[i] = p
	}
	return out
}
