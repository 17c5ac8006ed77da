package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const defaultProductsCollection = "products"

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	Category    string    `firestore:"category"`
	Images      []string  `firestore:"images,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// ProductRepository reads the catalog collection from Firestore.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository binds the repository to the named collection ("products" when empty).
func NewProductRepository(provider *pfirestore.Provider, collection string) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	name := strings.TrimSpace(collection)
	if name == "" {
		name = defaultProductsCollection
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, name, nil),
	}, nil
}

// ListProducts returns every catalog document ordered by document id.
func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("product repository not initialised")
	}
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProduct(doc))
	}
	return products, nil
}

// SaveProduct upserts one catalog document keyed by the product id.
func (r *ProductRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Set(ctx, strings.TrimSpace(product.ID), encodeProduct(product))
}

func decodeProduct(doc pfirestore.Document[productDocument]) domain.Product {
	createdAt := doc.Data.CreatedAt
	if createdAt.IsZero() {
		createdAt = doc.CreateTime
	}
	return domain.Product{
		ID:          doc.ID,
		Name:        strings.TrimSpace(doc.Data.Name),
		Description: strings.TrimSpace(doc.Data.Description),
		Price:       doc.Data.Price,
		Category:    strings.TrimSpace(doc.Data.Category),
		Images:      append([]string(nil), doc.Data.Images...),
		CreatedAt:   createdAt.UTC(),
	}
}

func encodeProduct(product domain.Product) productDocument {
	return productDocument{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.Category,
		Images:      append([]string(nil), product.Images...),
		CreatedAt:   product.CreatedAt.UTC(),
	}
}
