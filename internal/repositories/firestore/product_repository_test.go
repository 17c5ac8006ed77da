package firestore

import (
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

func TestDecodeProductFallsBackToCreateTime(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	got := decodeProduct(pfirestore.Document[productDocument]{
		ID:         "p1",
		Data:       productDocument{Name: " Tea ", Price: 1200, Category: "食品", Images: []string{"/a.png"}},
		CreateTime: created,
	})
	if got.ID != "p1" || got.Name != "Tea" || got.Price != 1200 {
		t.Fatalf("unexpected product %#v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected document create time, got %s", got.CreatedAt)
	}
}

func TestEncodeProductRoundTripsFields(t *testing.T) {
	product := domain.Product{
		ID:        "p2",
		Name:      "Cup",
		Price:     800,
		Category:  "食器",
		Images:    []string{"https://cdn.example/cup.png"},
		CreatedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600)),
	}
	doc := encodeProduct(product)
	if doc.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
	back := decodeProduct(pfirestore.Document[productDocument]{ID: product.ID, Data: doc})
	if back.Name != product.Name || back.Category != product.Category || !back.CreatedAt.Equal(product.CreatedAt) {
		t.Fatalf("unexpected decoded product %#v", back)
	}
}

func TestNewProductRepositoryRequiresProvider(t *testing.T) {
	if _, err := NewProductRepository(nil, "products"); err == nil {
		t.Fatal("expected error without provider")
	}
}
