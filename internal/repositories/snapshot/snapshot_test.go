package snapshot

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBundledSnapshotParses(t *testing.T) {
	repo, err := NewBundled()
	if err != nil {
		t.Fatalf("NewBundled: %v", err)
	}
	products, err := repo.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected bundled products")
	}
	for _, p := range products {
		if p.ID == "" || p.Name == "" || p.Category == "" {
			t.Fatalf("incomplete product %#v", p)
		}
		if p.Price <= 0 {
			t.Fatalf("product %s has non-positive price", p.ID)
		}
		if p.CreatedAt.IsZero() {
			t.Fatalf("product %s missing created_at", p.ID)
		}
	}
}

func TestParseConvertsTimestamps(t *testing.T) {
	repo, err := Parse([]byte(`
products:
  - id: a
    name: " Cup "
    price: 500
    category: 食器
    created_at: 2024-03-01T09:00:00+09:00
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := repo.Products()[0]
	if got.Name != "Cup" {
		t.Fatalf("expected trimmed name, got %q", got.Name)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !got.CreatedAt.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got.CreatedAt)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"empty":        "products: []",
		"missing id":   "products:\n  - name: x\n    price: 1",
		"duplicate id": "products:\n  - id: a\n  - id: a",
		"bad time":     "products:\n  - id: a\n    created_at: yesterday",
		"bad yaml":     "products: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil || !strings.HasPrefix(err.Error(), "snapshot:") {
				t.Fatalf("expected snapshot error, got %v", err)
			}
		})
	}
}

func TestProductsReturnsCopies(t *testing.T) {
	repo := MustBundled()
	first := repo.Products()
	first[0].Name = "changed"
	first[0].Images[0] = "changed"

	second := repo.Products()
	if second[0].Name == "changed" || second[0].Images[0] == "changed" {
		t.Fatal("expected snapshot to be immutable through returned slices")
	}
}
