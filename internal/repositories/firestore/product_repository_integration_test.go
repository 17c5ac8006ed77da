//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

func TestProductRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "storefront-test",
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close() })

	collection := fmt.Sprintf("products-%d", time.Now().UnixNano())
	repo, err := NewProductRepository(provider, collection)
	if err != nil {
		t.Fatalf("NewProductRepository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	empty, err := repo.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts on empty collection: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty collection, got %d", len(empty))
	}

	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []domain.Product{
		{ID: "b", Name: "Cup", Price: 800, Category: "食器", CreatedAt: created},
		{ID: "a", Name: "Tea", Price: 1200, Category: "食品", Images: []string{"/img/tea.png"}, CreatedAt: created.Add(time.Hour)},
	} {
		if err := repo.SaveProduct(ctx, p); err != nil {
			t.Fatalf("SaveProduct %s: %v", p.ID, err)
		}
	}

	products, err := repo.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 2 || products[0].ID != "a" || products[1].ID != "b" {
		t.Fatalf("expected products ordered by id, got %#v", products)
	}
	if products[0].Images[0] != "/img/tea.png" || !products[1].CreatedAt.Equal(created) {
		t.Fatalf("unexpected decoded fields %#v", products)
	}
}
