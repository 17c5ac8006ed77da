// Command seedcatalog writes the bundled product snapshot into the Firestore catalog collection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/observability"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/snapshot"
)

type productWriter interface {
	SaveProduct(ctx context.Context, product domain.Product) error
}

func main() {
	var (
		source  string
		dryRun  bool
		timeout time.Duration
	)
	flag.StringVar(&source, "file", "", "products YAML file (defaults to the bundled snapshot)")
	flag.BoolVar(&dryRun, "dry-run", false, "log products without writing them")
	flag.DurationVar(&timeout, "timeout", time.Minute, "overall write timeout")
	flag.Parse()

	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("seedcatalog")

	catalog, err := loadSnapshot(source)
	if err != nil {
		logger.Fatal("failed to load products", zap.String("file", source), zap.Error(err))
	}
	products := catalog.Products()

	if dryRun {
		for _, p := range products {
			logger.Info("product", zap.String("id", p.ID), zap.String("name", p.Name), zap.Int64("price", p.Price))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(timeout))
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	if !provider.Configured() {
		logger.Fatal("firestore project not configured; set API_FIRESTORE_PROJECT_ID or API_FIREBASE_PROJECT_ID")
	}

	repo, err := firestoreRepo.NewProductRepository(provider, cfg.Catalog.Collection)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	written, err := seedProducts(ctx, repo, products)
	if err != nil {
		logger.Fatal("seeding stopped", zap.Int("written", written), zap.Error(err))
	}
	logger.Info("catalog seeded", zap.Int("products", written), zap.String("collection", cfg.Catalog.Collection))
}

func loadSnapshot(path string) (*snapshot.ProductRepository, error) {
	if path == "" {
		return snapshot.NewBundled()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return snapshot.Parse(data)
}

// seedProducts writes products in order and stops at the first failure.
func seedProducts(ctx context.Context, repo productWriter, products []domain.Product) (int, error) {
	if repo == nil {
		return 0, errors.New("seedcatalog: product writer is required")
	}
	for i, p := range products {
		if err := repo.SaveProduct(ctx, p); err != nil {
			return i, fmt.Errorf("save product %s: %w", p.ID, err)
		}
	}
	return len(products), nil
}
