package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/repositories"
)

const defaultCatalogTimeout = 5 * time.Second

// CatalogServiceDeps wires the catalog sources. Catalog may be nil when no remote catalog is
// configured; Fallback is required.
type CatalogServiceDeps struct {
	Catalog  repositories.ProductRepository
	Fallback repositories.ProductRepository
	Timeout  time.Duration
	Logger   *zap.Logger
}

type catalogService struct {
	catalog  repositories.ProductRepository
	fallback repositories.ProductRepository
	timeout  time.Duration
	logger   *zap.Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the product listing service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Fallback == nil {
		return nil, errors.New("catalog service: fallback repository is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		catalog:  deps.Catalog,
		fallback: deps.Fallback,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// NewListingView returns an idle view bound to the service's sources.
func (s *catalogService) NewListingView() *ProductListingView {
	return &ProductListingView{
		catalog:  s.catalog,
		fallback: s.fallback,
		timeout:  s.timeout,
		logger:   s.logger,
		state:    ListingIdle,
	}
}

// LoadListing creates a view and performs its single catalog read.
func (s *catalogService) LoadListing(ctx context.Context) (*ProductListingView, error) {
	if ctx == nil {
		return nil, errors.New("catalog service: context is required")
	}
	view := s.NewListingView()
	view.Load(ctx)
	return view, nil
}
