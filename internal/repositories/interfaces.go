package repositories

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ProductRepository reads the product catalog in its stored order.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// HealthRepository probes external dependencies for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsUnavailable() bool
}
