package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// ListingState is the lifecycle state of a ProductListingView.
type ListingState string

const (
	ListingIdle              ListingState = "idle"
	ListingLoading           ListingState = "loading"
	ListingReady             ListingState = "ready"
	ListingReadyWithFallback ListingState = "ready_with_fallback"
)

// ProductSource names where the working set came from.
type ProductSource string

const (
	ProductSourceRemote   ProductSource = "remote"
	ProductSourceFallback ProductSource = "fallback"
)

const (
	// WarningCatalogEmpty is shown when the remote catalog answered with no products.
	WarningCatalogEmpty = "商品データの取得に問題がありました。"
	// WarningCatalogFailed is shown when the remote catalog could not be read.
	WarningCatalogFailed = "商品データの取得中にエラーが発生しました。"
)

var errCatalogNotConfigured = errors.New("catalog: remote catalog not configured")

// ProductListingView holds the working set of one listing. Load runs the single catalog read;
// filtering and sorting are derived from the working set on every call.
type ProductListingView struct {
	catalog  repositories.ProductRepository
	fallback repositories.ProductRepository
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	state    ListingState
	source   ProductSource
	warning  string
	products []Product
	closed   bool
}

// ListingSnapshot is a consistent copy of a view's state.
type ListingSnapshot struct {
	State    ListingState
	Source   ProductSource
	Warning  string
	Products []Product
}

// Load reads the remote catalog once. Later calls are no-ops. A read that completes after Close
// leaves the view untouched.
func (v *ProductListingView) Load(ctx context.Context) {
	v.mu.Lock()
	if v.state != ListingIdle || v.closed {
		v.mu.Unlock()
		return
	}
	v.state = ListingLoading
	v.mu.Unlock()

	products, err := v.readRemote(ctx)

	var (
		source  = ProductSourceRemote
		state   = ListingReady
		warning string
	)
	switch {
	case err != nil:
		if errors.Is(err, errCatalogNotConfigured) {
			v.logger.Info("remote catalog not configured; serving bundled products")
		} else {
			fields := []zap.Field{zap.Error(err)}
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) {
				fields = append(fields, zap.Bool("unavailable", repoErr.IsUnavailable()))
			}
			v.logger.Warn("catalog read failed; serving bundled products", fields...)
		}
		warning = WarningCatalogFailed
	case len(products) == 0:
		v.logger.Warn("catalog returned no products; serving bundled products")
		warning = WarningCatalogEmpty
	}
	if warning != "" {
		source = ProductSourceFallback
		state = ListingReadyWithFallback
		products = v.readFallback(ctx)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.products = products
	v.source = source
	v.state = state
	v.warning = warning
}

func (v *ProductListingView) readRemote(ctx context.Context) ([]Product, error) {
	if v.catalog == nil {
		return nil, errCatalogNotConfigured
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	return v.catalog.ListProducts(ctx)
}

func (v *ProductListingView) readFallback(ctx context.Context) []Product {
	if v.fallback == nil {
		return nil
	}
	products, err := v.fallback.ListProducts(ctx)
	if err != nil {
		v.logger.Error("bundled catalog unavailable", zap.Error(err))
		return nil
	}
	return products
}

// Close marks the view as discarded.
func (v *ProductListingView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// State returns the current lifecycle state.
func (v *ProductListingView) State() ListingState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Snapshot copies the current state and working set.
func (v *ProductListingView) Snapshot() ListingSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ListingSnapshot{
		State:    v.state,
		Source:   v.source,
		Warning:  v.warning,
		Products: append([]Product(nil), v.products...),
	}
}

// Categories lists distinct non-empty categories in working-set order.
func (v *ProductListingView) Categories() []string {
	return ProductCategories(v.Snapshot().Products)
}

// Visible filters the working set by exact category (empty selects all) and orders it.
func (v *ProductListingView) Visible(category string, order ProductSort) []Product {
	return SortProducts(FilterProducts(v.Snapshot().Products, category), order)
}

// ProductCategories lists distinct non-empty categories in first-appearance order.
func ProductCategories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	categories := make([]string, 0, len(products))
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	return categories
}

// FilterProducts keeps exact category matches; an empty category keeps everything.
func FilterProducts(products []Product, category string) []Product {
	category = strings.TrimSpace(category)
	if category == "" {
		return append([]Product(nil), products...)
	}
	filtered := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Category == category {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// SortProducts returns a reordered copy. The default order keeps input order; ties keep input order.
func SortProducts(products []Product, order ProductSort) []Product {
	sorted := append([]Product(nil), products...)
	var less func(a, b Product) bool
	switch order {
	case domain.ProductSortPriceAsc:
		less = func(a, b Product) bool { return a.Price < b.Price }
	case domain.ProductSortPriceDesc:
		less = func(a, b Product) bool { return a.Price > b.Price }
	case domain.ProductSortNewest:
		less = func(a, b Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		return sorted
	}
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}
