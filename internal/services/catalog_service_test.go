package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type stubProductRepository struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
	block    chan struct{}
}

func (s *stubProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return append([]domain.Product(nil), s.products...), s.err
}

func (s *stubProductRepository) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var fallbackProducts = []domain.Product{
	{ID: "f1", Name: "Fallback mug", Price: 1000, Category: "食器"},
	{ID: "f2", Name: "Fallback towel", Price: 2000, Category: "生活雑貨"},
}

func productIDs(products []Product) string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return strings.Join(ids, ",")
}

func newTestCatalogService(t *testing.T, remote *stubProductRepository, logger *zap.Logger) CatalogService {
	t.Helper()
	deps := CatalogServiceDeps{
		Fallback: &stubProductRepository{products: fallbackProducts},
		Logger:   logger,
	}
	if remote != nil {
		deps.Catalog = remote
	}
	svc, err := NewCatalogService(deps)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestNewCatalogServiceRequiresFallback(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{Catalog: &stubProductRepository{}}); err == nil {
		t.Fatal("expected error without fallback repository")
	}
}

func TestProductListingViewUsesRemoteProducts(t *testing.T) {
	remote := &stubProductRepository{products: []domain.Product{{ID: "r1", Name: "Remote", Price: 500, Category: "食品"}}}
	view, err := newTestCatalogService(t, remote, nil).LoadListing(context.Background())
	if err != nil {
		t.Fatalf("LoadListing: %v", err)
	}

	snap := view.Snapshot()
	if snap.State != ListingReady || snap.Source != ProductSourceRemote || snap.Warning != "" {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	if len(snap.Products) != 1 || snap.Products[0].ID != "r1" {
		t.Fatalf("expected remote working set, got %#v", snap.Products)
	}
}

func TestProductListingViewFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		remote  *stubProductRepository
		warning string
	}{
		{name: "empty catalog", remote: &stubProductRepository{}, warning: WarningCatalogEmpty},
		{name: "catalog error", remote: &stubProductRepository{err: errors.New("unavailable")}, warning: WarningCatalogFailed},
		{name: "catalog not configured", remote: nil, warning: WarningCatalogFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			view, err := newTestCatalogService(t, tc.remote, zap.New(core)).LoadListing(context.Background())
			if err != nil {
				t.Fatalf("LoadListing: %v", err)
			}
			snap := view.Snapshot()
			if snap.State != ListingReadyWithFallback || snap.Source != ProductSourceFallback {
				t.Fatalf("expected fallback state, got %#v", snap)
			}
			if snap.Warning != tc.warning {
				t.Fatalf("expected warning %q, got %q", tc.warning, snap.Warning)
			}
			if !reflect.DeepEqual(snap.Products, fallbackProducts) {
				t.Fatalf("expected fallback products, got %#v", snap.Products)
			}
			if logs.Len() == 0 {
				t.Fatal("expected fallback to be logged")
			}
		})
	}
}

type stubRepositoryError struct {
	unavailable bool
}

func (e stubRepositoryError) Error() string       { return "catalog backend failure" }
func (e stubRepositoryError) IsNotFound() bool    { return false }
func (e stubRepositoryError) IsUnavailable() bool { return e.unavailable }

func TestProductListingViewLogsRepositoryErrorClass(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	remote := &stubProductRepository{err: stubRepositoryError{unavailable: true}}

	if _, err := newTestCatalogService(t, remote, zap.New(core)).LoadListing(context.Background()); err != nil {
		t.Fatalf("LoadListing: %v", err)
	}

	entries := logs.FilterMessage("catalog read failed; serving bundled products").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["unavailable"] != true {
		t.Fatalf("expected unavailable=true, got %v", entries[0].ContextMap())
	}
}

func TestProductListingViewLoadsOnce(t *testing.T) {
	remote := &stubProductRepository{products: []domain.Product{
		{ID: "r1", Price: 1, Category: "茶器"},
		{ID: "r2", Price: 30, Category: "食品"},
		{ID: "r3", Price: 20, Category: "茶器"},
	}}
	svc := newTestCatalogService(t, remote, nil)
	view := svc.NewListingView()
	if view.State() != ListingIdle {
		t.Fatalf("expected idle view, got %s", view.State())
	}

	view.Load(context.Background())
	view.Load(context.Background())
	if remote.callCount() != 1 {
		t.Fatalf("expected exactly one catalog read, got %d", remote.callCount())
	}

	visible := view.Visible("", domain.ProductSortPriceDesc)
	if got := productIDs(visible); got != "r2,r3,r1" {
		t.Fatalf("expected price-descending order r2,r3,r1, got %s", got)
	}
	filtered := view.Visible("茶器", domain.ProductSortPriceAsc)
	if got := productIDs(filtered); got != "r1,r3" {
		t.Fatalf("expected category filter r1,r3, got %s", got)
	}
	if got := strings.Join(view.Categories(), ","); got != "茶器,食品" {
		t.Fatalf("expected categories in first-appearance order, got %s", got)
	}
	if remote.callCount() != 1 {
		t.Fatal("filtering and sorting must not re-read the catalog")
	}
}

func TestProductListingViewIgnoresLoadAfterClose(t *testing.T) {
	remote := &stubProductRepository{
		products: []domain.Product{{ID: "r1", Price: 1}},
		block:    make(chan struct{}),
	}
	view := newTestCatalogService(t, remote, nil).NewListingView()

	done := make(chan struct{})
	go func() {
		view.Load(context.Background())
		close(done)
	}()

	deadline := time.After(time.Second)
	for remote.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("catalog read did not start")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if view.State() != ListingLoading {
		t.Fatalf("expected loading state, got %s", view.State())
	}

	view.Close()
	close(remote.block)
	<-done

	snap := view.Snapshot()
	if snap.State != ListingLoading || len(snap.Products) != 0 {
		t.Fatalf("expected state to be frozen after close, got %#v", snap)
	}
}

func TestProductListingViewAppliesCatalogTimeout(t *testing.T) {
	remote := &deadlineRepository{}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Catalog:  remote,
		Fallback: &stubProductRepository{products: fallbackProducts},
		Timeout:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	view, _ := svc.LoadListing(context.Background())
	if snap := view.Snapshot(); snap.Warning != WarningCatalogFailed {
		t.Fatalf("expected timeout to fall back with failure warning, got %#v", snap)
	}
}

type deadlineRepository struct{}

func (deadlineRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSortProducts(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: "a", Price: 300, CreatedAt: base},
		{ID: "b", Price: 100, CreatedAt: base.Add(48 * time.Hour)},
		{ID: "c", Price: 200, CreatedAt: base.Add(24 * time.Hour)},
	}

	tests := []struct {
		order domain.ProductSort
		want  []string
	}{
		{order: domain.ProductSortPriceAsc, want: []string{"b", "c", "a"}},
		{order: domain.ProductSortPriceDesc, want: []string{"a", "c", "b"}},
		{order: domain.ProductSortNewest, want: []string{"b", "c", "a"}},
		{order: domain.ProductSortDefault, want: []string{"a", "b", "c"}},
		{order: domain.ParseProductSort("bogus"), want: []string{"a", "b", "c"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.order), func(t *testing.T) {
			got := SortProducts(products, tc.order)
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("order %s: got %v, want %v", tc.order, ids, tc.want)
			}
		})
	}
	if products[0].ID != "a" || products[1].ID != "b" {
		t.Fatal("SortProducts must not reorder its input")
	}
}

func TestFilterAndCategories(t *testing.T) {
	products := []domain.Product{
		{ID: "1", Category: "食器"},
		{ID: "2", Category: "食品"},
		{ID: "3", Category: "食器"},
		{ID: "4"},
	}
	if got := ProductCategories(products); !reflect.DeepEqual(got, []string{"食器", "食品"}) {
		t.Fatalf("unexpected categories %v", got)
	}
	if got := FilterProducts(products, "食器"); len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected filter result %#v", got)
	}
	if got := FilterProducts(products, ""); len(got) != 4 {
		t.Fatalf("expected empty category to keep all, got %d", len(got))
	}
	if got := FilterProducts(products, "家具"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}
