package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// ProductHandlers serves the public product listing.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs product listing handlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers product endpoints under the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
}

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
	CreatedAt   string   `json:"createdAt,omitempty"`
}

type productListResponse struct {
	Products         []productPayload `json:"products"`
	Categories       []string         `json:"categories"`
	SelectedCategory string           `json:"selectedCategory"`
	Sort             string           `json:"sort"`
	Source           string           `json:"source"`
	Warning          string           `json:"warning,omitempty"`
	State            string           `json:"state"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	category := strings.TrimSpace(query.Get("category"))
	order := domain.ParseProductSort(query.Get("sort"))

	view, err := h.catalog.LoadListing(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	defer view.Close()

	snap := view.Snapshot()
	visible := view.Visible(category, order)

	resp := productListResponse{
		Products:         make([]productPayload, 0, len(visible)),
		Categories:       view.Categories(),
		SelectedCategory: category,
		Sort:             string(order),
		Source:           string(snap.Source),
		Warning:          snap.Warning,
		State:            string(snap.State),
	}
	for _, p := range visible {
		resp.Products = append(resp.Products, toProductPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func toProductPayload(p domain.Product) productPayload {
	payload := productPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Images:      p.Images,
	}
	if payload.Images == nil {
		payload.Images = []string{}
	}
	if !p.CreatedAt.IsZero() {
		payload.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
