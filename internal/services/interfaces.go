package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	ProductSort        = domain.ProductSort
	CheckoutRequest    = domain.CheckoutRequest
	CheckoutSession    = domain.CheckoutSession
	SystemHealthReport = domain.SystemHealthReport
)

// CheckoutService validates carts and creates hosted payment sessions.
type CheckoutService interface {
	// Configured reports whether a payment provider is available.
	Configured() bool
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error)
	// Flush waits for background event publishes started by earlier sessions.
	Flush(ctx context.Context) error
}

// CatalogService loads product listings with fallback to the bundled snapshot.
type CatalogService interface {
	NewListingView() *ProductListingView
	LoadListing(ctx context.Context) (*ProductListingView, error)
}

// SystemService exposes health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CheckoutEventPublisher delivers checkout lifecycle events to downstream consumers.
type CheckoutEventPublisher interface {
	PublishCheckoutEvent(ctx context.Context, event CheckoutEvent) (string, error)
}

// CreateCheckoutSessionCommand carries a validated request plus the caller's origin,
// used to resolve the base URL when no site URL is configured.
type CreateCheckoutSessionCommand struct {
	Request CheckoutRequest
	Origin  string
}

// CheckoutEvent is published after a session has been created.
type CheckoutEvent struct {
	EventID      string    `json:"eventId"`
	Type         string    `json:"type"`
	Reference    string    `json:"reference"`
	SessionID    string    `json:"sessionId"`
	PurchaseType string    `json:"purchaseType"`
	ItemCount    int       `json:"itemCount"`
	AmountTotal  int64     `json:"amountTotal"`
	Currency     string    `json:"currency"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// CheckoutEventSessionCreated is the event type emitted for new sessions.
const CheckoutEventSessionCreated = "checkout.session.created"
