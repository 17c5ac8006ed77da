package domain

import (
	"strings"
	"time"
)

// Product is a catalog entry. Remote catalog documents and the bundled snapshot share this shape.
type Product struct {
	ID          string
	Name        string
	Description string
	// Price is expressed in minor currency units.
	Price     int64
	Category  string
	Images    []string
	CreatedAt time.Time
}

// ProductSort selects the order of a product listing.
type ProductSort string

const (
	// ProductSortDefault keeps catalog insertion order.
	ProductSortDefault ProductSort = "default"
	// ProductSortPriceAsc orders by ascending price.
	ProductSortPriceAsc ProductSort = "price-low-high"
	// ProductSortPriceDesc orders by descending price.
	ProductSortPriceDesc ProductSort = "price-high-low"
	// ProductSortNewest orders by descending creation time.
	ProductSortNewest ProductSort = "newest"
)

// ParseProductSort maps a raw query value to a sort option. Unknown values select the default order.
func ParseProductSort(raw string) ProductSort {
	switch sort := ProductSort(strings.TrimSpace(raw)); sort {
	case ProductSortPriceAsc, ProductSortPriceDesc, ProductSortNewest:
		return sort
	default:
		return ProductSortDefault
	}
}

// PurchaseType selects one-off payment or recurring subscription checkout.
type PurchaseType string

const (
	PurchaseTypePayment      PurchaseType = "payment"
	PurchaseTypeSubscription PurchaseType = "subscription"
)

// Valid reports whether the purchase type is one of the known values.
func (p PurchaseType) Valid() bool {
	return p == PurchaseTypePayment || p == PurchaseTypeSubscription
}

// CartItem is one entry of a checkout request after validation.
type CartItem struct {
	Name        string
	Description string
	// Price is the unit price in minor currency units. Always positive.
	Price int64
	// Quantity is at least 1.
	Quantity int64
	Images   []string
}

// CheckoutRequest is a validated checkout payload.
type CheckoutRequest struct {
	Items        []CartItem
	PurchaseType PurchaseType
}

// LineItem is a priced entry sent to the payment provider.
type LineItem struct {
	Name        string
	Description string
	// Image is an absolute URL or empty.
	Image      string
	UnitAmount int64
	Quantity   int64
	Currency   string
}

// CheckoutSession identifies a hosted checkout session created by the payment provider.
type CheckoutSession struct {
	ID          string
	Reference   string
	RedirectURL string
	ExpiresAt   time.Time
}
