// Package payments adapts hosted checkout providers behind a small interface.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Mode selects how the hosted checkout charges the customer.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// CheckoutLineItem describes one priced entry of a checkout session.
type CheckoutLineItem struct {
	Name        string
	Description string
	ImageURL    string
	Quantity    int64
	// Amount is the unit price in minor units.
	Amount   int64
	Currency string
}

// CheckoutSessionRequest captures the payload required to create a hosted checkout session.
type CheckoutSessionRequest struct {
	Mode              Mode
	Items             []CheckoutLineItem
	SuccessURL        string
	CancelURL         string
	Locale            string
	ShippingCountries []string
	// RecurringInterval applies to every line item when Mode is ModeSubscription.
	RecurringInterval string
	ClientReference   string
	Metadata          map[string]string
}

// CheckoutSession is the provider session returned to the caller.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// ProviderError reports a failure returned by the payment provider. Message is the provider's
// human readable explanation and may be empty.
type ProviderError struct {
	Op         string
	Message    string
	Code       string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// ErrInvalidLocale is returned by NormalizeLocale for tags that cannot be parsed.
var ErrInvalidLocale = errors.New("payments: invalid locale")

// NormalizeLocale canonicalises a BCP 47 tag ("ja", "en_gb") into the form hosted checkout expects ("ja", "en-GB").
func NormalizeLocale(raw string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if trimmed == "" || strings.EqualFold(trimmed, "auto") {
		return "auto", nil
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidLocale, raw, err)
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.Exact {
		return base.String() + "-" + region.String(), nil
	}
	return base.String(), nil
}
