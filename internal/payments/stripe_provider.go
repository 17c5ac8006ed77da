package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

const defaultSessionTTL = 24 * time.Hour

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	// Backends overrides the Stripe transport; nil uses the SDK defaults.
	Backends *stripe.Backends
	Logger   *zap.Logger
	Clock    func() time.Time

	sessions stripeSessionAPI
}

// StripeProvider implements Provider with Stripe Checkout.
type StripeProvider struct {
	sessions stripeSessionAPI
	account  string
	clock    func() time.Time
	logger   *zap.Logger
}

// NewStripeProvider constructs a Stripe Provider. The API key is required.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	sessions := cfg.sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StripeProvider{
		sessions: sessions,
		account:  strings.TrimSpace(cfg.AccountID),
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	params := buildSessionParams(req)
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, stripeProviderError("stripe: create checkout session", err)
	}

	p.logger.Info("checkout session created",
		zap.String("sessionId", session.ID),
		zap.String("mode", string(req.Mode)),
		zap.String("clientReference", req.ClientReference),
		zap.Int("lineItems", len(params.LineItems)),
	)

	expiresAt := p.clock().Add(defaultSessionTTL)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

func buildSessionParams(req CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	mode := stripe.CheckoutSessionModePayment
	if req.Mode == ModeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(mode)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
	}
	if req.Locale != "" {
		params.Locale = stripe.String(req.Locale)
	}
	if len(req.ShippingCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.ShippingCountries),
		}
	}
	if ref := strings.TrimSpace(req.ClientReference); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		if mode == stripe.CheckoutSessionModeSubscription {
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: copyMetadata(req.Metadata)}
		} else {
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: copyMetadata(req.Metadata)}
		}
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		if item.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{item.ImageURL})
		}

		price := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(strings.ToLower(item.Currency)),
			UnitAmount:  stripe.Int64(item.Amount),
			ProductData: product,
		}
		if mode == stripe.CheckoutSessionModeSubscription && req.RecurringInterval != "" {
			price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(req.RecurringInterval),
			}
		}

		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity:  stripe.Int64(item.Quantity),
			PriceData: price,
		})
	}
	return params
}

// stripeProviderError lifts the message Stripe reported out of *stripe.Error.
func stripeProviderError(op string, err error) error {
	perr := &ProviderError{Op: op, Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		perr.Message = stripeErr.Msg
		perr.Code = string(stripeErr.Code)
		perr.HTTPStatus = stripeErr.HTTPStatusCode
	}
	return perr
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
