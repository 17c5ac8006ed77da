package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
)

const (
	defaultCheckoutCurrency     = "jpy"
	defaultCheckoutLocale       = "ja"
	defaultSubscriptionInterval = "month"
	defaultCheckoutBaseURL      = "http://localhost:3000"
	fallbackProductName         = "商品"
	checkoutMeterName           = "github.com/hanko-field/storefront/internal/services/checkout"
	checkoutEventTimeout        = 3 * time.Second
)

var defaultShippingCountries = []string{"JP"}

var (
	// ErrCheckoutNotConfigured indicates no payment provider credential was configured.
	ErrCheckoutNotConfigured = errors.New("checkout: payment provider not configured")
	// ErrCheckoutInvalidInput indicates the caller supplied an invalid cart.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutProvider indicates the payment provider rejected or failed the session request.
	ErrCheckoutProvider = errors.New("checkout: payment provider failed")
)

// CheckoutServiceDeps wires the collaborators of the checkout service. A nil Provider yields a
// service that reports ErrCheckoutNotConfigured.
type CheckoutServiceDeps struct {
	Provider             payments.Provider
	Events               CheckoutEventPublisher
	SiteURL              string
	Currency             string
	Locale               string
	ShippingCountries    []string
	SubscriptionInterval string
	Clock                func() time.Time
	IDGenerator          func() string
	Logger               *zap.Logger
	Meter                metric.Meter
}

type checkoutService struct {
	provider          payments.Provider
	events            CheckoutEventPublisher
	siteURL           string
	currency          string
	locale            string
	shippingCountries []string
	interval          string
	now               func() time.Time
	newID             func() string
	logger            *zap.Logger
	sanitizer         *bluemonday.Policy
	sessions          metric.Int64Counter
	failures          metric.Int64Counter
	pending           sync.WaitGroup
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs the checkout service, applying defaults for unset options.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("checkout service: invalid currency %q", deps.Currency)
	}

	rawLocale := strings.TrimSpace(deps.Locale)
	if rawLocale == "" {
		rawLocale = defaultCheckoutLocale
	}
	locale, err := payments.NormalizeLocale(rawLocale)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	countries := make([]string, 0, len(deps.ShippingCountries))
	for _, c := range deps.ShippingCountries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			countries = append(countries, c)
		}
	}
	if len(countries) == 0 {
		countries = append(countries, defaultShippingCountries...)
	}

	interval := strings.ToLower(strings.TrimSpace(deps.SubscriptionInterval))
	if interval == "" {
		interval = defaultSubscriptionInterval
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(checkoutMeterName)
	}

	svc := &checkoutService{
		provider:          deps.Provider,
		events:            deps.Events,
		siteURL:           strings.TrimRight(strings.TrimSpace(deps.SiteURL), "/"),
		currency:          currency,
		locale:            locale,
		shippingCountries: countries,
		interval:          interval,
		now:               func() time.Time { return clock().UTC() },
		newID:             newID,
		logger:            logger,
		sanitizer:         bluemonday.StrictPolicy(),
	}
	if svc.sessions, err = meter.Int64Counter("checkout.sessions.created",
		metric.WithDescription("Hosted checkout sessions created"),
	); err != nil {
		return nil, fmt.Errorf("checkout service: create counter: %w", err)
	}
	if svc.failures, err = meter.Int64Counter("checkout.sessions.failed",
		metric.WithDescription("Hosted checkout session requests that failed"),
	); err != nil {
		return nil, fmt.Errorf("checkout service: create counter: %w", err)
	}
	return svc, nil
}

func (s *checkoutService) Configured() bool {
	return s != nil && s.provider != nil
}

// CreateCheckoutSession builds line items for a validated request and asks the provider for a hosted session.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error) {
	if !s.Configured() {
		return CheckoutSession{}, ErrCheckoutNotConfigured
	}
	req := cmd.Request
	if len(req.Items) == 0 {
		return CheckoutSession{}, fmt.Errorf("%w: items are required", ErrCheckoutInvalidInput)
	}
	purchaseType := req.PurchaseType
	if purchaseType == "" {
		purchaseType = domain.PurchaseTypePayment
	}
	if !purchaseType.Valid() {
		return CheckoutSession{}, fmt.Errorf("%w: unknown purchase type %q", ErrCheckoutInvalidInput, purchaseType)
	}

	baseURL := s.ResolveBaseURL(cmd.Origin)
	lineItems, err := s.BuildLineItems(req.Items, baseURL)
	if err != nil {
		return CheckoutSession{}, err
	}

	reference := s.newID()
	mode := payments.ModePayment
	if purchaseType == domain.PurchaseTypeSubscription {
		mode = payments.ModeSubscription
	}
	sessionReq := payments.CheckoutSessionRequest{
		Mode:              mode,
		Items:             make([]payments.CheckoutLineItem, 0, len(lineItems)),
		SuccessURL:        baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         baseURL + "/checkout/cancel",
		Locale:            s.locale,
		ShippingCountries: append([]string(nil), s.shippingCountries...),
		ClientReference:   reference,
		Metadata: map[string]string{
			"checkoutRef":  reference,
			"purchaseType": string(purchaseType),
		},
	}
	if mode == payments.ModeSubscription {
		sessionReq.RecurringInterval = s.interval
	}
	for _, li := range lineItems {
		sessionReq.Items = append(sessionReq.Items, payments.CheckoutLineItem{
			Name:        li.Name,
			Description: li.Description,
			ImageURL:    li.Image,
			Quantity:    li.Quantity,
			Amount:      li.UnitAmount,
			Currency:    li.Currency,
		})
	}

	attrs := metric.WithAttributes(attribute.String("purchase_type", string(purchaseType)))
	session, err := s.provider.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		s.failures.Add(ctx, 1, attrs)
		s.logger.Warn("checkout session request failed",
			zap.String("reference", reference),
			zap.String("purchaseType", string(purchaseType)),
			zap.Error(err),
		)
		return CheckoutSession{}, fmt.Errorf("%w: %w", ErrCheckoutProvider, err)
	}
	s.sessions.Add(ctx, 1, attrs)

	result := CheckoutSession{
		ID:          session.ID,
		Reference:   reference,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}
	s.publishCreated(ctx, result, purchaseType, lineItems)
	return result, nil
}

// ResolveBaseURL returns the configured site URL, else the caller's origin when it is an absolute
// http(s) URL, else the local development address.
func (s *checkoutService) ResolveBaseURL(origin string) string {
	if s.siteURL != "" {
		return s.siteURL
	}
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if u, err := url.Parse(origin); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return defaultCheckoutBaseURL
}

// BuildLineItems converts validated cart items into provider line items.
func (s *checkoutService) BuildLineItems(items []domain.CartItem, baseURL string) ([]domain.LineItem, error) {
	lineItems := make([]domain.LineItem, 0, len(items))
	for i, item := range items {
		if item.Price <= 0 {
			return nil, fmt.Errorf("%w: items[%d].price must be positive", ErrCheckoutInvalidInput, i)
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		name := s.plainText(item.Name)
		if name == "" {
			name = fallbackProductName
		}

		var image string
		if len(item.Images) > 0 {
			image = NormalizeImageURL(item.Images[0], baseURL)
		}

		lineItems = append(lineItems, domain.LineItem{
			Name:        name,
			Description: s.plainText(item.Description),
			Image:       image,
			UnitAmount:  item.Price,
			Quantity:    quantity,
			Currency:    s.currency,
		})
	}
	return lineItems, nil
}

// plainText strips markup; the sanitizer escapes entities, which hosted checkout would display verbatim.
func (s *checkoutService) plainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

// NormalizeImageURL prefixes root-relative paths with baseURL, passes URLs starting with "http"
// through unchanged, and drops anything else.
func NormalizeImageURL(raw, baseURL string) string {
	image := strings.TrimSpace(raw)
	switch {
	case image == "":
		return ""
	case strings.HasPrefix(image, "/"):
		return strings.TrimRight(baseURL, "/") + image
	case strings.HasPrefix(image, "http"):
		return image
	default:
		return ""
	}
}

func (s *checkoutService) publishCreated(ctx context.Context, session CheckoutSession, purchaseType domain.PurchaseType, items []domain.LineItem) {
	if s.events == nil {
		return
	}
	total, ok := lineItemsTotal(items)
	if !ok {
		s.logger.Warn("checkout event total overflows int64; omitting amount",
			zap.String("reference", session.Reference),
			zap.String("sessionId", session.ID),
		)
	}
	event := CheckoutEvent{
		EventID:      s.newID(),
		Type:         CheckoutEventSessionCreated,
		Reference:    session.Reference,
		SessionID:    session.ID,
		PurchaseType: string(purchaseType),
		ItemCount:    len(items),
		AmountTotal:  total,
		Currency:     s.currency,
		OccurredAt:   s.now(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkoutEventTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if _, err := s.events.PublishCheckoutEvent(pubCtx, event); err != nil {
			s.logger.Warn("checkout event publish failed",
				zap.String("reference", session.Reference),
				zap.String("sessionId", session.ID),
				zap.Error(err),
			)
		}
	}()
}

// Flush waits for in-flight event publishes or until ctx is done.
func (s *checkoutService) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lineItemsTotal sums amount times quantity; ok is false when the total does not fit in int64.
func lineItemsTotal(items []domain.LineItem) (total int64, ok bool) {
	for _, item := range items {
		if item.UnitAmount < 0 || item.Quantity < 0 {
			return 0, false
		}
		if item.Quantity != 0 && item.UnitAmount > math.MaxInt64/item.Quantity {
			return 0, false
		}
		sub := item.UnitAmount * item.Quantity
		if total > math.MaxInt64-sub {
			return 0, false
		}
		total += sub
	}
	return total, true
}
