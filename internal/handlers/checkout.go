package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

const (
	msgCheckoutNotConfigured = "Stripe APIキーが設定されていません。環境変数を確認してください。"
	msgMalformedRequest      = "リクエストの形式が正しくありません"
	msgBodyTooLarge          = "リクエストが大きすぎます"
	msgItemsMissing          = "商品情報が提供されていません"
	msgItemsInvalid          = "商品情報が正しくありません"
	msgProviderFailed        = "決済処理中にエラーが発生しました"
	msgUnexpected            = "予期しないエラーが発生しました"
)

// CheckoutHandlers exposes the anonymous checkout session endpoint. The origin gate is applied as
// route middleware ahead of these handlers.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout-session", h.createSession)
}

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestctx.Logger(ctx).Error("checkout handler panic",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			httpx.WriteError(ctx, w, httpx.NewError("unexpected_error", msgUnexpected, http.StatusInternalServerError))
		}
	}()

	if h.checkout == nil || !h.checkout.Configured() {
		httpx.WriteError(ctx, w, httpx.NewError("configuration_error", msgCheckoutNotConfigured, http.StatusInternalServerError))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("malformed_request", msgBodyTooLarge, http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("malformed_request", msgMalformedRequest, http.StatusBadRequest))
		return
	}

	payload, err := decodeJSONObject(body)
	if err != nil {
		requestctx.Logger(ctx).Debug("checkout payload rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("malformed_request", msgMalformedRequest, http.StatusBadRequest))
		return
	}

	result := services.ValidateCheckoutRequest(payload)
	if err := result.Err(); err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		Request: result.Request,
		Origin:  r.Header.Get("Origin"),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	resp := checkoutSessionResponse{SessionID: session.ID, URL: session.RedirectURL}
	if !session.ExpiresAt.IsZero() {
		resp.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		verr *services.CheckoutValidationError
		perr *payments.ProviderError
	)
	switch {
	case errors.As(err, &verr):
		message := msgItemsInvalid
		if verr.MissingItems() {
			message = msgItemsMissing
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", message, http.StatusBadRequest).
			WithDetails(map[string]any{"details": verr.Fields}))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", msgItemsInvalid, http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("configuration_error", msgCheckoutNotConfigured, http.StatusInternalServerError))
	case errors.Is(err, services.ErrCheckoutProvider):
		message := msgProviderFailed
		if errors.As(err, &perr) && perr.Message != "" {
			message = perr.Message
		}
		requestctx.Logger(ctx).Error("checkout session creation failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("provider_error", message, http.StatusInternalServerError))
	default:
		requestctx.Logger(ctx).Error("checkout failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("unexpected_error", msgUnexpected, http.StatusInternalServerError))
	}
}

