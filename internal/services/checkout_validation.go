package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// maxCheckoutItems mirrors the hosted checkout line item limit.
const maxCheckoutItems = 100

var msgTooManyItems = fmt.Sprintf("at most %d items are allowed", maxCheckoutItems)

// FieldError describes one rejected field of a checkout payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is either a validated request (Errors empty) or the list of field errors.
type ValidationResult struct {
	Request CheckoutRequest
	Errors  []FieldError
}

// OK reports whether validation succeeded.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Err returns nil on success or a *CheckoutValidationError matching ErrCheckoutInvalidInput.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return &CheckoutValidationError{Fields: append([]FieldError(nil), r.Errors...)}
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// CheckoutValidationError lists the field errors of a rejected payload.
type CheckoutValidationError struct {
	Fields []FieldError
}

func (e *CheckoutValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrCheckoutInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrCheckoutInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

func (e *CheckoutValidationError) Unwrap() error { return ErrCheckoutInvalidInput }

// MissingItems reports whether the payload was rejected for lacking items altogether.
func (e *CheckoutValidationError) MissingItems() bool {
	for _, f := range e.Fields {
		if f.Field == "items" && f.Message != msgTooManyItems {
			return true
		}
	}
	return false
}

// ValidateCheckoutRequest checks a decoded JSON object. Numbers may be json.Number (decoder.UseNumber)
// or float64. Quantity defaults to 1, description to "", purchaseType to payment.
func ValidateCheckoutRequest(payload map[string]any) ValidationResult {
	result := ValidationResult{Request: CheckoutRequest{PurchaseType: domain.PurchaseTypePayment}}

	rawItems, present := payload["items"]
	items, isArray := rawItems.([]any)
	switch {
	case !present || rawItems == nil:
		result.add("items", "items are required")
	case !isArray:
		result.add("items", "items must be an array")
	case len(items) == 0:
		result.add("items", "items must not be empty")
	case len(items) > maxCheckoutItems:
		result.add("items", "%s", msgTooManyItems)
	default:
		result.Request.Items = make([]domain.CartItem, 0, len(items))
		for i, raw := range items {
			if item, ok := validateCartItem(&result, i, raw); ok {
				result.Request.Items = append(result.Request.Items, item)
			}
		}
	}

	switch raw := payload["purchaseType"].(type) {
	case nil:
	case string:
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			purchaseType := domain.PurchaseType(strings.ToLower(trimmed))
			if !purchaseType.Valid() {
				result.add("purchaseType", "purchaseType must be %q or %q", domain.PurchaseTypePayment, domain.PurchaseTypeSubscription)
			} else {
				result.Request.PurchaseType = purchaseType
			}
		}
	default:
		result.add("purchaseType", "purchaseType must be a string")
	}

	if !result.OK() {
		result.Request = CheckoutRequest{}
	}
	return result
}

func validateCartItem(result *ValidationResult, index int, raw any) (domain.CartItem, bool) {
	prefix := fmt.Sprintf("items[%d]", index)
	fields, ok := raw.(map[string]any)
	if !ok {
		result.add(prefix, "item must be an object")
		return domain.CartItem{}, false
	}

	before := len(result.Errors)
	item := domain.CartItem{Quantity: 1}

	name, _ := fields["name"].(string)
	item.Name = strings.TrimSpace(name)
	if item.Name == "" {
		result.add(prefix+".name", "name must be a non-empty string")
	}

	price, ok := integerValue(fields["price"])
	if !ok || price <= 0 {
		result.add(prefix+".price", "price must be a positive integer")
	}
	item.Price = price

	if rawQty, present := fields["quantity"]; present && rawQty != nil {
		qty, ok := integerValue(rawQty)
		switch {
		case !ok || qty < 0:
			result.add(prefix+".quantity", "quantity must be a positive integer")
		case qty > 0:
			item.Quantity = qty
		}
	}

	switch desc := fields["description"].(type) {
	case nil:
	case string:
		item.Description = strings.TrimSpace(desc)
	default:
		result.add(prefix+".description", "description must be a string")
	}

	switch images := fields["images"].(type) {
	case nil:
	case []any:
		item.Images = make([]string, len(images))
		for i, img := range images {
			if s, ok := img.(string); ok {
				item.Images[i] = s
			}
		}
	default:
		result.add(prefix+".images", "images must be an array")
	}

	return item, len(result.Errors) == before
}

// integerValue accepts integral JSON numbers only.
func integerValue(v any) (int64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}
