package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/platform/config"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		unavailable bool
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), notFound: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), unavailable: true},
		{name: "exhausted", err: status.Error(codes.ResourceExhausted, "quota"), unavailable: true},
		{name: "permission", err: status.Error(codes.PermissionDenied, "nope")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("products.query", tc.err)
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound {
				t.Errorf("IsNotFound = %v, want %v", repoErr.IsNotFound(), tc.notFound)
			}
			if repoErr.IsUnavailable() != tc.unavailable {
				t.Errorf("IsUnavailable = %v, want %v", repoErr.IsUnavailable(), tc.unavailable)
			}
			if got := err.Error(); got == "" || got[:len("products.query")] != "products.query" {
				t.Errorf("expected op prefix, got %q", got)
			}
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestProviderWithoutProjectIsNotConfigured(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	p := NewProvider(config.FirestoreConfig{})
	if p.Configured() {
		t.Fatal("expected provider without project to be unconfigured")
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close returned error: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
