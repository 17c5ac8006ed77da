package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

var secretProjectEnv = map[string]string{"API_SECRET_DEFAULT_PROJECT_ID": "demo-project"}

type healthSecretClient struct {
	err error
}

func (c healthSecretClient) AccessSecretVersion(context.Context, *secretmanagerpb.AccessSecretVersionRequest, ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte("ok")},
	}, nil
}

func (healthSecretClient) Close() error { return nil }

func newHealthFetcher(t *testing.T, err error) *secrets.Fetcher {
	t.Helper()
	fetcher, ferr := secrets.NewFetcher(context.Background(),
		secrets.WithSecretManagerClient(healthSecretClient{err: err}),
		secrets.WithDefaultProject("demo-project"),
		secrets.WithFallbackFile(filepath.Join(t.TempDir(), "missing.secrets")),
	)
	if ferr != nil {
		t.Fatalf("NewFetcher: %v", ferr)
	}
	return fetcher
}

func TestSecretManagerCheck(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "secret present"},
		{name: "secret missing", err: status.Error(codes.NotFound, "no such secret")},
		{name: "backend unavailable", err: status.Error(codes.Unavailable, "connection refused"), wantErr: true},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "denied"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			check, ok := secretManagerCheck(newHealthFetcher(t, tc.err), secretProjectEnv)
			if !ok {
				t.Fatal("expected check when a secret project is configured")
			}
			if check.Name != "secretManager" || !check.Optional {
				t.Fatalf("expected optional secretManager check, got %#v", check)
			}
			err := check.Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("check error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSecretManagerCheckSkippedWithoutProject(t *testing.T) {
	if _, ok := secretManagerCheck(newHealthFetcher(t, nil), map[string]string{}); ok {
		t.Fatal("expected no check without a secret project")
	}
	if _, ok := secretManagerCheck(nil, secretProjectEnv); ok {
		t.Fatal("expected no check without a fetcher")
	}
}

func TestReadinessDependencyOutcomes(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "backend down")
	tests := []struct {
		name         string
		firestoreErr error
		pubsubErr    error
		secretErr    error
		wantCode     int
		wantStatus   string
		wantChecks   map[string]string
	}{
		{
			name:       "all dependencies healthy",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"firestore": "ok", "pubsub": "ok", "secretManager": "ok"},
		},
		{
			name:       "health secret missing",
			secretErr:  status.Error(codes.NotFound, "missing"),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"firestore": "ok", "pubsub": "ok", "secretManager": "ok"},
		},
		{
			name:         "firestore down",
			firestoreErr: errors.New("firestore unreachable"),
			wantCode:     http.StatusServiceUnavailable,
			wantStatus:   "error",
			wantChecks:   map[string]string{"firestore": "error", "pubsub": "ok", "secretManager": "ok"},
		},
		{
			name:       "pubsub down",
			pubsubErr:  errors.New("topic missing"),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantChecks: map[string]string{"firestore": "ok", "pubsub": "degraded", "secretManager": "ok"},
		},
		{
			name:       "secret manager down",
			secretErr:  unavailable,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantChecks: map[string]string{"firestore": "ok", "pubsub": "ok", "secretManager": "degraded"},
		},
		{
			name:         "firestore and pubsub down",
			firestoreErr: errors.New("firestore unreachable"),
			pubsubErr:    errors.New("topic missing"),
			wantCode:     http.StatusServiceUnavailable,
			wantStatus:   "error",
			wantChecks:   map[string]string{"firestore": "error", "pubsub": "degraded", "secretManager": "ok"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checks := []repositories.DependencyCheck{
				firestoreCheck(func(context.Context) error { return tc.firestoreErr }),
				pubsubCheck(func(context.Context) error { return tc.pubsubErr }),
			}
			secretCheck, ok := secretManagerCheck(newHealthFetcher(t, tc.secretErr), secretProjectEnv)
			if !ok {
				t.Fatal("expected secret manager check")
			}
			checks = append(checks, secretCheck)

			code, body := getReadiness(t, checks)

			if code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, code)
			}
			if body.Status != tc.wantStatus {
				t.Fatalf("expected report status %s, got %s", tc.wantStatus, body.Status)
			}
			if len(body.Checks) != len(tc.wantChecks) {
				t.Fatalf("expected %d checks, got %v", len(tc.wantChecks), body.Checks)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Fatalf("check %s: expected %s, got %s", name, want, got)
				}
			}
		})
	}
}

func TestReadinessWithoutFirestore(t *testing.T) {
	code, body := getReadiness(t, nil)
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("expected ready without dependencies, got %d %s", code, body.Status)
	}
	if len(body.Checks) != 0 {
		t.Fatalf("expected no checks, got %v", body.Checks)
	}
}

type readinessBody struct {
	Status string `json:"status"`
	Checks map[string]struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"checks"`
}

func getReadiness(t *testing.T, checks []repositories.DependencyCheck) (int, readinessBody) {
	t.Helper()
	system, err := newSystemService(checks, services.BuildInfo{
		Version:     "test",
		Environment: "production",
		StartedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("newSystemService: %v", err)
	}
	router := handlers.NewRouter(handlers.WithHealthHandlers(
		handlers.NewHealthHandlers(handlers.WithHealthSystemService(system)),
	))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body readinessBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode readiness body: %v", err)
	}
	return rr.Code, body
}
