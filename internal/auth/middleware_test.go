package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "driver-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestMiddleware() *Middleware {
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	return NewMiddleware(testSecret, policy)
}

func TestMiddlewareExemptPath(t *testing.T) {
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for exempt path, got %d", rec.Code)
	}
}

func TestMiddlewareMissingToken(t *testing.T) {
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareViewerCannotMutate(t *testing.T) {
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/steps", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "viewer"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareOperatorCanMutate(t *testing.T) {
	var gotRole Role
	var gotSubject string
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/finalize", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "operator"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if gotRole != RoleOperator {
		t.Fatalf("expected operator role in context, got %q", gotRole)
	}
	if gotSubject != "driver-1" {
		t.Fatalf("expected subject in context, got %q", gotSubject)
	}
}

func TestMiddlewareViewerCanRead(t *testing.T) {
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/events", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "viewer"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareBadSignature(t *testing.T) {
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	claims := Claims{Role: "admin"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPolicyRequiredRole(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method string
		path   string
		want   Role
	}{
		{http.MethodPost, "/api/v1/runs", RoleOperator},
		{http.MethodGet, "/api/v1/runs", RoleViewer},
		{http.MethodPost, "/api/v1/runs/run-1/steps", RoleOperator},
		{http.MethodPost, "/api/v1/runs/run-1/finalize", RoleOperator},
		{http.MethodGet, "/api/v1/runs/run-1", RoleViewer},
		{http.MethodGet, "/api/v1/runs/run-1/durations", RoleViewer},
		{http.MethodGet, "/api/v1/runs/run-1/export.csv", RoleViewer},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		got, ok := policy.RequiredRole(req)
		if !ok || got != tc.want {
			t.Fatalf("%s %s: expected role %q, got %q (ok=%v)", tc.method, tc.path, tc.want, got, ok)
		}
	}
}
