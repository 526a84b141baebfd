package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/http/handlers"
	"github.com/maykecorrea/dressup/internal/middleware"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	app := handlers.NewApp(zerolog.Nop(), "router-secret")
	app.Catalog = cat
	return NewRouter(app, Options{Logger: zerolog.Nop(), CORSAllowedOrigins: []string{"*"}, RateLimitPerMinute: 100})
}

func TestPublicRoutes(t *testing.T) {
	h := newTestRouter(t)
	for _, path := range []string{"/v1/healthz", "/v1/catalog", "/v1/catalog/denim-jacket-blue", "/v1/openapi.json"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, rec.Code)
		}
		if rec.Header().Get(middleware.RequestIDHeader) == "" {
			t.Fatalf("GET %s missing request id header", path)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/me"},
		{http.MethodPost, "/v1/compositions"},
		{http.MethodDelete, "/v1/compositions/abc"},
		{http.MethodGet, "/v1/gallery"},
		{http.MethodPost, "/v1/garments/describe"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, strings.NewReader("{}")))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d", route.method, route.path, rec.Code)
		}
	}
}

func TestValidTokenReachesHandler(t *testing.T) {
	h := newTestRouter(t)
	token, err := middleware.SignJWT("router-secret", "u1", "", "", time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", strings.NewReader(`{"slots":[]}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}
