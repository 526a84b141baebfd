package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/middleware"
)

func TestSignupLoginMe(t *testing.T) {
	env := newTestEnv(t, imagegen.RefusalAbort)

	rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", "", map[string]string{
		"email":    "Ana@Example.com",
		"password": "correct-horse",
		"name":     "Ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body.String())
	}
	signed := decodeBody[authResponse](t, rec)
	claims, err := middleware.VerifyJWT("test-secret", signed.Token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Subject != signed.User.ID || signed.User.Locale != "pt-BR" {
		t.Fatalf("unexpected signup result %+v claims %+v", signed.User, claims)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/signup", "", "", map[string]string{
		"email":    "ana@example.com",
		"password": "another-pass",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", "", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", "", map[string]string{
		"email":    "ana@example.com",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/me", signed.User.ID, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ana@example.com") {
		t.Fatalf("me status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/me", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me status = %d", rec.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t, imagegen.RefusalAbort)
	tests := []struct {
		name string
		body any
	}{
		{name: "bad email", body: map[string]string{"email": "nope", "password": "long-enough"}},
		{name: "short password", body: map[string]string{"email": "a@b.co", "password": "short"}},
		{name: "not json", body: "{"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", "", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			if decodeBody[errorEnvelope](t, rec).Error.Code != "invalid_request" {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
		})
	}
}
