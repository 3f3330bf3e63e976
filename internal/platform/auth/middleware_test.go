package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/zyncure/zyncure/internal/platform/db"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

const testUserID = "5f0c2d52-8a4b-4b7e-9d3c-2a1f6c7e8b90"

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:       "dr.reyes@example.com",
		Role:        "authenticated",
		AppMetadata: AppMetadata{Provider: "email", Role: role},
	}
}

func runJWT(t *testing.T, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	if handler == nil {
		handler = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	}
	return JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runJWT(t, "", nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runJWT(t, tt.header, nil)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(testUserID, RoleDoctor), testSigningKey)

	var handlerCalled bool
	err := runJWT(t, "Bearer "+tokenStr, func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims(testUserID, RolePatient)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))

	err := runJWT(t, "Bearer "+createTestToken(t, claims, testSigningKey), nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongAudience(t *testing.T) {
	claims := validClaims(testUserID, RolePatient)
	claims.Audience = jwt.ClaimStrings{"anon"}

	err := runJWT(t, "Bearer "+createTestToken(t, claims, testSigningKey), nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(testUserID, RolePatient), []byte("another-secret"))
	err := runJWT(t, "Bearer "+tokenStr, nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_NonUUIDSubject(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-123", RolePatient), testSigningKey)
	err := runJWT(t, "Bearer "+tokenStr, nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(testUserID, RoleDoctor), testSigningKey)

	err := runJWT(t, "Bearer "+tokenStr, func(c echo.Context) error {
		ctx := c.Request().Context()

		if uid := UserIDFromContext(ctx); uid != testUserID {
			t.Errorf("expected user_id=%s, got %s", testUserID, uid)
		}
		if role := RoleFromContext(ctx); role != RoleDoctor {
			t.Errorf("expected role=doctor, got %s", role)
		}
		if email := EmailFromContext(ctx); email != "dr.reyes@example.com" {
			t.Errorf("unexpected email %q", email)
		}
		claims, ok := c.Get(db.ClaimsContextKey).(*Claims)
		if !ok || claims.Subject != testUserID {
			t.Errorf("expected raw claims on echo context, got %v", c.Get(db.ClaimsContextKey))
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != DevUserID {
			t.Errorf("expected user_id=%s, got %s", DevUserID, uid)
		}
		if role := RoleFromContext(ctx); role != RoleAdmin {
			t.Errorf("expected role=admin, got %s", role)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware(testSigningKey)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_HeaderOverrides(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User-ID", testUserID)
	req.Header.Set("X-Dev-Role", RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		a, ok := ActorFromContext(c.Request().Context())
		if !ok {
			t.Fatal("expected actor")
		}
		if a.ID.String() != testUserID || !a.IsPatient() {
			t.Errorf("unexpected actor %+v", a)
		}
		return nil
	}

	if err := DevAuthMiddleware(testSigningKey)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_VerifiesPresentedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := DevAuthMiddleware(testSigningKey)(func(c echo.Context) error {
		t.Error("handler must not run for an invalid token")
		return nil
	})(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestParsePublicKey(t *testing.T) {
	if _, err := parsePublicKey(JWKSKey{Kty: "oct"}); err == nil {
		t.Error("expected error for symmetric key")
	}
	if _, err := parsePublicKey(JWKSKey{Kty: "EC", Crv: "P-521"}); err == nil {
		t.Error("expected error for unsupported curve")
	}
	key, err := parsePublicKey(JWKSKey{Kty: "RSA", N: "AQAB", E: "AQAB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil {
		t.Error("expected parsed key")
	}
}
