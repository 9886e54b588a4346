package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthTokenNotConfigured(t *testing.T) {
	r := newTestRouter(RouterConfig{})

	req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(`{"operator_key": "x"}`))
	rec := httptest.NewRecorder()
	r.handleAuthToken(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestAuthTokenWrongKey(t *testing.T) {
	r := newTestRouter(RouterConfig{
		OperatorKey: "right-key",
		JWTSecret:   "jwt-secret",
		JWTExpiry:   time.Hour,
	})

	req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(`{"operator_key": "wrong-key"}`))
	rec := httptest.NewRecorder()
	r.handleAuthToken(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthTokenBadBody(t *testing.T) {
	r := newTestRouter(RouterConfig{
		OperatorKey: "right-key",
		JWTSecret:   "jwt-secret",
		JWTExpiry:   time.Hour,
	})

	req := httptest.NewRequest("POST", "/auth/token", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	r.handleAuthToken(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAuthTokenIssuesValidJWT(t *testing.T) {
	r := newTestRouter(RouterConfig{
		OperatorKey: "right-key",
		JWTSecret:   "jwt-secret",
		JWTExpiry:   time.Hour,
	})

	req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(`{"operator_key": "right-key"}`))
	rec := httptest.NewRecorder()
	r.handleAuthToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("token should not be empty")
	}

	token, err := jwt.ParseWithClaims(body.Token, &operatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("jwt-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("issued token should parse and validate: %v", err)
	}
	claims, ok := token.Claims.(*operatorClaims)
	if !ok {
		t.Fatal("claims should be operatorClaims")
	}
	if claims.Role != "operator" {
		t.Errorf("role = %q, want operator", claims.Role)
	}
	if claims.Subject != "operator" {
		t.Errorf("subject = %q, want operator", claims.Subject)
	}
}

func TestWithAuth(t *testing.T) {
	r := newTestRouter(RouterConfig{
		OperatorKey: "right-key",
		JWTSecret:   "jwt-secret",
		JWTExpiry:   time.Hour,
	})

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Issue a real token through the exchange endpoint.
	tokenReq := httptest.NewRequest("POST", "/auth/token", strings.NewReader(`{"operator_key": "right-key"}`))
	tokenRec := httptest.NewRecorder()
	r.handleAuthToken(tokenRec, tokenReq)
	var issued struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(tokenRec.Body).Decode(&issued); err != nil {
		t.Fatalf("decode token response: %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc123", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + issued.Token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/calls", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestWithAuthRejectsExpiredToken(t *testing.T) {
	r := newTestRouter(RouterConfig{
		JWTSecret: "jwt-secret",
	})

	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
		Role: "operator",
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/calls", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWithAuthRejectsWrongSecret(t *testing.T) {
	r := newTestRouter(RouterConfig{
		JWTSecret: "jwt-secret",
	})

	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "operator",
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	handler := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/calls", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
