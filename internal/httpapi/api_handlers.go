package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sotto-ai/sotto/internal/store"
)

// operatorClaims is the JWT payload for operator API tokens.
type operatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

const defaultCallsLimit = 50

// handleAuthToken exchanges the shared operator key for a short-lived JWT.
func (r *Router) handleAuthToken(w http.ResponseWriter, req *http.Request) {
	if r.cfg.OperatorKey == "" || r.cfg.JWTSecret == "" {
		http.Error(w, `{"error": "operator API not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		OperatorKey string `json:"operator_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if subtle.ConstantTimeCompare([]byte(body.OperatorKey), []byte(r.cfg.OperatorKey)) != 1 {
		http.Error(w, `{"error": "invalid operator key"}`, http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(r.cfg.JWTExpiry)
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: "operator",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		r.logger.Printf("auth: failed to sign token: %v", err)
		http.Error(w, `{"error": "failed to create token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// withAuth is middleware that requires a valid operator JWT
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &operatorClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, req)
	}
}

// handleListCalls returns recent calls with their correction counts.
func (r *Router) handleListCalls(w http.ResponseWriter, req *http.Request) {
	limit := defaultCallsLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	calls, err := r.store.ListCalls(req.Context(), limit)
	if err != nil {
		r.logger.Printf("api: failed to list calls: %v", err)
		captureError(req, err, "api: failed to list calls")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// handleGetCallDetail returns one call with its corrections.
func (r *Router) handleGetCallDetail(w http.ResponseWriter, req *http.Request) {
	providerCallID := req.PathValue("providerCallId")
	if providerCallID == "" {
		http.Error(w, `{"error": "missing call ID"}`, http.StatusBadRequest)
		return
	}

	detail, err := r.store.GetCallDetail(req.Context(), providerCallID)
	if err != nil {
		if store.IsNotFound(err) {
			http.Error(w, `{"error": "call not found"}`, http.StatusNotFound)
			return
		}
		r.logger.Printf("api: failed to get call %s: %v", providerCallID, err)
		captureError(req, err, "api: failed to get call detail")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}
