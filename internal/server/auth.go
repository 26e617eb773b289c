package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig controls optional request authentication. When enabled, a
// request must carry either a bearer token signed with JWTSecret or an
// X-Api-Key header matching one of APIKeys.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	keys := map[string]struct{}{}
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	open := map[string]struct{}{
		basePath + "/health/live":  {},
		basePath + "/health/ready": {},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if key := r.Header.Get("X-Api-Key"); key != "" {
				if _, ok := keys[key]; ok {
					next.ServeHTTP(w, r)
					return
				}
				respondStatusError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondStatusError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")
			if err := verifyToken(raw, cfg.JWTSecret); err != nil {
				respondStatusError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyToken(raw, secret string) error {
	if secret == "" {
		return fmt.Errorf("no jwt secret configured")
	}
	_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	return err
}

func respondStatusError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
