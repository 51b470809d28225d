package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"aitools-pro-billing/internal/infra/logging"
)

const adminRole = "admin"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth issues and checks HS256 bearer tokens for the operator API.
type AdminAuth struct {
	secret []byte
}

func NewAdminAuth(secret string) (*AdminAuth, error) {
	if secret == "" {
		return nil, errors.New("admin jwt secret empty")
	}
	return &AdminAuth{secret: []byte(secret)}, nil
}

func (a *AdminAuth) Mint(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AdminAuth) Parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != adminRole {
		return nil, errors.New("not an admin token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer <jwt>".
func (a *AdminAuth) Middleware(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := r.Header.Get("Authorization")
			if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := a.Parse(strings.TrimSpace(hdr[7:]))
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Msg("admin auth rejected")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			logging.With(r.Context(), logger).Debug().Str("subject", claims.Subject).Msg("admin request")
			next.ServeHTTP(w, r)
		})
	}
}
