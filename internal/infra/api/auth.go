package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"installment-engine/internal/infra/logging"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAdmin Role = "admin"
)

var errNoToken = errors.New("missing bearer token")

// Claims are carried by buyer and admin bearer tokens. Subject is the buyer or admin id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Role    Role
}

func (p Principal) Admin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// AuthManager mints and verifies HS256 bearer tokens.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl}
}

func (a *AuthManager) Mint(subject string, role Role) (string, error) {
	if subject == "" || (role != RoleBuyer && role != RoleAdmin) {
		return "", errors.New("auth: subject and a known role are required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, errNoToken
	}
	return a.parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
}

func (a *AuthManager) parse(raw string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	if claims.Role != RoleBuyer && claims.Role != RoleAdmin {
		return nil, errors.New("invalid role")
	}
	return claims, nil
}

// Authenticate rejects requests without a valid bearer token and stores the Principal in ctx.
func (a *AuthManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "a valid bearer token is required")
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{Subject: claims.Subject, Role: claims.Role})
		if claims.Role == RoleBuyer {
			ctx = logging.WithBuyerID(ctx, claims.Subject)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !p.Admin() {
			WriteError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
