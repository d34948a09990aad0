package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JakeFAU/inkpress/internal/blog"
)

const (
	tokenIssuer     = "inkpress"
	defaultTokenTTL = 12 * time.Hour
)

// ErrBadToken is returned for missing, expired or forged bearer tokens.
var ErrBadToken = errors.New("invalid token")

// Users authenticates API callers; blog.Service satisfies it.
type Users interface {
	Authenticate(ctx context.Context, userID, password string) (blog.User, error)
	GetUser(ctx context.Context, id string) (blog.User, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Auth issues and checks HS256 bearer tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
	users  Users
}

// NewAuth builds an Auth. ttl <= 0 uses 12 hours.
func NewAuth(secret string, ttl time.Duration, clock Clock, users Users) (*Auth, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Auth{secret: []byte(secret), ttl: ttl, clock: clock, users: users}, nil
}

// Login checks credentials and returns a signed token with its expiry.
func (a *Auth) Login(ctx context.Context, userID, password string) (string, time.Time, error) {
	u, err := a.users.Authenticate(ctx, userID, password)
	if err != nil {
		return "", time.Time{}, err
	}
	return a.Issue(u)
}

// Issue signs a token for u.
func (a *Auth) Issue(u blog.User) (string, time.Time, error) {
	now := a.clock.Now()
	exp := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks a token and loads its user.
func (a *Auth) Verify(ctx context.Context, token string) (blog.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return blog.User{}, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	u, err := a.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return blog.User{}, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	if u.Status != 1 {
		return blog.User{}, fmt.Errorf("%w: account disabled", ErrBadToken)
	}
	return u, nil
}

type userKey struct{}

// UserFrom returns the user stored by Middleware.
func UserFrom(ctx context.Context) (blog.User, bool) {
	u, ok := ctx.Value(userKey{}).(blog.User)
	return u, ok
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="inkpress"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		u, err := a.Verify(r.Context(), strings.TrimSpace(raw))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="inkpress", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func requireSuper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFrom(r.Context()); !ok || !u.Super {
			writeError(w, http.StatusForbidden, "super user required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
