package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
)

// VisitorCookie names the session cookie carrying the anonymous visitor token.
const VisitorCookie = "mdraft_visitor"

type visitorClaims struct {
	jwt.RegisteredClaims
}

// VisitorAuth mints and verifies the signed visitor tokens that give
// anonymous uploaders a stable identity. The visitor id is the token
// subject; no server-side session state exists.
type VisitorAuth struct {
	secret []byte
	secure bool
	ttl    time.Duration
}

func NewVisitorAuth(secret string, secure bool, ttl time.Duration) *VisitorAuth {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &VisitorAuth{secret: []byte(secret), secure: secure, ttl: ttl}
}

// Mint creates a fresh visitor id, signs it and sets the session cookie.
func (a *VisitorAuth) Mint(w http.ResponseWriter) (string, error) {
	id := ulid.Make().String()
	now := time.Now()
	claims := visitorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Parse returns the visitor id from the request cookie, if a valid one exists.
func (a *VisitorAuth) Parse(r *http.Request) (string, error) {
	c, err := r.Cookie(VisitorCookie)
	if err != nil {
		return "", errors.New("missing visitor token")
	}
	claims := &visitorClaims{}
	tkn, err := jwt.ParseWithClaims(c.Value, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return "", errors.New("invalid visitor token")
	}
	return claims.Subject, nil
}

type ownerCtxKey struct{}

func contextWithOwner(ctx context.Context, owner model.Owner) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, owner)
}

func withOwner(r *http.Request, owner model.Owner) *http.Request {
	ctx := contextWithOwner(r.Context(), owner)
	ctx = logging.WithOwnerID(ctx, owner.Key())
	return r.WithContext(ctx)
}

func ownerFrom(r *http.Request) (model.Owner, bool) {
	owner, ok := r.Context().Value(ownerCtxKey{}).(model.Owner)
	return owner, ok
}
