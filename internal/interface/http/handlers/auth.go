package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JWT AUTHENTICATION
// HS256 bearer tokens. The subject claim is the acting user id.
// ══════════════════════════════════════════════════════════════════════════════

// JWTAuth validates bearer tokens and checks their subject.
type JWTAuth struct {
	secret []byte
	issuer string
	clock  timeutil.Clock
}

// NewJWTAuth creates an authenticator. An empty issuer skips the iss check.
func NewJWTAuth(secret, issuer string, clock timeutil.Clock) *JWTAuth {
	if clock == nil {
		clock = timeutil.System()
	}
	return &JWTAuth{secret: []byte(secret), issuer: issuer, clock: clock}
}

// Subject validates the request's bearer token and returns its subject.
func (a *JWTAuth) Subject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", shared.ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", shared.WrapError("auth", "Authenticate", shared.ErrUnauthorized, "invalid token", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", shared.ErrInvalidToken
	}
	return sub, nil
}

// Authorize checks that the token subject equals userID.
func (a *JWTAuth) Authorize(r *http.Request, userID string) error {
	sub, err := a.Subject(r)
	if err != nil {
		return err
	}
	if sub != strings.TrimSpace(userID) {
		return shared.ErrSubjectDenied
	}
	return nil
}

// Issue signs a token for subject valid for ttl.
func (a *JWTAuth) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: empty subject")
	}
	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
