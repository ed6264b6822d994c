// Package jwtutil extracts the caller identity from a bearer token.
//
// The identity is audit metadata only. It must never be used to authorize access to a
// checkout link: possession of the link token is what grants payment.
package jwtutil

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/franchise-checkout/internal/errorutil"
	"github.com/luikyv/franchise-checkout/internal/timeutil"
)

var (
	ErrNoToken      = errorutil.New("no bearer token")
	ErrNoSecret     = errorutil.New("jwt secret not configured")
	ErrInvalidToken = errorutil.New("invalid bearer token")
	allowedAlgs     = []jose.SignatureAlgorithm{jose.HS256}
	clockSkewLeeway = 30 * time.Second
)

type Identity struct {
	Subject string
	Email   string
	Role    string
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IdentityFromRequest verifies the bearer token of the request with the given HS256
// secret and returns its subject.
func IdentityFromRequest(r *http.Request, secret string) (Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Identity{}, ErrNoToken
	}
	return ParseIdentity(token, secret)
}

func ParseIdentity(token, secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrNoSecret
	}

	parsed, err := jwt.ParseSigned(token, allowedAlgs)
	if err != nil {
		return Identity{}, errorutil.Format("%w: %w", ErrInvalidToken, err)
	}

	var std jwt.Claims
	var extra claims
	if err := parsed.Claims([]byte(secret), &std, &extra); err != nil {
		return Identity{}, errorutil.Format("%w: invalid signature: %w", ErrInvalidToken, err)
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Time: timeutil.Now()}, clockSkewLeeway); err != nil {
		return Identity{}, errorutil.Format("%w: %w", ErrInvalidToken, err)
	}

	if std.Subject == "" {
		return Identity{}, errorutil.Format("%w: sub claim is missing", ErrInvalidToken)
	}

	return Identity{
		Subject: std.Subject,
		Email:   extra.Email,
		Role:    extra.Role,
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// IsMissing reports whether err only means that no identity was presented.
func IsMissing(err error) bool {
	return errors.Is(err, ErrNoToken) || errors.Is(err, ErrNoSecret)
}
