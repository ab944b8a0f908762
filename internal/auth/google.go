package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrGoogleTokenInvalid is returned for any Google ID token that fails
// verification.
var ErrGoogleTokenInvalid = errors.New("google token invalid")

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier checks Google ID tokens against a key source with the
// configured client id as audience.
type GoogleVerifier struct {
	clientID string
	keys     jwt.Keyfunc
	now      func() time.Time
}

// NewGoogleVerifier returns a verifier. keys resolves the RSA key for a
// token's kid, usually NewGoogleJWKS(...).Keyfunc.
func NewGoogleVerifier(clientID string, keys jwt.Keyfunc) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, keys: keys, now: time.Now}
}

// WithClock returns a copy of v that reads time from now.
func (v *GoogleVerifier) WithClock(now func() time.Time) *GoogleVerifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify validates idToken and returns the identity it asserts.
func (v *GoogleVerifier) Verify(_ context.Context, idToken string) (*GoogleIdentity, error) {
	if v.clientID == "" || v.keys == nil {
		return nil, fmt.Errorf("%w: google sign-in is not configured", ErrGoogleTokenInvalid)
	}
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, v.keys,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGoogleTokenInvalid, err)
	}
	if !validGoogleIssuer(claims.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrGoogleTokenInvalid, claims.Issuer)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing sub or email", ErrGoogleTokenInvalid)
	}
	return &GoogleIdentity{
		Subject:       claims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func validGoogleIssuer(iss string) bool {
	for _, want := range googleIssuers {
		if iss == want {
			return true
		}
	}
	return false
}

// NewGoogleJWKS fetches Google's signing keys from jwksURL and keeps them
// refreshed in the background until ctx is done.
func NewGoogleJWKS(ctx context.Context, jwksURL string, logger *slog.Logger) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("google jwks refresh failed", "err", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch google jwks: %w", err)
	}
	return jwks, nil
}
