// Package auth provides the session token codec, password hashing and
// Google ID-token verification.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the iss claim stamped into every session token.
const DefaultIssuer = "confera"

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens, unexpected
	// algorithms, wrong issuers and tokens minted with the other secret.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for authentic tokens whose exp has passed.
	ErrTokenExpired = errors.New("token expired")
)

// AccessSubject is the membership snapshot embedded in an access token.
type AccessSubject struct {
	UserID         string
	Email          string
	Role           string
	OrganizationID string
}

// AccessClaims is the set of custom claims stored inside a Confera access token.
// Role and OrganizationID are a cache of membership state at mint time.
type AccessClaims struct {
	UserID         string `json:"uid"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the user id; organization and role are
// re-derived on every refresh.
type RefreshClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// CodecConfig configures a Codec.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec mints and verifies access and refresh tokens with independent secrets.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token TTLs must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           cfg.Now,
	}, nil
}

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess signs an access token for sub and returns it with its expiry.
func (c *Codec) MintAccess(sub AccessSubject) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		UserID:           sub.UserID,
		Email:            sub.Email,
		Role:             sub.Role,
		OrganizationID:   sub.OrganizationID,
		RegisteredClaims: c.registered(sub.UserID, now, exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, exp, nil
}

// MintRefresh signs a refresh token for userID and returns it with its expiry.
func (c *Codec) MintRefresh(userID string) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		UserID:           userID,
		RegisteredClaims: c.registered(userID, now, exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, exp, nil
}

// VerifyAccess validates an access token. The error is always ErrTokenInvalid
// or ErrTokenExpired.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims, c.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.OrganizationID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token. The error is always ErrTokenInvalid
// or ErrTokenExpired.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenStr, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		// jwt/v5 checks the signature before claims, so an expired error
		// implies the token is authentic.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
