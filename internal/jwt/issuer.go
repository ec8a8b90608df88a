// Package jwt mints and verifies the service's HS256 access and refresh tokens.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Token classes carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// minSecretLen is the HS256 key size.
const minSecretLen = 32

var (
	// ErrTokenInvalid covers bad signature, wrong issuer, wrong algorithm and malformed tokens.
	ErrTokenInvalid = errors.New("invalid_token")
	// ErrTokenExpired is returned for an otherwise valid token past its exp.
	ErrTokenExpired = errors.New("token_expired")
	// ErrWeakSecret is returned by NewIssuer for short signing secrets.
	ErrWeakSecret = errors.New("jwt: signing secret must be at least 32 bytes")
)

// Claims are the claims of both token classes. JTI is empty on access tokens.
type Claims struct {
	Type string `json:"typ"`
	jwtv5.RegisteredClaims
}

// UserID returns the subject, the local user id.
func (c *Claims) UserID() string { return c.RegisteredClaims.Subject }

// TokenID returns the jti of a refresh token.
func (c *Claims) TokenID() string { return c.RegisteredClaims.ID }

// Expiry returns the exp instant, zero if absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Options configures an Issuer.
type Options struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

// Issuer signs and verifies tokens with a single HMAC secret. It holds no
// mutable state and is safe for concurrent use.
type Issuer struct {
	secret     []byte
	iss        string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.Secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	if strings.TrimSpace(opts.Issuer) == "" {
		return nil, errors.New("jwt: issuer is required")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("jwt: access and refresh TTL must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(opts.Secret))
	copy(secret, opts.Secret)
	return &Issuer{
		secret:     secret,
		iss:        opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        now,
	}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess returns a signed access token for userID and its expiry.
func (i *Issuer) IssueAccess(userID string) (string, time.Time, error) {
	return i.sign(userID, "", TypeAccess, i.accessTTL)
}

// IssueRefresh returns a signed refresh token carrying jti and its expiry.
// The caller generates jti so the whitelist entry can be keyed by the same value.
func (i *Issuer) IssueRefresh(userID, jti string) (string, time.Time, error) {
	if jti == "" {
		return "", time.Time{}, errors.New("jwt: refresh token requires a jti")
	}
	return i.sign(userID, jti, TypeRefresh, i.refreshTTL)
}

func (i *Issuer) sign(sub, jti, typ string, ttl time.Duration) (string, time.Time, error) {
	if sub == "" {
		return "", time.Time{}, errors.New("jwt: subject is required")
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   sub,
			ID:        jti,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
// It returns ErrTokenExpired for expired tokens and ErrTokenInvalid for
// everything else; the two never overlap.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	var claims Claims
	tk, err := jwtv5.ParseWithClaims(token, &claims, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(i.iss),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithTimeFunc(i.now),
	)
	if err != nil {
		// Signature is checked before time claims, so an expired error implies a genuine token.
		if errors.Is(err, jwtv5.ErrTokenExpired) && !errors.Is(err, jwtv5.ErrTokenInvalidIssuer) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tk.Valid || claims.RegisteredClaims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	switch claims.Type {
	case TypeAccess, TypeRefresh:
	default:
		return nil, fmt.Errorf("%w: unknown token class %q", ErrTokenInvalid, claims.Type)
	}
	return &claims, nil
}
