// Package token mints and verifies the signed access and refresh tokens.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	ierrors "github.com/jrsteele09/carnotes-server/internal/errors"
	"github.com/pkg/errors"
)

// Kind selects which secret and lifetime a token uses.
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrInvalidToken covers bad signatures, wrong algorithms, malformed input and
// expiry alike.
var ErrInvalidToken = ierrors.ErrInvalidToken

const (
	DefaultAccessTokenExpiry  = 300 * time.Second
	DefaultRefreshTokenExpiry = 24 * time.Hour
)

// Payload is what a token says about its bearer.
type Payload struct {
	UserID string
	Roles  []string
}

// Claims is the JSON body of every token. The jti keeps two tokens minted for
// the same user in the same second distinct.
type Claims struct {
	UserID    string   `json:"userId"`
	UserRoles []string `json:"userRoles"`
	jwt.RegisteredClaims
}

type Codec struct {
	signers map[Kind]Signer
	expiry  map[Kind]time.Duration
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) CodecOption {
	return func(c *Codec) {
		if accessTokenExpiry > 0 {
			c.expiry[Access] = accessTokenExpiry
		}
		if refreshTokenExpiry > 0 {
			c.expiry[Refresh] = refreshTokenExpiry
		}
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(accessSigner, refreshSigner Signer, opts ...CodecOption) *Codec {
	c := &Codec{
		signers: map[Kind]Signer{
			Access:  accessSigner,
			Refresh: refreshSigner,
		},
		expiry: map[Kind]time.Duration{
			Access:  DefaultAccessTokenExpiry,
			Refresh: DefaultRefreshTokenExpiry,
		},
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Expiry(kind Kind) time.Duration {
	return c.expiry[kind]
}

// Mint signs a token of the given kind that expires Expiry(kind) from now.
func (c *Codec) Mint(kind Kind, payload Payload) (string, error) {
	signer, ok := c.signers[kind]
	if !ok {
		return "", errors.Errorf("[Codec.Mint] unknown token kind %s", kind)
	}

	now := c.nowFunc()
	roles := append([]string{}, payload.Roles...)
	claims := Claims{
		UserID:    payload.UserID,
		UserRoles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry[kind])),
		},
	}

	signed, err := signer.Sign(claims)
	if err != nil {
		return "", errors.Wrapf(err, "[Codec.Mint] %s token", kind)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry against the secret for kind.
// Every failure is reported as ErrInvalidToken.
func (c *Codec) Verify(kind Kind, raw string) (Payload, error) {
	signer, ok := c.signers[kind]
	if !ok || raw == "" {
		return Payload{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(raw, claims, signer.GetVerificationKey)
	if err != nil {
		return Payload{}, ierrors.Wrapf(ErrInvalidToken, "%s token: %v", kind, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return Payload{}, ErrInvalidToken
	}
	return claims.payload(), nil
}

// DecodeUnsafe reads the payload without checking signature or expiry. It is
// only used to find whose sessions to revoke when a spent refresh token shows
// up again, and it never fails loudly.
func DecodeUnsafe(raw string) (Payload, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Payload{}, false
	}
	if claims.UserID == "" {
		return Payload{}, false
	}
	return claims.payload(), true
}

func (cl *Claims) payload() Payload {
	roles := cl.UserRoles
	if roles == nil {
		roles = []string{}
	}
	return Payload{UserID: cl.UserID, Roles: roles}
}
