package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Errors returned when a token cannot yield a Claim.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrMissingLevel = errors.New("token has no access level claim")
)

// TokenClaims is the JWT payload. The access level travels in "acc".
type TokenClaims struct {
	jwt.RegisteredClaims
	Access *int `json:"acc,omitempty"`
}

// ClaimFromToken reads the access level from an already verified token.
func ClaimFromToken(tok *jwt.Token) (Claim, error) {
	if tok == nil || !tok.Valid {
		return Claim{}, ErrTokenInvalid
	}
	tc, ok := tok.Claims.(*TokenClaims)
	if !ok {
		return Claim{}, fmt.Errorf("%w: unexpected claims type %T", ErrTokenInvalid, tok.Claims)
	}
	if tc.Access == nil {
		return Claim{}, ErrMissingLevel
	}
	return Claim{Subject: tc.Subject, Level: Level(*tc.Access)}, nil
}

// ParseToken verifies an HS256 token signed with secret and returns its claim.
func ParseToken(tokenString, secret string) (Claim, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return ClaimFromToken(tok)
}

// IssueToken signs an HS256 token for subject at level.
func IssueToken(subject string, level Level, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now()
	acc := int(level)
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Access: &acc,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

type claimKey struct{}

// WithClaim stores c in ctx.
func WithClaim(ctx context.Context, c Claim) context.Context {
	return context.WithValue(ctx, claimKey{}, c)
}

// ClaimFrom returns the claim stored in ctx.
func ClaimFrom(ctx context.Context) (Claim, bool) {
	c, ok := ctx.Value(claimKey{}).(Claim)
	return c, ok
}
