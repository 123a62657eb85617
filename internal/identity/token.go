package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes carried by custodian tokens.
const (
	ScopeAppend = "ledger:append"
	ScopeRead   = "ledger:read"
)

// DefaultScopes is granted when a token request names none.
var DefaultScopes = []string{ScopeAppend, ScopeRead}

// ErrShortSigningKey is returned for HMAC keys shorter than 32 bytes.
var ErrShortSigningKey = errors.New("signing key must be at least 32 bytes")

// CustodianClaims are the JWT claims for a custodian token.
type CustodianClaims struct {
	jwt.RegisteredClaims
	CustodianID string   `json:"custodian_id"`
	Scopes      []string `json:"scopes"`
}

// TokenIssuer issues and verifies custodian tokens signed with HS256.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	issuer: the "iss" claim value; typically the service base URL.
//	ttl: token lifetime (default: 1 hour).
func NewTokenIssuer(key []byte, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) < 32 {
		return nil, ErrShortSigningKey
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{key: append([]byte(nil), key...), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed token for custodianID with the requested scopes.
func (t *TokenIssuer) Issue(custodianID string, scopes []string) (string, error) {
	now := time.Now().UTC()
	claims := CustodianClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   custodianID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		CustodianID: custodianID,
		Scopes:      scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a custodian token, returning its claims on success.
func (t *TokenIssuer) Verify(tokenStr string) (*CustodianClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CustodianClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.key, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*CustodianClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// HasScope reports whether claims grant scope.
func HasScope(claims *CustodianClaims, scope string) bool {
	if claims == nil {
		return false
	}
	for _, s := range claims.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
