// ABOUTME: JWT token verification and issuing for authenticating API requests
// ABOUTME: Uses HS256 signing with configurable secret; supports capability tokens

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Caller, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the caller identity from the "sub"
// claim, plus the optional "scope" and "seq" claims used by capability tokens.
func (v *JWTVerifier) Verify(tokenString string) (*Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	caller := &Caller{ID: sub, Seq: -1}
	if scope, ok := claims["scope"].(string); ok {
		caller.Scope = scope
	}
	if seq, ok := claims["seq"].(float64); ok {
		caller.Seq = int64(seq)
	}

	return caller, nil
}

// Generate creates a new caller token for the given identity with expiration
func (v *JWTVerifier) Generate(identity string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// GenerateCapability creates a short-lived token whose subject is the given
// identity and whose scope restricts it to applying reputation snapshots.
// The sync sequence is embedded so the apply side can reject stale chains.
// Only the sync orchestrator mints these; they never leave the process except
// on the self-addressed hop-2 call.
func (v *JWTVerifier) GenerateCapability(identity string, seq int64, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   identity,
		"scope": ScopeReputationApply,
		"seq":   seq,
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
