package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor roles embedded in session credentials.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var (
	// ErrTokenInvalid covers garbled, tampered and wrong-issuer tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for a well-formed but expired token.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the JWT payload: actor id and role plus registered claims.
type Claims struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer issues a signed session credential for an actor.
type TokenIssuer interface {
	Issue(id int, email, role string) (string, error)
}

// TokenVerifier validates a raw credential and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (Claims, error)
}

// Tokens signs and verifies HS256 session credentials.
type Tokens struct {
	issuer string
	key    []byte
	ttl    time.Duration
}

// NewTokens builds a Tokens with the given signing key and validity window.
func NewTokens(issuer, key string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{issuer: issuer, key: []byte(key), ttl: ttl}
}

// Issue signs a credential embedding the actor's id and role.
func (t *Tokens) Issue(id int, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:    id,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Verify validates signature, expiry and issuer and returns the claims.
func (t *Tokens) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return Claims{}, ErrTokenInvalid
	}
	return *claims, nil
}
