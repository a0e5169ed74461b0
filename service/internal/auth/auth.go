// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongPassword = errors.New("wrong room password")
)

// Claims bind a token to one seat of one session.
type Claims struct {
	SessionID uuid.UUID `json:"sid"`
	PlayerID  uuid.UUID `json:"pid"`
	Seat      uint8     `json:"seat"`
	Name      string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator signs and checks seat tokens with an HMAC key.
type Authenticator struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// New returns an Authenticator. A zero ttl defaults to 24 hours.
func New(secret, issuer string, ttl time.Duration) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{key: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for seat of sessionID.
func (a *Authenticator) Issue(sessionID, playerID uuid.UUID, seat uint8, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		PlayerID:  playerID,
		Seat:      seat,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   playerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tok and returns its claims.
func (a *Authenticator) Verify(tok string) (*Claims, error) {
	if tok == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
	)
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == uuid.Nil {
		return nil, fmt.Errorf("%w: no session", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value, falling
// back to query when the header is absent.
func BearerToken(header, query string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return query
}

// HashRoomPassword hashes the password of a private room.
func HashRoomPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash room password: %w", err)
	}
	return string(h), nil
}

// CheckRoomPassword compares pw against a stored hash. An empty hash means an
// open room.
func CheckRoomPassword(hash, pw string) error {
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
