package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)

type Claims struct {
	UserID   string    `json:"uid"`
	DeviceID string    `json:"did"`
	Kind     TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// JTI is the unique token identifier used as the revocation-ledger key.
func (c *Claims) JTI() string {
	return c.ID
}

// Remaining reports how long the token stays naturally valid.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

func MintToken(secret string, userID string, deviceID string, kind TokenKind, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, &claims, nil
}

// ParseToken verifies signature and expiry and checks the declared
// kind; an empty expected kind admits either, which is what logout
// wants. It never consults the revocation ledger; that check belongs
// to the token service.
func ParseToken(tokenStr string, secret string, expected TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.ID == "" || claims.UserID == "" {
		return nil, ErrTokenMalformed
	}
	if expected != "" && claims.Kind != expected {
		return nil, ErrTokenKindMismatch
	}
	return claims, nil
}
