package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "feedd"

// ErrInvalidKey is returned for keys that fail validation
var ErrInvalidKey = errors.New("invalid api key")

// KeyClaims are the claims carried by an API key
type KeyClaims struct {
	Owner string `json:"owner"`
	// Push allows uploads; Delete allows unlisting
	Push   bool `json:"push"`
	Delete bool `json:"delete"`
	jwt.RegisteredClaims
}

// KeyManager issues and validates API keys signed as HS256 JWTs
type KeyManager struct {
	secretKey []byte
}

// NewKeyManager creates a key manager for the given secret
func NewKeyManager(secretKey string) *KeyManager {
	return &KeyManager{secretKey: []byte(secretKey)}
}

// GenerateKey issues a key for owner. A zero duration never expires.
func (k *KeyManager) GenerateKey(owner string, duration time.Duration) (string, error) {
	now := time.Now()

	claims := KeyClaims{
		Owner:  owner,
		Push:   true,
		Delete: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  owner,
			Issuer:   issuer,
		},
	}
	if duration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(duration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(k.secretKey)
}

// ValidateKey validates an API key and returns its claims
func (k *KeyManager) ValidateKey(key string) (*KeyClaims, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	token, err := jwt.ParseWithClaims(key, &KeyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return k.secretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	if claims, ok := token.Claims.(*KeyClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidKey
}

// Fingerprint returns a short, loggable hash of a key
func Fingerprint(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:6])
}

// DefaultKeyDuration is the lifetime of keys issued without an explicit one
const DefaultKeyDuration = 90 * 24 * time.Hour
