// Package qauth signs and verifies the short-lived tokens that address
// cached artifacts.
package qauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const Issuer = "toolsite"

// ErrInvalidToken covers malformed, forged and expired tokens alike.
var ErrInvalidToken = errors.New("invalid download token")

// DownloadClaims identify one cached artifact.
type DownloadClaims struct {
	Key      string `json:"key"` // kv key of the cached artifact
	Filename string `json:"fn"`
	jwt.RegisteredClaims
}

// Signer issues and checks HMAC-signed download tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner needs a secret of at least 16 bytes.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("download secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("download ttl must be positive")
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign issues a token for the artifact cached under key.
func (s *Signer) Sign(key, filename string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := DownloadClaims{
		Key:      key,
		Filename: filename,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Parse verifies token and returns its claims. Only HS256 is accepted.
func (s *Signer) Parse(token string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidToken)
	}
	return claims, nil
}

// ExpiresAt reads the exp claim without verifying the signature. Clients
// use it for display only.
func ExpiresAt(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
