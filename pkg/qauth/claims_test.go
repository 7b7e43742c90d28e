package qauth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSignAndParse(t *testing.T) {
	s, err := NewSigner(testSecret, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, expires, err := s.Sign("dl:abc", "out.json")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Key != "dl:abc" || claims.Filename != "out.json" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	peek, err := ExpiresAt(token)
	if err != nil || !peek.Equal(expires.Truncate(time.Second)) {
		t.Errorf("Expected unverified expiry %v, got %v (%v)", expires, peek, err)
	}
}

func TestParseRejects(t *testing.T) {
	s, _ := NewSigner(testSecret, time.Minute)
	token, _, _ := s.Sign("dl:abc", "a")

	other, _ := NewSigner([]byte("another-secret-of-enough-bytes"), time.Minute)
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected forged token to fail, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := s.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to fail, got %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, DownloadClaims{Key: "k"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := s.Parse(none); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected alg=none token to fail, got %v", err)
	}

	if _, err := NewSigner([]byte("short"), time.Minute); err == nil {
		t.Error("Expected short secret to be rejected")
	}
}
