package qsdk

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "toolsite"

// normalizeKey turns a base URL into a stable keyring entry name so
// https://host/ and https://host share credentials.
func normalizeKey(baseURL string) string {
	s := strings.TrimSpace(baseURL)
	s = strings.TrimRight(s, "/")
	return strings.ToLower(s)
}

// SaveAPIKey stores key in the OS keyring for baseURL.
func SaveAPIKey(baseURL, key string) error {
	return keyring.Set(keyringService, normalizeKey(baseURL), key)
}

// LoadAPIKey returns the stored key, or "" when there is none.
func LoadAPIKey(baseURL string) (string, error) {
	key, err := keyring.Get(keyringService, normalizeKey(baseURL))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return key, err
}

// DeleteAPIKey removes the stored key. A missing entry is not an error.
func DeleteAPIKey(baseURL string) error {
	err := keyring.Delete(keyringService, normalizeKey(baseURL))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
