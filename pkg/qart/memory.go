package qart

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MemoryArchive is an in-process Archive for tests and single-node setups
// without object storage.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: map[string]memoryObject{}}
}

func (m *MemoryArchive) EnsureBucket(context.Context) error { return nil }

func (m *MemoryArchive) Put(_ context.Context, key string, data []byte, contentType string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *MemoryArchive) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// PresignedURL returns a memory:// URL; it is only meaningful to tests.
func (m *MemoryArchive) PresignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	u := url.URL{Scheme: "memory", Path: "/" + key, RawQuery: url.Values{"expires": {expiry.String()}}.Encode()}
	return u.String(), nil
}

func (m *MemoryArchive) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

var _ Archive = (*MemoryArchive)(nil)
