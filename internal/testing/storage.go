package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	apperrors "github.com/24ep/studio-sub000/pkg/errors"
)

// MemoryStorage is an in-process object store. Set FailUploads to make every
// Upload return a dependency error.
type MemoryStorage struct {
	mu          sync.Mutex
	objects     map[string][]byte
	FailUploads bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: map[string][]byte{}}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, data io.ReadSeeker, size int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUploads {
		return apperrors.NewDependencyError("object store put", fmt.Errorf("upload of %s refused", key))
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[key] = body
	return nil
}

func (m *MemoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("object", key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStorage) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

// Put stores an object directly, bypassing FailUploads.
func (m *MemoryStorage) Put(key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
}

func (m *MemoryStorage) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, ok
}
