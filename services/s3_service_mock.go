package services

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockBlobStore is an in-memory BlobStore for tests
type MockBlobStore struct {
	objects map[string][]byte
	mu      sync.RWMutex
	// FailUploads makes every Upload fail
	FailUploads bool
}

// NewMockBlobStore creates an empty mock store
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{objects: make(map[string][]byte)}
}

// Upload stores body in memory
func (m *MockBlobStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.FailUploads {
		return fmt.Errorf("mock upload failure")
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = content
	m.mu.Unlock()
	return nil
}

// URL returns a fake presigned URL for a stored key
func (m *MockBlobStore) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("file not found in mock storage: %s", key)
	}

	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

// Delete removes a stored key
func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether key is stored
func (m *MockBlobStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[key]
	return exists
}

// Len reports how many objects are stored
func (m *MockBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
