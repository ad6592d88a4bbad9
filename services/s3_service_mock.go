package services

import (
	"context"
	"fmt"
	"sync"
)

// MockS3Service is an in-memory ObjectStorage for testing
type MockS3Service struct {
	uploadedFiles map[string][]byte // map of S3 key to file content
	contentTypes  map[string]string
	failUploads   bool
	mu            sync.RWMutex
}

var _ ObjectStorage = (*MockS3Service)(nil)

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{
		uploadedFiles: make(map[string][]byte),
		contentTypes:  make(map[string]string),
	}
}

// FailUploads makes every following PutObject return an error
func (m *MockS3Service) FailUploads() {
	m.mu.Lock()
	m.failUploads = true
	m.mu.Unlock()
}

// PutObject simulates uploading a file to S3
func (m *MockS3Service) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUploads {
		return fmt.Errorf("failed to upload to S3: mock failure for %s", key)
	}
	m.uploadedFiles[key] = append([]byte(nil), body...)
	m.contentTypes[key] = contentType
	return nil
}

// PublicURL returns the virtual-hosted URL of a test bucket
func (m *MockS3Service) PublicURL(key string) string {
	return objectURL("", "test-bucket", "us-east-1", key)
}

// GetUploadedFiles returns all uploaded files (for testing assertions)
func (m *MockS3Service) GetUploadedFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent race conditions
	files := make(map[string][]byte, len(m.uploadedFiles))
	for k, v := range m.uploadedFiles {
		files[k] = v
	}
	return files
}

// ContentType returns the content type a key was stored with
func (m *MockS3Service) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentTypes[key]
}

// FileExists checks if a file exists in mock storage
func (m *MockS3Service) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.uploadedFiles[key]
	return exists
}
