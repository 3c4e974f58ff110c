// mock_cache.go - Mock single-slot upload cache for testing
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/fairlens/backend/internal/models"
)

// MockCache implements intake.Cache, recording every write so tests can
// assert ordering and staleness behavior. Optional error hooks simulate an
// unavailable backend.
type MockCache struct {
	mu sync.Mutex

	metadata    *models.UploadMetadata
	metadataLog []models.UploadMetadata
	blob        []byte
	hasBlob     bool
	deleted     int

	SaveErr     error
	SaveBlobErr error
	SaveMetaErr error
	DeleteErr   error
}

// NewMockCache creates an empty mock cache.
func NewMockCache() *MockCache {
	return &MockCache{}
}

func (m *MockCache) Save(ctx context.Context, blob io.Reader, meta models.UploadMetadata) error {
	if err := m.SaveBlob(ctx, blob); err != nil {
		return err
	}
	return m.SaveMetadata(ctx, meta)
}

func (m *MockCache) SaveMetadata(_ context.Context, meta models.UploadMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveMetaErr != nil {
		return m.SaveMetaErr
	}
	cp := meta
	m.metadata = &cp
	m.metadataLog = append(m.metadataLog, cp)
	return nil
}

func (m *MockCache) SaveBlob(_ context.Context, blob io.Reader) error {
	data, err := io.ReadAll(blob)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveBlobErr != nil {
		return m.SaveBlobErr
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.blob = data
	m.hasBlob = true
	return nil
}

func (m *MockCache) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.metadata = nil
	m.blob = nil
	m.hasBlob = false
	m.deleted++
	return nil
}

// Metadata returns the latest persisted metadata, or nil.
func (m *MockCache) Metadata() *models.UploadMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metadata == nil {
		return nil
	}
	cp := *m.metadata
	return &cp
}

// MetadataLog returns every metadata write in order.
func (m *MockCache) MetadataLog() []models.UploadMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UploadMetadata, len(m.metadataLog))
	copy(out, m.metadataLog)
	return out
}

// Blob returns the persisted blob bytes, or nil.
func (m *MockCache) Blob() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasBlob {
		return nil
	}
	out := make([]byte, len(m.blob))
	copy(out, m.blob)
	return out
}

// Deleted returns how many times Delete succeeded.
func (m *MockCache) Deleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}
