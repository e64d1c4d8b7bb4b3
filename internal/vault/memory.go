package vault

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lynsa/outreach-backend/internal/models"
)

// MemoryVault is an in-process Vault used in tests and when running without
// a database.
type MemoryVault struct {
	mu    sync.RWMutex
	items map[string]*models.Attachment
}

func NewMemory() *MemoryVault {
	return &MemoryVault{items: make(map[string]*models.Attachment)}
}

func (v *MemoryVault) Store(_ context.Context, fileName, mimeType string, data []byte) (string, error) {
	handle := uuid.New().String()

	stored := make([]byte, len(data))
	copy(stored, data)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.items[handle] = &models.Attachment{
		Handle:   handle,
		FileName: fileName,
		MimeType: mimeType,
		Data:     stored,
	}

	return handle, nil
}

func (v *MemoryVault) Retrieve(_ context.Context, handle string) (*models.Attachment, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	att, ok := v.items[handle]
	if !ok {
		return nil, ErrAttachmentNotFound
	}
	return att, nil
}
