package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lynsa/outreach-backend/internal/models"
)

// ErrAttachmentNotFound is returned when no attachment exists for a handle.
var ErrAttachmentNotFound = errors.New("attachment not found")

// Vault stores binary attachments and hands back a stable retrieval handle.
// Payloads are written once and never mutated.
type Vault interface {
	Store(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
	Retrieve(ctx context.Context, handle string) (*models.Attachment, error)
}

// PostgresVault keeps attachment payloads in the attachments table.
type PostgresVault struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresVault {
	return &PostgresVault{pool: pool}
}

func (v *PostgresVault) Store(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	handle := uuid.New().String()

	_, err := v.pool.Exec(ctx, `
		INSERT INTO attachments (handle, file_name, mime_type, data)
		VALUES ($1, $2, $3, $4)
	`, handle, fileName, mimeType, data)

	if err != nil {
		return "", fmt.Errorf("failed to store attachment: %w", err)
	}

	return handle, nil
}

func (v *PostgresVault) Retrieve(ctx context.Context, handle string) (*models.Attachment, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return nil, ErrAttachmentNotFound
	}

	att := &models.Attachment{Handle: handle}

	err := v.pool.QueryRow(ctx, `
		SELECT file_name, mime_type, data
		FROM attachments
		WHERE handle = $1
	`, handle).Scan(&att.FileName, &att.MimeType, &att.Data)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttachmentNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to retrieve attachment: %w", err)
	}

	return att, nil
}
