package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lynsa/outreach-backend/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// SaveThread inserts or updates a thread record. The correlation id is the
// primary key; the lifecycle state never moves backwards from replied.
func SaveThread(ctx context.Context, pool *pgxpool.Pool, thread *models.Thread) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO threads (
			correlation_id,
			sender_display_name,
			recipient_email,
			body_text,
			payment_reference,
			owner_user_id,
			state,
			outbound_attachments,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (correlation_id) DO UPDATE SET
			sender_display_name = EXCLUDED.sender_display_name,
			recipient_email = EXCLUDED.recipient_email,
			body_text = EXCLUDED.body_text,
			payment_reference = EXCLUDED.payment_reference,
			owner_user_id = EXCLUDED.owner_user_id,
			state = CASE WHEN threads.state = 'replied' THEN threads.state ELSE EXCLUDED.state END,
			outbound_attachments = EXCLUDED.outbound_attachments,
			updated_at = EXCLUDED.updated_at
	`,
		thread.CorrelationID,
		thread.Sender,
		thread.Recipient,
		thread.Body,
		thread.PaymentID,
		thread.OwnerUserID,
		thread.State,
		thread.Attachments,
		thread.CreatedAt,
		thread.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	return nil
}

// SaveReply appends a reply row to a thread and marks the thread replied.
// Both statements run in one transaction so the durable record never shows
// a replied thread without its reply, or vice versa.
func SaveReply(ctx context.Context, pool *pgxpool.Pool, correlationID string, reply *models.Reply) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE threads
		SET state = 'replied', updated_at = $2
		WHERE correlation_id = $1
	`, correlationID, reply.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to mark thread replied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO replies (correlation_id, from_display, body_text, received_at, raw_subject, attachment_handle)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, correlationID, reply.From, reply.Content, reply.ReceivedAt, reply.Subject, reply.AttachmentHandle)
	if err != nil {
		return fmt.Errorf("failed to save reply: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reply: %w", err)
	}

	return nil
}

// GetThread returns a thread with its replies by correlation id.
func GetThread(ctx context.Context, pool *pgxpool.Pool, correlationID string) (*models.Thread, error) {
	var thread models.Thread

	err := pool.QueryRow(ctx, `
		SELECT
			correlation_id,
			sender_display_name,
			recipient_email,
			body_text,
			payment_reference,
			owner_user_id,
			state,
			outbound_attachments,
			created_at,
			updated_at
		FROM threads
		WHERE correlation_id = $1
	`, correlationID).Scan(
		&thread.CorrelationID,
		&thread.Sender,
		&thread.Recipient,
		&thread.Body,
		&thread.PaymentID,
		&thread.OwnerUserID,
		&thread.State,
		&thread.Attachments,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	replies, err := getRepliesForThreads(ctx, pool, []string{correlationID})
	if err != nil {
		return nil, err
	}
	thread.Replies = replies[correlationID]
	if thread.Replies == nil {
		thread.Replies = []models.Reply{}
	}

	return &thread, nil
}

// GetThreadsForOwner returns a user's threads, newest first, up to limit.
func GetThreadsForOwner(ctx context.Context, pool *pgxpool.Pool, ownerUserID string, limit int) ([]*models.Thread, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			correlation_id,
			sender_display_name,
			recipient_email,
			body_text,
			payment_reference,
			owner_user_id,
			state,
			outbound_attachments,
			created_at,
			updated_at
		FROM threads
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerUserID, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	var ids []string
	for rows.Next() {
		var thread models.Thread
		if err := rows.Scan(
			&thread.CorrelationID,
			&thread.Sender,
			&thread.Recipient,
			&thread.Body,
			&thread.PaymentID,
			&thread.OwnerUserID,
			&thread.State,
			&thread.Attachments,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		thread.Replies = []models.Reply{}
		threads = append(threads, &thread)
		ids = append(ids, thread.CorrelationID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	replyMap, err := getRepliesForThreads(ctx, pool, ids)
	if err != nil {
		return nil, err
	}
	for _, thread := range threads {
		if replies, ok := replyMap[thread.CorrelationID]; ok {
			thread.Replies = replies
		}
	}

	return threads, nil
}

// getRepliesForThreads fetches replies for multiple threads in a single query.
func getRepliesForThreads(ctx context.Context, pool *pgxpool.Pool, correlationIDs []string) (map[string][]models.Reply, error) {
	if len(correlationIDs) == 0 {
		return make(map[string][]models.Reply), nil
	}

	rows, err := pool.Query(ctx, `
		SELECT correlation_id, from_display, body_text, received_at, raw_subject, COALESCE(attachment_handle, '')
		FROM replies
		WHERE correlation_id = ANY($1)
		ORDER BY received_at
	`, correlationIDs)

	if err != nil {
		return nil, fmt.Errorf("failed to get replies: %w", err)
	}
	defer rows.Close()

	replyMap := make(map[string][]models.Reply)
	for rows.Next() {
		var correlationID string
		var reply models.Reply
		if err := rows.Scan(
			&correlationID,
			&reply.From,
			&reply.Content,
			&reply.ReceivedAt,
			&reply.Subject,
			&reply.AttachmentHandle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		replyMap[correlationID] = append(replyMap[correlationID], reply)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replies: %w", err)
	}

	return replyMap, nil
}
