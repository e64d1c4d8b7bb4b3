package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lynsa/outreach-backend/internal/correlation"
	"github.com/lynsa/outreach-backend/internal/db"
	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/models"
)

var (
	// ErrThreadNotFound is returned when no thread exists for a correlation id.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrDuplicateThread is returned when a correlation id is already tracked.
	ErrDuplicateThread = errors.New("thread already exists")
)

// historyLimit caps per-user message history queries.
const historyLimit = 50

// Store is the authoritative record of every tracked thread. Three tiers:
// the in-memory map is authoritative for the running process, the database
// is written synchronously on every mutation for durability, and a periodic
// JSON snapshot of the map warms the cache on restart. The tiers are updated
// independently; the snapshot may lag memory by up to one interval.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*models.Thread

	// pool may be nil, which disables the durable tier (tests, local runs).
	pool         *pgxpool.Pool
	snapshotPath string
	domain       string
}

func New(pool *pgxpool.Pool, snapshotPath, domain string) *Store {
	return &Store{
		threads:      make(map[string]*models.Thread),
		pool:         pool,
		snapshotPath: snapshotPath,
		domain:       domain,
	}
}

// Domain returns the correlation domain used to decorate identifiers.
func (s *Store) Domain() string {
	return s.domain
}

// CreateThread registers a new thread in state sent. The thread must carry a
// decorated correlation id; duplicate ids are rejected, never overwritten.
func (s *Store) CreateThread(ctx context.Context, thread *models.Thread) error {
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now
	if thread.State == "" {
		thread.State = models.StateSent
	}
	if thread.Replies == nil {
		thread.Replies = []models.Reply{}
	}

	s.mu.Lock()
	if _, exists := s.threads[thread.CorrelationID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateThread, thread.CorrelationID)
	}
	s.threads[thread.CorrelationID] = cloneThread(thread)
	s.mu.Unlock()

	// The database tier is the durability guarantee; a failed write is loud
	// but does not fail the in-memory registration, which the running
	// process keeps serving from.
	if s.pool != nil {
		if err := db.SaveThread(ctx, s.pool, thread); err != nil {
			logging.Log.Errorf("store: database write failed for %s, thread only durable after next snapshot: %v", thread.CorrelationID, err)
		}
	}

	return nil
}

// Has reports whether a bare (undecorated) identifier maps to a tracked
// thread in the in-memory tier.
func (s *Store) Has(bareID string) bool {
	decorated := correlation.Decorate(bareID, s.domain)

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[decorated]
	return ok
}

// GetThread returns a thread by decorated correlation id. Memory is
// consulted first; on a miss the database tier is read and the in-memory
// tier warmed, so restarts do not lose status reads.
func (s *Store) GetThread(ctx context.Context, correlationID string) (*models.Thread, error) {
	s.mu.RLock()
	thread, ok := s.threads[correlationID]
	if ok {
		defer s.mu.RUnlock()
		return cloneThread(thread), nil
	}
	s.mu.RUnlock()

	if s.pool == nil {
		return nil, ErrThreadNotFound
	}

	dbThread, err := db.GetThread(ctx, s.pool, correlationID)
	if err != nil {
		if errors.Is(err, db.ErrThreadNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	// Another goroutine may have warmed the entry meanwhile; keep the
	// resident one, it is at least as fresh.
	if resident, exists := s.threads[correlationID]; exists {
		dbThread = resident
	} else {
		s.threads[correlationID] = dbThread
	}
	s.mu.Unlock()

	return cloneThread(dbThread), nil
}

// AppendReply attributes an inbound reply to a thread and transitions its
// state sent -> replied. It is the sole mutator of thread state; the
// transition is monotonic and additional replies accumulate on an already
// replied thread. Idempotence per mailbox message is the caller's job (the
// poller's processed-message ledger).
func (s *Store) AppendReply(ctx context.Context, correlationID string, reply models.Reply) (*models.Thread, error) {
	if reply.ReceivedAt.IsZero() {
		reply.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	thread, ok := s.threads[correlationID]
	s.mu.Unlock()

	if !ok {
		// Read-through: after a restart the thread may only exist durably.
		if _, err := s.GetThread(ctx, correlationID); err != nil {
			return nil, err
		}
		s.mu.Lock()
		thread, ok = s.threads[correlationID]
		s.mu.Unlock()
		if !ok {
			return nil, ErrThreadNotFound
		}
	}

	s.mu.Lock()
	thread.Replies = append(thread.Replies, reply)
	thread.State = models.StateReplied
	thread.UpdatedAt = reply.ReceivedAt
	updated := cloneThread(thread)
	s.mu.Unlock()

	if s.pool != nil {
		if err := db.SaveReply(ctx, s.pool, correlationID, &reply); err != nil {
			logging.Log.Errorf("store: database write failed for reply on %s, reply only durable after next snapshot: %v", correlationID, err)
		}
	}

	return updated, nil
}

// ThreadsForOwner returns a user's threads, newest first, up to the history
// limit. Served from the database tier when available so history survives
// restarts; otherwise from memory.
func (s *Store) ThreadsForOwner(ctx context.Context, ownerUserID string) ([]*models.Thread, error) {
	if s.pool != nil {
		threads, err := db.GetThreadsForOwner(ctx, s.pool, ownerUserID, historyLimit)
		if err != nil {
			return nil, err
		}
		return threads, nil
	}

	s.mu.RLock()
	var threads []*models.Thread
	for _, thread := range s.threads {
		if thread.OwnerUserID == ownerUserID {
			threads = append(threads, cloneThread(thread))
		}
	}
	s.mu.RUnlock()

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	if len(threads) > historyLimit {
		threads = threads[:historyLimit]
	}

	return threads, nil
}

// cloneThread copies a thread so callers never share slices with the map.
func cloneThread(t *models.Thread) *models.Thread {
	clone := *t
	clone.Replies = make([]models.Reply, len(t.Replies))
	copy(clone.Replies, t.Replies)
	if t.Attachments != nil {
		clone.Attachments = make([]models.OutboundAttachment, len(t.Attachments))
		copy(clone.Attachments, t.Attachments)
	}
	return &clone
}
