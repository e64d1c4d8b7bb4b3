package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lynsa/outreach-backend/internal/correlation"
	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/models"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/vault"
)

// Notifier receives one event per correlated reply.
type Notifier interface {
	NotifyReply(userID, correlationID string)
}

// Poller checks the outreach mailbox on a fixed interval and attributes
// replies to tracked threads.
//
// Every fetched message is marked seen and remembered in the UID ledger no
// matter how processing went. The only way a UID gets retried is a fetch
// failure, before any parse attempt.
type Poller struct {
	store        *store.Store
	vault        vault.Vault
	notifier     Notifier
	dial         DialFunc
	interval     time.Duration
	quotedMarker string

	inFlight  atomic.Bool
	ledgerMu  sync.Mutex
	processed map[uint32]struct{}
}

// New builds a Poller. notifier may be nil when reply notifications are not
// wired. quotedMarker is the mailbox address, in angle brackets, that starts
// the quoted original inside a reply body.
func New(st *store.Store, v vault.Vault, notifier Notifier, dial DialFunc, interval time.Duration, quotedMarker string) *Poller {
	return &Poller{
		store:        st,
		vault:        v,
		notifier:     notifier,
		dial:         dial,
		interval:     interval,
		quotedMarker: quotedMarker,
		processed:    make(map[uint32]struct{}),
	}
}

// Run polls immediately, then on every interval tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs one mailbox sweep. A sweep still running when the next one
// is due makes the new one a no-op; ticks never stack.
func (p *Poller) PollOnce(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		logging.Log.Warn("Mailbox poll still in progress, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	if err := p.cycle(ctx); err != nil {
		logging.Log.Errorf("Mailbox poll failed: %v", err)
	}
}

func (p *Poller) cycle(ctx context.Context) error {
	client, err := p.dial()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Logout(); err != nil {
			logging.Log.Warnf("Failed to log out of mailbox: %v", err)
		}
	}()

	uids, err := client.SearchUnseen()
	if err != nil {
		return err
	}

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if p.alreadyProcessed(uid) {
			p.markSeen(client, uid)
			continue
		}

		raw, err := client.FetchRaw(uid)
		if err != nil {
			logging.Log.Errorf("Failed to fetch message %d, will retry next poll: %v", uid, err)
			continue
		}

		email, err := ParseInbound(uid, raw)
		if err != nil {
			logging.Log.Errorf("Failed to parse message %d, skipping permanently: %v", uid, err)
		} else if matched := p.ingest(ctx, email); matched {
			logging.Log.Infof("Correlated reply from %s (uid %d)", email.From, uid)
		}

		p.remember(uid)
		p.markSeen(client, uid)
	}

	return nil
}

// ingest attributes one parsed message to its thread. Returns false when no
// candidate id belongs to a tracked thread.
func (p *Poller) ingest(ctx context.Context, email *models.InboundEmail) bool {
	id, ok := correlation.Match(email, p.store.Has)
	if !ok {
		return false
	}

	decorated := correlation.Decorate(id, p.store.Domain())

	reply := models.Reply{
		From:       email.From,
		Content:    correlation.TruncateQuoted(email.Text, p.quotedMarker),
		ReceivedAt: email.ReceivedAt,
		Subject:    email.Subject,
	}

	if handle := p.storeReplyAttachment(ctx, decorated, email); handle != "" {
		reply.AttachmentHandle = handle
	}

	thread, err := p.store.AppendReply(ctx, decorated, reply)
	if err != nil {
		logging.Log.Errorf("Failed to record reply for %s: %v", decorated, err)
		return false
	}

	if p.notifier != nil {
		p.notifier.NotifyReply(thread.OwnerUserID, decorated)
	}

	return true
}

// storeReplyAttachment vaults the first attachment of the message, but only
// while the thread has no reply attachment yet. Returns the handle or "".
func (p *Poller) storeReplyAttachment(ctx context.Context, correlationID string, email *models.InboundEmail) string {
	if len(email.Attachments) == 0 {
		return ""
	}

	thread, err := p.store.GetThread(ctx, correlationID)
	if err != nil {
		logging.Log.Errorf("Failed to load thread %s for attachment check: %v", correlationID, err)
		return ""
	}
	for _, r := range thread.Replies {
		if r.AttachmentHandle != "" {
			return ""
		}
	}

	att := email.Attachments[0]
	handle, err := p.vault.Store(ctx, att.FileName, att.MimeType, att.Data)
	if err != nil {
		logging.Log.Errorf("Failed to store reply attachment for %s: %v", correlationID, err)
		return ""
	}

	return handle
}

func (p *Poller) alreadyProcessed(uid uint32) bool {
	p.ledgerMu.Lock()
	defer p.ledgerMu.Unlock()
	_, ok := p.processed[uid]
	return ok
}

func (p *Poller) remember(uid uint32) {
	p.ledgerMu.Lock()
	defer p.ledgerMu.Unlock()
	p.processed[uid] = struct{}{}
}

func (p *Poller) markSeen(client MailClient, uid uint32) {
	if err := client.MarkSeen(uid); err != nil {
		logging.Log.Warnf("Failed to mark message %d seen: %v", uid, err)
	}
}
