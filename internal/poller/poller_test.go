package poller

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lynsa/outreach-backend/internal/models"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/testutil"
	"github.com/lynsa/outreach-backend/internal/vault"
)

const quotedMarker = "<lynsanetwork@gmail.com>"

type fakeMailClient struct {
	mu           sync.Mutex
	messages     map[uint32]string
	seen         map[uint32]bool
	seenSticks   bool
	fetchErrUIDs map[uint32]bool
}

func newFakeMailClient(seenSticks bool) *fakeMailClient {
	return &fakeMailClient{
		messages:     make(map[uint32]string),
		seen:         make(map[uint32]bool),
		seenSticks:   seenSticks,
		fetchErrUIDs: make(map[uint32]bool),
	}
}

func (f *fakeMailClient) add(uid uint32, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[uid] = raw
}

func (f *fakeMailClient) SearchUnseen() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var uids []uint32
	for uid := range f.messages {
		if !f.seen[uid] {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (f *fakeMailClient) FetchRaw(uid uint32) (io.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErrUIDs[uid] {
		return nil, fmt.Errorf("fetch failed for %d", uid)
	}
	raw, ok := f.messages[uid]
	if !ok {
		return nil, fmt.Errorf("no message %d", uid)
	}
	return strings.NewReader(raw), nil
}

func (f *fakeMailClient) MarkSeen(uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seenSticks {
		f.seen[uid] = true
	}
	return nil
}

func (f *fakeMailClient) Logout() error { return nil }

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) NotifyReply(userID, correlationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, userID+"/"+correlationID)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func replyMessage(inReplyTo, body string) string {
	return fmt.Sprintf(
		"Message-ID: <reply-1@example.org>\r\nIn-Reply-To: %s\r\nDate: Mon, 04 Aug 2026 09:00:00 +0000\r\nFrom: target@example.com\r\nTo: lynsanetwork@gmail.com\r\nSubject: Re: Jane is inviting you to connect via Lynsa\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		inReplyTo, body,
	)
}

func newPollerWithStore(t *testing.T, client MailClient, notifier Notifier) (*Poller, *store.Store) {
	t.Helper()
	st := store.New(nil, t.TempDir()+"/snapshot.json", "lynsa.com")
	dial := func() (MailClient, error) { return client, nil }
	p := New(st, vault.NewMemory(), notifier, dial, time.Minute, quotedMarker)
	return p, st
}

func trackThread(t *testing.T, st *store.Store, id string) string {
	t.Helper()
	decorated := "<" + id + "@lynsa.com>"
	err := st.CreateThread(context.Background(), &models.Thread{
		CorrelationID: decorated,
		Sender:        "Jane",
		Recipient:     "target@example.com",
		OwnerUserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	return decorated
}

func TestPollOnceCorrelatesReply(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient(true)
	notifier := &fakeNotifier{}
	p, st := newPollerWithStore(t, client, notifier)

	decorated := trackThread(t, st, "a1b2c3")
	body := "Sounds great!\n\nOn Mon, Lynsa <lynsanetwork@gmail.com> wrote:\n> original"
	client.add(7, replyMessage(decorated, body))

	p.PollOnce(ctx)

	thread, err := st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if thread.State != models.StateReplied {
		t.Errorf("Expected state %s, got %s", models.StateReplied, thread.State)
	}
	if len(thread.Replies) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(thread.Replies))
	}
	if got := thread.Replies[0].Content; got != "Sounds great!\n\nOn Mon, Lynsa" {
		t.Errorf("Expected quoted tail truncated, got %q", got)
	}
	if !client.seen[7] {
		t.Error("Expected message marked seen")
	}
	if notifier.count() != 1 {
		t.Errorf("Expected 1 notification, got %d", notifier.count())
	}
}

func TestPollOnceIsIdempotentPerMessage(t *testing.T) {
	ctx := context.Background()
	// Seen flag never sticks, so the same UID keeps coming back from the
	// server. The ledger must keep it from being ingested twice.
	client := newFakeMailClient(false)
	p, st := newPollerWithStore(t, client, nil)

	decorated := trackThread(t, st, "a1b2c3")
	client.add(7, replyMessage(decorated, "hello"))

	p.PollOnce(ctx)
	p.PollOnce(ctx)

	thread, err := st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(thread.Replies) != 1 {
		t.Errorf("Expected exactly 1 reply after two polls, got %d", len(thread.Replies))
	}
}

func TestPollOnceUnmatchedStillConsumed(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient(true)
	p, st := newPollerWithStore(t, client, nil)

	trackThread(t, st, "a1b2c3")
	client.add(9, replyMessage("<ffffff@lynsa.com>", "who dis"))

	p.PollOnce(ctx)

	if !client.seen[9] {
		t.Error("Expected unmatched message marked seen")
	}
	if !p.alreadyProcessed(9) {
		t.Error("Expected unmatched message in the ledger")
	}

	thread, err := st.GetThread(ctx, "<a1b2c3@lynsa.com>")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(thread.Replies) != 0 {
		t.Errorf("Expected no replies, got %d", len(thread.Replies))
	}
}

func TestPollOnceFetchFailureRetries(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient(true)
	p, st := newPollerWithStore(t, client, nil)

	decorated := trackThread(t, st, "a1b2c3")
	client.add(7, replyMessage(decorated, "hello"))
	client.fetchErrUIDs[7] = true

	p.PollOnce(ctx)

	if p.alreadyProcessed(7) {
		t.Error("Fetch failure must not enter the ledger")
	}
	if client.seen[7] {
		t.Error("Fetch failure must not mark the message seen")
	}

	client.mu.Lock()
	client.fetchErrUIDs[7] = false
	client.mu.Unlock()

	p.PollOnce(ctx)

	thread, err := st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(thread.Replies) != 1 {
		t.Errorf("Expected reply after retry, got %d", len(thread.Replies))
	}
}

func TestPollOnceSingleFlight(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	var dials int
	var mu sync.Mutex

	st := store.New(nil, t.TempDir()+"/snapshot.json", "lynsa.com")
	dial := func() (MailClient, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		<-release
		return newFakeMailClient(true), nil
	}
	p := New(st, vault.NewMemory(), nil, dial, time.Minute, quotedMarker)

	done := make(chan struct{})
	go func() {
		p.PollOnce(ctx)
		close(done)
	}()

	// Wait for the first sweep to be in flight, then tick again.
	for {
		mu.Lock()
		started := dials == 1
		mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	p.PollOnce(ctx)

	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Errorf("Expected overlapping tick to be skipped, got %d dials", dials)
	}
}

func TestPollerKeepsOneReplyAttachment(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient(true)
	p, st := newPollerWithStore(t, client, nil)

	decorated := trackThread(t, st, "a1b2c3")

	first := &models.InboundEmail{
		UID:         1,
		From:        "target@example.com",
		InReplyTo:   decorated,
		Text:        "see attached",
		ReceivedAt:  time.Now().UTC(),
		Attachments: []models.InboundAttachment{{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
	}
	second := &models.InboundEmail{
		UID:         2,
		From:        "target@example.com",
		InReplyTo:   decorated,
		Text:        "one more",
		ReceivedAt:  time.Now().UTC(),
		Attachments: []models.InboundAttachment{{FileName: "b.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
	}

	if !p.ingest(ctx, first) {
		t.Fatal("Expected first message to match")
	}
	if !p.ingest(ctx, second) {
		t.Fatal("Expected second message to match")
	}

	thread, err := st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(thread.Replies) != 2 {
		t.Fatalf("Expected 2 replies, got %d", len(thread.Replies))
	}
	if thread.Replies[0].AttachmentHandle == "" {
		t.Error("Expected first reply to carry the attachment handle")
	}
	if thread.Replies[1].AttachmentHandle != "" {
		t.Error("Expected later reply attachments to be dropped")
	}
}

func TestPollerAgainstIMAPServer(t *testing.T) {
	ctx := context.Background()

	server := testutil.NewTestIMAPServer(t)
	defer server.Close()

	st := store.New(nil, t.TempDir()+"/snapshot.json", "lynsa.com")
	decorated := trackThread(t, st, "d4e5f6")

	server.AddReply(t, "INBOX",
		"target@example.com", "lynsanetwork@gmail.com",
		"Re: Jane is inviting you to connect via Lynsa [ID:d4e5f6]",
		decorated,
		"Happy to talk!")

	dial := Dialer(server.Address, server.Username(), server.Password(), "INBOX", false)
	p := New(st, vault.NewMemory(), nil, dial, time.Minute, quotedMarker)

	p.PollOnce(ctx)

	thread, err := st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if thread.State != models.StateReplied {
		t.Errorf("Expected state %s, got %s", models.StateReplied, thread.State)
	}
	if len(thread.Replies) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(thread.Replies))
	}
	if thread.Replies[0].Content != "Happy to talk!" {
		t.Errorf("Unexpected reply content: %q", thread.Replies[0].Content)
	}

	// A second sweep over the same mailbox must not duplicate the reply.
	p.PollOnce(ctx)
	thread, err = st.GetThread(ctx, decorated)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(thread.Replies) != 1 {
		t.Errorf("Expected reply ingestion to stay idempotent, got %d replies", len(thread.Replies))
	}
}
