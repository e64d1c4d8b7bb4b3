package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynsa/outreach-backend/internal/correlation"
	"github.com/lynsa/outreach-backend/internal/models"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/testutil"
	"github.com/lynsa/outreach-backend/internal/vault"
)

type fakeSender struct {
	messages [][]byte
	to       [][]string
	err      error
}

func (f *fakeSender) Send(from string, to []string, msg []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	f.to = append(f.to, to)
	return nil
}

func newTestMessenger(t *testing.T, sender Sender) (*Messenger, *store.Store) {
	t.Helper()
	st := store.New(nil, t.TempDir()+"/snapshot.json", "lynsa.com")
	return NewMessenger(st, vault.NewMemory(), sender, "lynsa.com", "lynsanetwork@gmail.com", 5<<20), st
}

func sendRequest() *SendRequest {
	return &SendRequest{
		SenderName:       "Jane",
		RecipientEmail:   "target@example.com",
		Body:             "I'd love to connect.",
		PaymentReference: "pay_123",
		OwnerUserID:      "user-1",
	}
}

func TestMessengerSend(t *testing.T) {
	ctx := context.Background()

	t.Run("embeds the correlation id in subject and headers", func(t *testing.T) {
		sender := &fakeSender{}
		m, _ := newTestMessenger(t, sender)

		decorated, err := m.Send(ctx, sendRequest())
		require.NoError(t, err)
		require.Len(t, sender.messages, 1)

		id := correlation.Strip(decorated)
		assert.Equal(t, "<"+id+"@lynsa.com>", decorated)

		env, err := enmime.ReadEnvelope(bytes.NewReader(sender.messages[0]))
		require.NoError(t, err)

		assert.Contains(t, env.GetHeader("Subject"), "[ID:"+id+"]")
		assert.Contains(t, env.GetHeader("Subject"), "Jane is inviting you to connect via Lynsa")
		assert.Equal(t, decorated, env.GetHeader("Message-Id"))
		assert.Equal(t, decorated, env.GetHeader("In-Reply-To"))
		assert.Contains(t, env.Text, "I'd love to connect.")
		assert.Contains(t, env.Text, "Payment ID: pay_123")
		assert.Equal(t, []string{"target@example.com"}, sender.to[0])
	})

	t.Run("registers the thread before the transport submission", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("connection refused")}
		m, st := newTestMessenger(t, sender)

		decorated, err := m.Send(ctx, sendRequest())
		require.Error(t, err)
		require.NotEmpty(t, decorated)

		thread, err := st.GetThread(ctx, decorated)
		require.NoError(t, err, "thread must stay registered after a failed send")
		assert.Equal(t, models.StateSent, thread.State)
	})

	t.Run("fresh send mints a fresh id", func(t *testing.T) {
		sender := &fakeSender{}
		m, _ := newTestMessenger(t, sender)

		first, err := m.Send(ctx, sendRequest())
		require.NoError(t, err)
		second, err := m.Send(ctx, sendRequest())
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("rejects an invalid recipient", func(t *testing.T) {
		m, _ := newTestMessenger(t, &fakeSender{})

		req := sendRequest()
		req.RecipientEmail = "not-an-address"

		_, err := m.Send(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRecipient)
	})

	t.Run("rejects an oversized attachment", func(t *testing.T) {
		st := store.New(nil, t.TempDir()+"/snapshot.json", "lynsa.com")
		m := NewMessenger(st, vault.NewMemory(), &fakeSender{}, "lynsa.com", "lynsanetwork@gmail.com", 16)

		req := sendRequest()
		req.Attachments = []Upload{{FileName: "big.pdf", MimeType: "application/pdf", Data: make([]byte, 32)}}

		_, err := m.Send(ctx, req)
		assert.ErrorIs(t, err, ErrAttachmentTooLarge)
	})

	t.Run("rejects a disallowed attachment type", func(t *testing.T) {
		m, _ := newTestMessenger(t, &fakeSender{})

		req := sendRequest()
		req.Attachments = []Upload{{FileName: "run.exe", MimeType: "application/octet-stream", Data: []byte{1}}}

		_, err := m.Send(ctx, req)
		assert.ErrorIs(t, err, ErrAttachmentType)
	})

	t.Run("attaches uploads and records vault handles", func(t *testing.T) {
		sender := &fakeSender{}
		m, st := newTestMessenger(t, sender)

		req := sendRequest()
		req.Attachments = []Upload{{FileName: "cv.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")}}

		decorated, err := m.Send(ctx, req)
		require.NoError(t, err)

		env, err := enmime.ReadEnvelope(bytes.NewReader(sender.messages[0]))
		require.NoError(t, err)
		require.Len(t, env.Attachments, 1)
		assert.Equal(t, "cv.pdf", env.Attachments[0].FileName)

		thread, err := st.GetThread(ctx, decorated)
		require.NoError(t, err)
		require.Len(t, thread.Attachments, 1)
		assert.Equal(t, "cv.pdf", thread.Attachments[0].FileName)
		assert.NotEmpty(t, thread.Attachments[0].Handle)
	})
}

func TestSMTPSender(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	sender := &SMTPSender{
		Addr:     server.Address,
		Username: server.Username(),
		Password: server.Password(),
	}

	msg := []byte("From: lynsanetwork@gmail.com\r\nTo: target@example.com\r\nSubject: hi\r\n\r\nbody\r\n")
	if err := sender.Send("lynsanetwork@gmail.com", []string{"target@example.com"}, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := server.GetMessages()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].From != "lynsanetwork@gmail.com" {
		t.Errorf("Unexpected envelope sender: %s", messages[0].From)
	}
	if len(messages[0].To) != 1 || messages[0].To[0] != "target@example.com" {
		t.Errorf("Unexpected recipients: %v", messages[0].To)
	}
	if !strings.Contains(string(messages[0].Data), "Subject: hi") {
		t.Error("Message data not delivered intact")
	}
}
