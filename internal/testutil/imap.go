package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer creates a new test IMAP server with an in-memory backend.
// The memory backend creates a default user with username "username" and
// password "password".
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	addr := listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		err := s.Close()
		if err != nil {
			return
		}
	}

	return &TestIMAPServer{
		Server:   s,
		Address:  addr,
		Backend:  be,
		cleanup:  cleanup,
		username: "username",
		password: "password",
	}
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// AddRawMessage appends a raw RFC 822 message to the folder with the given
// flags and returns its UID. Pass no flags to leave the message unseen.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folderName, raw string, flags ...string) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, false); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	if err := client.Append(folderName, flags, time.Now(), strings.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	status, err := client.Select(folderName, false)
	if err != nil {
		t.Fatalf("Failed to re-select folder: %v", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(status.Messages)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.Fetch(seqSet, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		t.Fatalf("Failed to fetch appended message: %v", err)
	}
	if msg == nil {
		t.Fatalf("Message not found after append")
	}

	return msg.Uid
}

// AddReply appends an unseen reply message with the given In-Reply-To header
// and returns its UID.
func (s *TestIMAPServer) AddReply(t *testing.T, folderName, from, to, subject, inReplyTo, body string) uint32 {
	t.Helper()

	raw := fmt.Sprintf(`Message-ID: <test-%d@example.org>
In-Reply-To: %s
Date: %s
From: %s
To: %s
Subject: %s
Content-Type: text/plain; charset=utf-8

%s
`, time.Now().UnixNano(), inReplyTo, time.Now().Format(time.RFC1123Z), from, to, subject, body)

	return s.AddRawMessage(t, folderName, raw)
}
