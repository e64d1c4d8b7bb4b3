package poller

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// MailClient is the slice of IMAP the poller needs. One client serves one
// poll cycle and is discarded afterwards.
type MailClient interface {
	SearchUnseen() ([]uint32, error)
	FetchRaw(uid uint32) (io.Reader, error)
	MarkSeen(uid uint32) error
	Logout() error
}

// DialFunc opens a fresh authenticated MailClient with the watched mailbox
// selected.
type DialFunc func() (MailClient, error)

// Dialer returns a DialFunc bound to one mailbox account.
// useTLS: true for production, false for tests against plain listeners.
func Dialer(server, username, password, mailbox string, useTLS bool) DialFunc {
	return func() (MailClient, error) {
		c, err := connect(server, useTLS)
		if err != nil {
			return nil, err
		}

		if err := c.Login(username, password); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}

		if _, err := c.Select(mailbox, false); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
		}

		return &imapClient{c: c}, nil
	}
}

func connect(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// imapClient adapts an emersion client to MailClient.
type imapClient struct {
	c *client.Client
}

func (ic *imapClient) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := ic.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}

	return uids, nil
}

func (ic *imapClient) FetchRaw(uid uint32) (io.Reader, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- ic.c.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("server did not return message %d", uid)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %d has no body section", uid)
	}

	return body, nil
}

func (ic *imapClient) MarkSeen(uid uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := ic.c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d seen: %w", uid, err)
	}

	return nil
}

func (ic *imapClient) Logout() error {
	return ic.c.Logout()
}
