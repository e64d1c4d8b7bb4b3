package models

import "time"

// ThreadState is the lifecycle state of an outreach thread.
// The only legal transition is StateSent -> StateReplied.
type ThreadState string

const (
	StateSent    ThreadState = "sent"
	StateReplied ThreadState = "replied"
)

// Thread is one paid outreach message and every reply correlated to it.
// CorrelationID is the decorated form "<xxxxxx@domain>" and is immutable.
type Thread struct {
	CorrelationID string               `json:"correlationId"`
	Sender        string               `json:"sender"`
	Recipient     string               `json:"recipient"`
	Body          string               `json:"message"`
	PaymentID     string               `json:"paymentId"`
	OwnerUserID   string               `json:"userId"`
	State         ThreadState          `json:"status"`
	Attachments   []OutboundAttachment `json:"attachments,omitempty"`
	Replies       []Reply              `json:"replies"`
	CreatedAt     time.Time            `json:"timestamp"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// OutboundAttachment is a file the sender attached to the initial email,
// referenced by its vault handle.
type OutboundAttachment struct {
	FileName string `json:"fileName"`
	Handle   string `json:"handle"`
}

// Reply is one inbound email attributed to a thread.
type Reply struct {
	From             string    `json:"from"`
	Content          string    `json:"content"`
	ReceivedAt       time.Time `json:"timestamp"`
	Subject          string    `json:"subject,omitempty"`
	AttachmentHandle string    `json:"attachmentHandle,omitempty"`
}

// Attachment is a stored binary payload. Handle is the stable retrieval key.
type Attachment struct {
	Handle   string `json:"handle"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// InboundEmail is a mailbox message normalized for correlation matching.
type InboundEmail struct {
	UID         uint32
	From        string
	Subject     string
	InReplyTo   string
	References  []string
	Text        string
	ReceivedAt  time.Time
	Attachments []InboundAttachment
}

// InboundAttachment is a decoded MIME attachment from a reply.
type InboundAttachment struct {
	FileName string
	MimeType string
	Data     []byte
}
