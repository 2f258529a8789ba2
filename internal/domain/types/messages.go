package types

import "time"

// Content is the closed set of DM message payloads. Consumers switch on the
// concrete type and must keep a default arm for kinds added later.
type Content interface {
	contentKind() string
}

// TextContent is a plain text message.
type TextContent struct {
	Text string
}

// RemoteAttachmentContent references an encrypted file stored out of band.
type RemoteAttachmentContent struct {
	Descriptor RemoteAttachment
	Fallback   string
}

// UnknownContent is a payload whose content type this client does not decode.
type UnknownContent struct {
	TypeID   string
	Fallback string
}

func (TextContent) contentKind() string             { return "text" }
func (RemoteAttachmentContent) contentKind() string { return "remoteStaticAttachment" }
func (c UnknownContent) contentKind() string        { return c.TypeID }

// ContentKind returns the content type identifier of c.
func ContentKind(c Content) string {
	if c == nil {
		return ""
	}
	return c.contentKind()
}

// DecodedMessage is a DM message after the SDK has decrypted and decoded it.
type DecodedMessage struct {
	ID      string
	Topic   string
	Sender  Address
	Sent    time.Time
	Content Content
}

// SentMillis returns the send time in Unix milliseconds.
func (m DecodedMessage) SentMillis() int64 { return m.Sent.UnixMilli() }

// ListOptions narrows a conversation message query.
type ListOptions struct {
	Limit      int
	Descending bool
}
