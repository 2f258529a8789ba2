package conversation

import (
	"slices"
	"strings"

	"dualinbox/internal/domain"
)

// AttachmentPreview is shown for any message that is not plain text.
const AttachmentPreview = "Attachment"

// Meta is the view state of one conversation.
type Meta struct {
	Conversation    domain.Conversation
	Topic           string
	Peer            domain.Address
	ConsentState    domain.ConsentState
	Preview         string
	TimestampMillis int64
	Visible         bool
}

func newMeta(conv domain.Conversation, topic string, peer domain.Address, state domain.ConsentState) Meta {
	return Meta{
		Conversation: conv,
		Topic:        topic,
		Peer:         peer,
		ConsentState: state,
		Visible:      state != domain.ConsentDenied,
	}
}

// Timeline is a list of conversations sorted newest first.
type Timeline []Meta

func sameTopic(a, b string) bool { return strings.EqualFold(a, b) }

// Index returns the position of topic, or -1.
func (t Timeline) Index(topic string) int {
	return slices.IndexFunc(t, func(m Meta) bool { return sameTopic(m.Topic, topic) })
}

// Normalize returns a sorted copy of t keeping, for each topic, the entry
// with the newest timestamp.
func (t Timeline) Normalize() Timeline {
	out := make(Timeline, 0, len(t))
	for _, m := range t {
		if i := out.Index(m.Topic); i >= 0 {
			if m.TimestampMillis > out[i].TimestampMillis {
				out[i] = m
			}
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b Meta) int {
		switch {
		case a.TimestampMillis > b.TimestampMillis:
			return -1
		case a.TimestampMillis < b.TimestampMillis:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Previewer renders the preview line of a message for one inbox.
type Previewer struct {
	Self       domain.Address
	SelfMarker string
}

// Preview renders msg.
func (p Previewer) Preview(msg domain.DecodedMessage) string {
	switch c := msg.Content.(type) {
	case domain.TextContent:
		if !p.Self.IsZero() && msg.Sender.Equal(p.Self) && p.SelfMarker != "" {
			return p.SelfMarker + " " + c.Text
		}
		return c.Text
	default:
		return AttachmentPreview
	}
}

// WithMessage returns a new timeline with msg folded in. An existing entry
// for the topic gets msg's preview and timestamp. Otherwise an entry is
// synthesized, allowed when the local inbox sent msg and unknown when a
// peer did, and prepended. The second result reports whether the topic was
// new.
func (t Timeline) WithMessage(msg domain.DecodedMessage, p Previewer, conv domain.Conversation) (Timeline, bool) {
	out := slices.Clone(t)
	if i := out.Index(msg.Topic); i >= 0 {
		out[i].Preview = p.Preview(msg)
		out[i].TimestampMillis = msg.SentMillis()
		if out[i].Conversation == nil {
			out[i].Conversation = conv
		}
		return out.Normalize(), false
	}

	state := domain.ConsentUnknown
	peer := msg.Sender
	if msg.Sender.Equal(p.Self) {
		state = domain.ConsentAllowed
		peer = ""
	}
	if conv != nil {
		peer = conv.PeerAddress()
	}
	m := newMeta(conv, msg.Topic, peer, state)
	m.Preview = p.Preview(msg)
	m.TimestampMillis = msg.SentMillis()
	return append(Timeline{m}, out...).Normalize(), true
}
