package group

import (
	"encoding/json"

	"dualinbox/internal/domain"
)

// UnsupportedText is rendered for message kinds this client does not know.
const UnsupportedText = "Unsupported message"

// Body is the rendered form of a group message.
type Body interface {
	body()
}

// TextBody is a plain text message.
type TextBody struct {
	Text string
}

// MediaBody embeds media by URL.
type MediaBody struct {
	URL string
}

// MetaBody is a membership change.
type MetaBody struct {
	Action   string
	Affected []domain.Address
}

// UnsupportedBody is any message that could not be rendered.
type UnsupportedBody struct {
	Kind domain.GroupMessageKind
	Text string
}

func (TextBody) body()        {}
func (MediaBody) body()       {}
func (MetaBody) body()        {}
func (UnsupportedBody) body() {}

type metaPayload struct {
	Action   string   `json:"action"`
	Affected []string `json:"affected"`
}

// Render dispatches on the message kind. It never fails: unknown kinds and
// malformed payloads become UnsupportedBody.
func Render(m domain.DecryptedGroupMessage) Body {
	switch m.Kind {
	case domain.GroupKindText:
		return TextBody{Text: string(m.Plaintext)}
	case domain.GroupKindMedia:
		return MediaBody{URL: string(m.Plaintext)}
	case domain.GroupKindMeta:
		var p metaPayload
		if err := json.Unmarshal(m.Plaintext, &p); err != nil || p.Action == "" {
			return UnsupportedBody{Kind: m.Kind, Text: UnsupportedText}
		}
		body := MetaBody{Action: p.Action}
		for _, a := range p.Affected {
			if addr, err := domain.ParseAddress(a); err == nil {
				body.Affected = append(body.Affected, addr)
			}
		}
		return body
	default:
		return UnsupportedBody{Kind: m.Kind, Text: UnsupportedText}
	}
}

// MetaPayload encodes a membership change the way Render expects it.
func MetaPayload(action string, affected ...domain.Address) []byte {
	p := metaPayload{Action: action}
	for _, a := range affected {
		p.Affected = append(p.Affected, a.Checksum().String())
	}
	b, _ := json.Marshal(p)
	return b
}
