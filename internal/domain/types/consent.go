package types

// ConsentState is the per-conversation tri-state consent flag.
type ConsentState string

const (
	ConsentUnknown ConsentState = "unknown"
	ConsentAllowed ConsentState = "allowed"
	ConsentDenied  ConsentState = "denied"
)

// String returns the string form of the consent state.
func (s ConsentState) String() string { return string(s) }

// ConsentPreferences is the legacy allow/block list keyed by conversation topic.
type ConsentPreferences struct {
	AcceptedTopics map[string]struct{}
	BlockedTopics  map[string]struct{}
}

// NewConsentPreferences builds the topic sets from their wire form.
func NewConsentPreferences(accepted, blocked []string) *ConsentPreferences {
	p := &ConsentPreferences{
		AcceptedTopics: make(map[string]struct{}, len(accepted)),
		BlockedTopics:  make(map[string]struct{}, len(blocked)),
	}
	for _, t := range accepted {
		p.AcceptedTopics[t] = struct{}{}
	}
	for _, t := range blocked {
		p.BlockedTopics[t] = struct{}{}
	}
	return p
}

// Accepted reports whether topic is in the accepted set.
func (p *ConsentPreferences) Accepted(topic string) bool {
	if p == nil {
		return false
	}
	_, ok := p.AcceptedTopics[topic]
	return ok
}

// Blocked reports whether topic is in the blocked set.
func (p *ConsentPreferences) Blocked(topic string) bool {
	if p == nil {
		return false
	}
	_, ok := p.BlockedTopics[topic]
	return ok
}

// PreferencesResponse is the wire form served by the backend index.
type PreferencesResponse struct {
	AcceptedTopics []string `json:"accepted_topics"`
	BlockedTopics  []string `json:"blocked_topics"`
}
