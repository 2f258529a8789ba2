package types

// TopicMetadata is one conversation to register with the backend index.
type TopicMetadata struct {
	Topic       string
	PeerAddress Address
	Accept      bool
	Block       bool
}

// TopicRegistration is a signed consent assertion for one topic.
type TopicRegistration struct {
	Topic       string `json:"topic"`
	PeerAddress string `json:"peerAddress"`
	Signature   string `json:"signature"`
	Accept      *bool  `json:"accept,omitempty"`
	Block       *bool  `json:"block,omitempty"`
}

// RegistrationRequest is the batch submitted to the backend index.
type RegistrationRequest struct {
	OwnerAddress    string              `json:"ownerAddress"`
	SignedPublicKey string              `json:"signedPublicKey"`
	Registrations   []TopicRegistration `json:"registrations"`
}
