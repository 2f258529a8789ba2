package interfaces

import (
	"context"
	"time"

	types "dualinbox/internal/domain/types"
)

// Signer is a wallet capable of signing arbitrary messages for its address.
type Signer interface {
	Address() types.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// DMClientFactory constructs DM protocol clients. A fresh dbKey with a real
// signer creates an identity; a stored dbKey restores it without signing.
type DMClientFactory interface {
	NewClient(ctx context.Context, signer Signer, dbKey []byte) (DMClient, error)
}

// DMClient is one authenticated inbox on the DM network.
type DMClient interface {
	Address() types.Address
	Conversations(ctx context.Context) ([]Conversation, error)
	NewConversation(ctx context.Context, peer types.Address) (Conversation, error)
	StreamAllMessages(ctx context.Context) (<-chan types.DecodedMessage, error)

	// Allow and Deny update the native consent lists in one call each.
	Allow(ctx context.Context, peers []types.Address) error
	Deny(ctx context.Context, peers []types.Address) error

	// PublicKeyProof returns the wallet-signed public key of the inbox.
	PublicKeyProof(ctx context.Context) ([]byte, error)
	// Sign signs msg with the inbox identity key.
	Sign(ctx context.Context, msg []byte) ([]byte, error)

	Close() error
}

// Conversation is an opaque handle into the DM SDK.
type Conversation interface {
	Topic() string
	PeerAddress() types.Address
	CreatedAt() time.Time

	ConsentState(ctx context.Context) (types.ConsentState, error)
	SetConsentState(ctx context.Context, state types.ConsentState) error

	Messages(ctx context.Context, opts types.ListOptions) ([]types.DecodedMessage, error)
	MessageByID(ctx context.Context, id string) (types.DecodedMessage, error)
	Send(ctx context.Context, content types.Content) (string, error)
}
