package interfaces

import (
	"context"

	types "dualinbox/internal/domain/types"
)

// GroupClient is the group/notification network SDK.
type GroupClient interface {
	// ConversationHash resolves the newest thread hash of chatID.
	ConversationHash(ctx context.Context, chatID, account string) (string, error)
	// History walks back from threadHash, newest first, returning at most limit messages.
	History(ctx context.Context, threadHash string, limit int, account string) ([]types.EncryptedGroupMessage, error)
	Decrypt(ctx context.Context, msg types.EncryptedGroupMessage, account string, key []byte) ([]byte, error)

	User(ctx context.Context, account string) (types.GroupUser, error)
	CreateUser(ctx context.Context, signer Signer) (types.GroupUser, []byte, error)
	Subscriptions(ctx context.Context, account string) ([]types.Subscription, error)
}
