package types

// GroupMessageKind is the discriminant carried by every group message.
type GroupMessageKind string

const (
	GroupKindText  GroupMessageKind = "Text"
	GroupKindMedia GroupMessageKind = "MediaEmbed"
	GroupKindMeta  GroupMessageKind = "Meta"
)

// EncryptedGroupMessage is a group message as served by the group network.
// CID is the message's own content link; Link points at the previous
// message in the thread.
type EncryptedGroupMessage struct {
	CID        string
	Link       string
	ChatID     string
	From       string
	Kind       GroupMessageKind
	Secrets    map[string][]byte
	Nonce      []byte
	Ciphertext []byte
	Timestamp  int64
}

// DecryptedGroupMessage is the cached plaintext form of a group message.
type DecryptedGroupMessage struct {
	CID       string           `cbor:"cid"`
	Link      string           `cbor:"link"`
	ChatID    string           `cbor:"chatId"`
	From      Address          `cbor:"from"`
	Kind      GroupMessageKind `cbor:"kind"`
	Plaintext []byte           `cbor:"plaintext"`
	Timestamp int64            `cbor:"timestamp"`
}

// GroupPage is one page of thread-hash paginated history, oldest first.
type GroupPage struct {
	Messages []DecryptedGroupMessage
	HasMore  bool
	Cursor   string
}

// GroupUser is the group protocol's profile for an account.
type GroupUser struct {
	Account   Address `cbor:"account"`
	DID       string  `cbor:"did"`
	PublicKey []byte  `cbor:"publicKey"`
	Name      string  `cbor:"name"`
}

// Subscription is a notification channel the account follows.
type Subscription struct {
	Channel Address
	Name    string
}
