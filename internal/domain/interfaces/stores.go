package interfaces

import types "dualinbox/internal/domain/types"

// KeyStore persists per-address protocol keys and the active-address marker.
type KeyStore interface {
	SaveKey(kind types.KeyKind, addr types.Address, key []byte) error
	LoadKey(kind types.KeyKind, addr types.Address) ([]byte, bool, error)
	MarkActive(addr types.Address) error
	Purge(addr types.Address) error
}

// ResolutionStore caches name resolution results per subject.
type ResolutionStore interface {
	SaveResolution(r types.Resolution) error
	LoadResolution(subject string) (types.Resolution, bool, error)
}

// GroupCache caches decrypted group messages by content link and group
// users by account.
type GroupCache interface {
	SaveGroupMessage(m types.DecryptedGroupMessage) error
	LoadGroupMessage(cid string) (types.DecryptedGroupMessage, bool, error)
	SaveGroupUser(u types.GroupUser) error
	LoadGroupUser(addr types.Address) (types.GroupUser, bool, error)
}

// WalletStore persists the passphrase-sealed development wallet seed.
type WalletStore interface {
	SaveWallet(passphrase string, seed []byte) error
	LoadWallet(passphrase string) ([]byte, error)
}
