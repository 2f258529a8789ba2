package interfaces

import (
	"context"

	types "dualinbox/internal/domain/types"
)

// IndexClient talks to the backend index service.
type IndexClient interface {
	RegisterTopics(ctx context.Context, req types.RegistrationRequest) (int, error)
	ConsentPreferences(ctx context.Context, owner types.Address) (*types.ConsentPreferences, error)
}

// BlobStorage is content-addressed storage for attachment ciphertext.
type BlobStorage interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// NameResolver maps addresses to human-readable names and back.
type NameResolver interface {
	ReverseResolve(ctx context.Context, addr types.Address) (string, error)
	Resolve(ctx context.Context, name string) (types.Address, error)
}
