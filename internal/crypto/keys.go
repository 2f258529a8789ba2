package crypto

import "crypto/rand"

// KeySize is the length of protocol database keys and attachment secrets.
const KeySize = 32

// NewKey returns KeySize bytes from the system CSPRNG.
func NewKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return k, nil
}
