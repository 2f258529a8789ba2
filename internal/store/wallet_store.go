package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"dualinbox/internal/domain"
)

const walletFilename = "wallet.enc"

// ErrNoWallet is returned by LoadWallet when no wallet has been saved.
var ErrNoWallet = errors.New("store: no wallet")

// WalletFileStore persists the local development wallet seed to disk.
type WalletFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewWalletFileStore returns a WalletFileStore rooted at dir.
func NewWalletFileStore(dir string) *WalletFileStore {
	return &WalletFileStore{dir: dir}
}

// SaveWallet writes the encrypted seed to disk.
func (s *WalletFileStore) SaveWallet(passphrase string, seed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, err := encrypt(passphrase, seed)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, walletFilename), ct, 0o600)
}

// LoadWallet reads and decrypts the seed.
func (s *WalletFileStore) LoadWallet(passphrase string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, walletFilename))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNoWallet
	}
	return decrypt(passphrase, b)
}

// HasWallet reports whether a wallet file exists.
func (s *WalletFileStore) HasWallet() bool {
	_, err := os.Stat(filepath.Join(s.dir, walletFilename))
	return err == nil
}

// Compile-time assertion that WalletFileStore implements domain.WalletStore.
var _ domain.WalletStore = (*WalletFileStore)(nil)
