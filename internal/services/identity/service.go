package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"unicode"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	signedMessagePrefix = "\x19Ethereum Signed Message:\n"
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Wallet is an Ed25519 account that signs personal messages.
type Wallet struct {
	priv ed25519.PrivateKey
	addr domain.Address
}

// NewWallet derives a wallet from a 32-byte seed.
func NewWallet(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{priv: priv, addr: crypto.AddressFromPublicKey(pub)}, nil
}

// Address returns the account address of the wallet.
func (w *Wallet) Address() domain.Address { return w.addr }

// PublicKey returns the wallet's verification key.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	return w.priv.Public().(ed25519.PublicKey)
}

// SignMessage signs msg as a personal message.
func (w *Wallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return crypto.SignEd25519(w.priv, personalMessage(msg)), nil
}

// VerifyMessage checks a signature produced by Wallet.SignMessage.
func VerifyMessage(pub ed25519.PublicKey, msg, sig []byte) bool {
	return crypto.VerifyEd25519(pub, personalMessage(msg), sig)
}

func personalMessage(msg []byte) []byte {
	b := make([]byte, 0, len(signedMessagePrefix)+8+len(msg))
	b = append(b, signedMessagePrefix...)
	b = strconv.AppendInt(b, int64(len(msg)), 10)
	return append(b, msg...)
}

// Service manages wallet creation and access using a backing store.
type Service struct {
	store domain.WalletStore
}

// New returns an identity service backed by the given store.
func New(s domain.WalletStore) *Service { return &Service{store: s} }

// GenerateWallet creates a new wallet, saves its seed encrypted with the
// passphrase, and returns the wallet plus a short fingerprint of its public
// key.
func (s *Service) GenerateWallet(passphrase string) (*Wallet, string, error) {
	if !isSecurePassphrase(passphrase) {
		return nil, "", ErrWeakPassphrase
	}
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, "", err
	}
	seed := priv.Seed()
	defer crypto.Wipe(seed)

	if err := s.store.SaveWallet(passphrase, seed); err != nil {
		return nil, "", err
	}
	w := &Wallet{priv: priv, addr: crypto.AddressFromPublicKey(pub)}
	return w, crypto.Fingerprint(pub), nil
}

// LoadWallet decrypts and returns the local wallet.
func (s *Service) LoadWallet(passphrase string) (*Wallet, error) {
	seed, err := s.store.LoadWallet(passphrase)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(seed)
	return NewWallet(seed)
}

// Fingerprint returns a short fingerprint of the wallet's public key.
func (s *Service) Fingerprint(passphrase string) (string, error) {
	w, err := s.LoadWallet(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(w.PublicKey()), nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Wallet implements domain.Signer.
var _ domain.Signer = (*Wallet)(nil)
