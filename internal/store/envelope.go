package store

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the sealed format stored on disk.
	envelopeFormatVersion = 1

	saltSize = 16

	checkPlaintext = "dualinbox"
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or
	// the ciphertext has been modified.
	ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted data")

	// ErrPassphraseRequired is returned when opening a sealed store
	// without a passphrase.
	ErrPassphraseRequired = errors.New("store: passphrase required")
)

// kdfParams are the scrypt parameters persisted alongside sealed data.
type kdfParams struct {
	V    int    `cbor:"v"`
	Salt []byte `cbor:"salt"`
	N    int    `cbor:"n"`
	R    int    `cbor:"r"`
	P    int    `cbor:"p"`
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

func newKDFParams() (*kdfParams, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	N, r, p := scryptParamsDefault()
	return &kdfParams{V: envelopeFormatVersion, Salt: salt, N: N, R: r, P: p}, nil
}

// sealer encrypts individual values with a key derived once from the
// passphrase. Every value carries its own random nonce.
type sealer struct {
	params *kdfParams
	aead   cipher.AEAD
}

func newSealer(passphrase string, params *kdfParams) (*sealer, error) {
	if params.V > envelopeFormatVersion {
		return nil, fmt.Errorf("store: unsupported envelope version %d", params.V)
	}
	key, err := scrypt.Key([]byte(passphrase), params.Salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{params: params, aead: aead}, nil
}

// seal binds the ciphertext to ad, typically the bucket key.
func (s *sealer) seal(raw, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(raw)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, raw, ad), nil
}

func (s *sealer) open(b, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(b) < ns+s.aead.Overhead() {
		return nil, ErrWrongPassphrase
	}
	pt, err := s.aead.Open(nil, b[:ns], b[ns:], ad)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// fileEnvelope is the on-disk structure of a passphrase-sealed file.
type fileEnvelope struct {
	KDF    kdfParams `cbor:"kdf"`
	Cipher []byte    `cbor:"cipher"`
}

// encrypt derives a fresh key from passphrase and seals raw into an
// envelope.
func encrypt(passphrase string, raw []byte) ([]byte, error) {
	params, err := newKDFParams()
	if err != nil {
		return nil, err
	}
	s, err := newSealer(passphrase, params)
	if err != nil {
		return nil, err
	}
	ct, err := s.seal(raw, params.Salt)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(fileEnvelope{KDF: *params, Cipher: ct})
}

// decrypt opens an envelope using a key derived from passphrase.
func decrypt(passphrase string, b []byte) ([]byte, error) {
	var env fileEnvelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	s, err := newSealer(passphrase, &env.KDF)
	if err != nil {
		return nil, err
	}
	return s.open(env.Cipher, env.KDF.Salt)
}
