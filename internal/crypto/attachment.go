package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SaltSize is the HKDF salt length used for attachments.
const SaltSize = 32

var (
	// ErrAttachmentKey is returned when descriptor key material has the wrong shape.
	ErrAttachmentKey = errors.New("malformed attachment key material")
	// ErrAttachmentAuth is returned when the ciphertext fails authentication.
	ErrAttachmentAuth = errors.New("attachment authentication failed")
)

// SealedAttachment is the output of SealAttachment.
type SealedAttachment struct {
	Ciphertext []byte
	Digest     string
	Secret     []byte
	Salt       []byte
	Nonce      []byte
}

// SealAttachment encrypts plaintext under a fresh content key.
func SealAttachment(plaintext []byte) (SealedAttachment, error) {
	secret, err := NewKey()
	if err != nil {
		return SealedAttachment{}, err
	}
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return SealedAttachment{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return SealedAttachment{}, err
	}

	key, err := attachmentKey(secret, salt)
	if err != nil {
		return SealedAttachment{}, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return SealedAttachment{}, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return SealedAttachment{
		Ciphertext: ct,
		Digest:     Digest(ct),
		Secret:     secret,
		Salt:       salt,
		Nonce:      nonce,
	}, nil
}

// OpenAttachment reverses SealAttachment. Callers verify the digest first.
func OpenAttachment(ciphertext, secret, salt, nonce []byte) ([]byte, error) {
	if len(secret) != KeySize || len(salt) == 0 || len(nonce) != chacha20poly1305.NonceSize {
		return nil, ErrAttachmentKey
	}
	key, err := attachmentKey(secret, salt)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAttachmentAuth
	}
	return pt, nil
}

// Digest returns the hex SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestMatches compares the digest of b against want in constant time.
func DigestMatches(b []byte, want string) bool {
	got := Digest(b)
	return len(got) == len(want) && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func attachmentKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, nil), key); err != nil {
		return nil, err
	}
	return key, nil
}
