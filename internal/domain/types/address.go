package types

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// CAIP10Prefix is the chain namespace prepended to addresses handed to the
// group protocol.
const CAIP10Prefix = "eip155:"

// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a blockchain account address. Comparisons are case-insensitive;
// SDK calls expect the EIP-55 checksummed form returned by Checksum.
type Address string

// ParseAddress validates s and returns it in checksummed form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(StripCAIP10(s))
	if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", ErrInvalidAddress
	}
	return Address(s).Checksum(), nil
}

// AddressFromBytes renders a 20-byte account identifier as a checksummed address.
func AddressFromBytes(b []byte) Address {
	return Address("0x" + hex.EncodeToString(b)).Checksum()
}

// String returns the string form of the address.
func (a Address) String() string { return string(a) }

// Key returns the lower-case form used for map keys and storage keys.
func (a Address) Key() string { return strings.ToLower(string(a)) }

// Equal reports whether a and b name the same account.
func (a Address) Equal(b Address) bool { return strings.EqualFold(string(a), string(b)) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Checksum returns the EIP-55 mixed-case form of the address.
func (a Address) Checksum() Address {
	lower := strings.TrimPrefix(a.Key(), "0x")
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, len(lower)+2)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && sum[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return Address(out)
}

// CAIP10 returns the account identifier used by the group protocol.
func (a Address) CAIP10() string { return CAIP10Prefix + string(a.Checksum()) }

// StripCAIP10 removes the eip155: prefix and returns the remainder verbatim.
func StripCAIP10(s string) string { return strings.TrimPrefix(s, CAIP10Prefix) }
