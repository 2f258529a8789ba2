package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	types "dualinbox/internal/domain/types"
)

func TestChecksum_EIP55Vectors(t *testing.T) {
	require := require.New(t)
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		lower := types.Address(want).Key()
		require.Equal(types.Address(want), types.Address(lower).Checksum())
	}
}

func TestParseAddress(t *testing.T) {
	a, err := types.ParseAddress("  0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ")
	require.NoError(t, err)
	require.Equal(t, types.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"), a)

	_, err = types.ParseAddress("0x1234")
	require.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = types.ParseAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00")
	require.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = types.ParseAddress("0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestCAIP10RoundTrip(t *testing.T) {
	a := types.Address("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	id := a.CAIP10()
	require.Equal(t, "eip155:0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", id)
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", types.StripCAIP10(id))
	// Stripping leaves anything without the prefix untouched.
	require.Equal(t, "cosmos:abc", types.StripCAIP10("cosmos:abc"))
}

func TestAddressEqualIgnoresCase(t *testing.T) {
	require.True(t, types.Address("0xBEEF").Equal("0xbeef"))
	require.False(t, types.Address("0xBEEF").Equal("0xbeee"))
}

func TestConsentPreferences_NilSafe(t *testing.T) {
	var p *types.ConsentPreferences
	require.False(t, p.Accepted("t1"))
	require.False(t, p.Blocked("t1"))

	p = types.NewConsentPreferences([]string{"t1"}, []string{"t2"})
	require.True(t, p.Accepted("t1"))
	require.True(t, p.Blocked("t2"))
	require.False(t, p.Accepted("t2"))
}
