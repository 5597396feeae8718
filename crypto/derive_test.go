package crypto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequenceSeed(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func TestFindDerivedAddressIsDeterministic(t *testing.T) {
	program := ProgramID("ringback-tone-program")
	owner := bytes.Repeat([]byte{0x11}, AddressLength)

	first, bump1, err := FindDerivedAddress(program, []byte("music-artist"), owner)
	require.NoError(t, err)
	second, bump2, err := FindDerivedAddress(program, []byte("music-artist"), owner)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, bump1, bump2)

	recreated, err := CreateDerivedAddress(program, bump1, []byte("music-artist"), owner)
	require.NoError(t, err)
	require.Equal(t, first, recreated)
}

func TestFindDerivedAddressSeparatesNamespaces(t *testing.T) {
	program := ProgramID("ringback-tone-program")
	owner := bytes.Repeat([]byte{0x22}, AddressLength)

	artist, _, err := FindDerivedAddress(program, []byte("music-artist"), owner)
	require.NoError(t, err)
	fan, _, err := FindDerivedAddress(program, []byte("music-fan"), owner)
	require.NoError(t, err)
	require.NotEqual(t, artist, fan)

	other, _, err := FindDerivedAddress(ProgramID("another-program"), []byte("music-artist"), owner)
	require.NoError(t, err)
	require.NotEqual(t, artist, other)
}

func TestFindDerivedAddressSequenceSeeds(t *testing.T) {
	program := ProgramID("ringback-tone-program")
	seen := make(map[[AddressLength]byte]uint64)
	for n := uint64(0); n < 64; n++ {
		addr, _, err := FindDerivedAddress(program, []byte("ring-back-tone"), sequenceSeed(n))
		require.NoError(t, err)
		prev, dup := seen[addr]
		require.Falsef(t, dup, "sequence %d collides with %d", n, prev)
		seen[addr] = n

		again, _, err := FindDerivedAddress(program, []byte("ring-back-tone"), sequenceSeed(n))
		require.NoError(t, err)
		require.Equal(t, addr, again)
	}
}

func TestFindDerivedAddressRejectsOversizedSeeds(t *testing.T) {
	program := ProgramID("ringback-tone-program")

	_, _, err := FindDerivedAddress(program, bytes.Repeat([]byte{0x01}, MaxSeedLength+1))
	require.True(t, errors.Is(err, ErrMaxSeedLength))

	seeds := make([][]byte, MaxSeeds+1)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, _, err = FindDerivedAddress(program, seeds...)
	require.True(t, errors.Is(err, ErrTooManySeeds))
}

func TestCreateDerivedAddressRejectsOnCurveBumps(t *testing.T) {
	program := ProgramID("ringback-tone-program")
	seed := []byte("mobile-network-operator")

	_, found, err := FindDerivedAddress(program, seed)
	require.NoError(t, err)
	// Every bump above the canonical one was skipped because it hit the curve.
	for bump := 255; bump > int(found); bump-- {
		_, err := CreateDerivedAddress(program, uint8(bump), seed)
		require.ErrorIs(t, err, ErrInvalidSeeds)
	}
}

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, IdentityPrefix, decoded.Prefix())
	require.Equal(t, key.PubKey().Identity(), decoded.Array())
}
