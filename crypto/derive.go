package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds accepted for a derived address.
	MaxSeeds = 16
	// MaxSeedLength bounds the byte length of a single seed.
	MaxSeedLength = 32

	derivedAddressMarker = "RingbackDerivedAddress"
	compressedEvenPrefix = 0x02
)

var (
	ErrMaxSeedLength    = errors.New("derive: seed exceeds maximum length")
	ErrTooManySeeds     = errors.New("derive: too many seeds")
	ErrInvalidSeeds     = errors.New("derive: seeds resolve to a point on the curve")
	ErrNoViableBumpSeed = errors.New("derive: unable to find a viable bump seed")
)

// CreateDerivedAddress computes the address owned by program for the given
// seeds and bump. It fails when the digest is a valid compressed secp256k1
// x-coordinate, so an accepted digest never decodes as a public key. The
// first viable bump from FindDerivedAddress is the canonical one; accounts
// are writable only through their owning program, not by any signer.
func CreateDerivedAddress(program [AddressLength]byte, bump uint8, seeds ...[]byte) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	if len(seeds) > MaxSeeds {
		return out, ErrTooManySeeds
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return out, ErrMaxSeedLength
		}
	}
	parts := make([][]byte, 0, len(seeds)+3)
	parts = append(parts, seeds...)
	parts = append(parts, []byte{bump}, program[:], []byte(derivedAddressMarker))
	digest := crypto.Keccak256(parts...)
	if onCurve(digest) {
		return out, ErrInvalidSeeds
	}
	copy(out[:], digest[len(digest)-AddressLength:])
	return out, nil
}

// FindDerivedAddress searches bumps from 255 downwards and returns the first
// address that is off the curve together with the bump that produced it.
func FindDerivedAddress(program [AddressLength]byte, seeds ...[]byte) ([AddressLength]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateDerivedAddress(program, uint8(bump), seeds...)
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return [AddressLength]byte{}, 0, err
		}
	}
	return [AddressLength]byte{}, 0, ErrNoViableBumpSeed
}

func onCurve(digest []byte) bool {
	candidate := make([]byte, 0, 33)
	candidate = append(candidate, compressedEvenPrefix)
	candidate = append(candidate, digest...)
	_, err := crypto.DecompressPubkey(candidate)
	return err == nil
}

// ProgramID derives a stable program identifier from a human-readable name.
func ProgramID(name string) [AddressLength]byte {
	var out [AddressLength]byte
	digest := crypto.Keccak256([]byte(name))
	copy(out[:], digest[len(digest)-AddressLength:])
	return out
}
