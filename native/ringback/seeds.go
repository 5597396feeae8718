package ringback

import (
	"encoding/binary"

	"rbtchain/crypto"
)

// ProgramName is hashed into the default program id.
const ProgramName = "ringback"

const (
	seedPlatform     = "mobile-network-operator"
	seedArtist       = "music-artist"
	seedFan          = "music-fan"
	seedTone         = "ring-back-tone"
	seedSubscription = "subscription"
)

// DefaultProgramID is the program id used when genesis does not override it.
var DefaultProgramID = crypto.ProgramID(ProgramName)

func platformSeeds() [][]byte { return [][]byte{[]byte(seedPlatform)} }

func artistSeeds(owner [20]byte) [][]byte {
	return [][]byte{[]byte(seedArtist), owner[:]}
}

func fanSeeds(owner [20]byte) [][]byte {
	return [][]byte{[]byte(seedFan), owner[:]}
}

func toneSeeds(sequence uint64) [][]byte {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	return [][]byte{[]byte(seedTone), seq[:]}
}

func subscriptionSeeds(tone, fan [20]byte) [][]byte {
	return [][]byte{[]byte(seedSubscription), tone[:], fan[:]}
}

type derived struct {
	addr [20]byte
	bump uint8
}

func (e *Engine) derive(seeds [][]byte) (derived, error) {
	addr, bump, err := crypto.FindDerivedAddress(e.program, seeds...)
	if err != nil {
		return derived{}, err
	}
	return derived{addr: addr, bump: bump}, nil
}

// PlatformAddress returns the address of the platform record.
func (e *Engine) PlatformAddress() ([20]byte, error) {
	d, err := e.derive(platformSeeds())
	return d.addr, err
}

// ArtistAddress returns the address of owner's artist profile.
func (e *Engine) ArtistAddress(owner [20]byte) ([20]byte, error) {
	d, err := e.derive(artistSeeds(owner))
	return d.addr, err
}

// FanAddress returns the address of owner's fan profile.
func (e *Engine) FanAddress(owner [20]byte) ([20]byte, error) {
	d, err := e.derive(fanSeeds(owner))
	return d.addr, err
}

// ToneAddress returns the address of the tone created with the given sequence.
func (e *Engine) ToneAddress(sequence uint64) ([20]byte, error) {
	d, err := e.derive(toneSeeds(sequence))
	return d.addr, err
}

// SubscriptionAddress returns the address linking fan to tone.
func (e *Engine) SubscriptionAddress(tone, fan [20]byte) ([20]byte, error) {
	d, err := e.derive(subscriptionSeeds(tone, fan))
	return d.addr, err
}
