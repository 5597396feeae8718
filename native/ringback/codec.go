package ringback

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DiscriminatorLength is the size of the type tag prefixed to every record.
const DiscriminatorLength = 8

var (
	ErrDiscriminatorMismatch = errors.New("ringback codec: discriminator mismatch")
	ErrRecordTooLarge        = errors.New("ringback codec: record exceeds allocated space")
	ErrShortRecord           = errors.New("ringback codec: record shorter than discriminator")
)

// Record is implemented by every persisted account type.
type Record interface {
	AccountName() string
	Space() int
}

const (
	addrSize  = 1 + 20
	uint64Max = 1 + 8
	uint8Max  = 2
)

func rlpHeaderSize(payload int) int {
	if payload <= 55 {
		return 1
	}
	n := 0
	for v := payload; v > 0; v >>= 8 {
		n++
	}
	return 1 + n
}

func rlpStringMax(n int) int { return rlpHeaderSize(n) + n }

func rlpListMax(payload int) int { return rlpHeaderSize(payload) + payload }

func recordSpace(fields ...int) int {
	payload := 0
	for _, f := range fields {
		payload += f
	}
	return DiscriminatorLength + rlpListMax(payload)
}

var (
	platformSpace = recordSpace(addrSize, uint64Max, uint8Max)
	artistSpace   = recordSpace(
		addrSize,
		rlpStringMax(MaxNameLength),
		rlpStringMax(MaxURLLength),
		rlpListMax(MaxCollectionSize*addrSize),
		rlpListMax(MaxCollectionSize*addrSize),
		uint64Max, uint64Max, uint8Max,
	)
	fanSpace = recordSpace(
		addrSize,
		rlpStringMax(MaxNameLength),
		rlpStringMax(MaxURLLength),
		addrSize, uint64Max, uint8Max,
	)
	toneSpace = recordSpace(
		addrSize, uint64Max,
		rlpStringMax(MaxNameLength), uint8Max,
		rlpStringMax(MaxURLLength), uint64Max,
		rlpStringMax(MaxDurationLength),
		uint64Max, uint64Max, uint8Max,
	)
	subscriptionSpace = recordSpace(addrSize, addrSize, addrSize, uint64Max, uint64Max, uint8Max)
)

func (*Platform) AccountName() string      { return "Platform" }
func (*ArtistProfile) AccountName() string { return "ArtistProfile" }
func (*FanProfile) AccountName() string    { return "FanProfile" }
func (*RingBackTone) AccountName() string  { return "RingBackTone" }
func (*Subscription) AccountName() string  { return "Subscription" }

func (*Platform) Space() int      { return platformSpace }
func (*ArtistProfile) Space() int { return artistSpace }
func (*FanProfile) Space() int    { return fanSpace }
func (*RingBackTone) Space() int  { return toneSpace }
func (*Subscription) Space() int  { return subscriptionSpace }

// Discriminator returns the 8-byte tag identifying records of the named type.
func Discriminator(name string) [DiscriminatorLength]byte {
	var out [DiscriminatorLength]byte
	copy(out[:], ethcrypto.Keccak256([]byte("account:"+name)))
	return out
}

// Encode serialises a record behind its discriminator.
func Encode(rec Record) ([]byte, error) {
	if artist, ok := rec.(*ArtistProfile); ok {
		if len(artist.Tones) > MaxCollectionSize || len(artist.Subscribers) > MaxCollectionSize {
			return nil, fmt.Errorf("encode %s: collection exceeds %d entries: %w", rec.AccountName(), MaxCollectionSize, ErrRecordTooLarge)
		}
	}
	payload, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.AccountName(), err)
	}
	tag := Discriminator(rec.AccountName())
	out := make([]byte, 0, DiscriminatorLength+len(payload))
	out = append(out, tag[:]...)
	out = append(out, payload...)
	if len(out) > rec.Space() {
		return nil, fmt.Errorf("encode %s: %d > %d: %w", rec.AccountName(), len(out), rec.Space(), ErrRecordTooLarge)
	}
	return out, nil
}

func decode(data []byte, rec Record) error {
	if len(data) < DiscriminatorLength {
		return ErrShortRecord
	}
	tag := Discriminator(rec.AccountName())
	if string(data[:DiscriminatorLength]) != string(tag[:]) {
		return fmt.Errorf("decode %s: %w", rec.AccountName(), ErrDiscriminatorMismatch)
	}
	if err := rlp.DecodeBytes(data[DiscriminatorLength:], rec); err != nil {
		return fmt.Errorf("decode %s: %w", rec.AccountName(), err)
	}
	if artist, ok := rec.(*ArtistProfile); ok {
		if len(artist.Tones) == 0 {
			artist.Tones = nil
		}
		if len(artist.Subscribers) == 0 {
			artist.Subscribers = nil
		}
	}
	return nil
}

func DecodePlatform(data []byte) (*Platform, error) {
	out := new(Platform)
	if err := decode(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeArtist(data []byte) (*ArtistProfile, error) {
	out := new(ArtistProfile)
	if err := decode(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeFan(data []byte) (*FanProfile, error) {
	out := new(FanProfile)
	if err := decode(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeTone(data []byte) (*RingBackTone, error) {
	out := new(RingBackTone)
	if err := decode(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeSubscription(data []byte) (*Subscription, error) {
	out := new(Subscription)
	if err := decode(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
