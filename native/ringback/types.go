package ringback

const (
	// MaxNameLength bounds artist, fan and audio names in bytes.
	MaxNameLength = 20
	// MaxURLLength bounds profile and audio URLs in bytes.
	MaxURLLength = 255
	// MaxDurationLength bounds the free-form subscription duration label.
	MaxDurationLength = 10
	// MaxCollectionSize bounds the owned tones and subscribers of an artist.
	MaxCollectionSize = 5
)

// Platform is the singleton operator record. ToneCount is the sequence of
// the next tone and never decreases.
type Platform struct {
	Owner     [20]byte
	ToneCount uint64
	Bump      uint8
}

// ArtistProfile describes a registered artist.
type ArtistProfile struct {
	Owner             [20]byte
	Name              string
	ProfileURL        string
	Tones             [][20]byte
	Subscribers       [][20]byte
	SubscriptionCount uint64
	AmountReceived    uint64
	Bump              uint8
}

// FanProfile describes a registered fan. SubscribedTone holds the address of
// the most recently subscribed tone and is zero until the first subscription.
type FanProfile struct {
	Owner             [20]byte
	Name              string
	ProfileURL        string
	SubscribedTone    [20]byte
	SubscriptionCount uint64
	Bump              uint8
}

// RingBackTone is an uploaded tone offered at a fixed price.
type RingBackTone struct {
	Owner          [20]byte
	Sequence       uint64
	AudioName      string
	AudioCode      uint8
	AudioURL       string
	Price          uint64
	Duration       string
	CreatedAt      uint64
	AmountReceived uint64
	Bump           uint8
}

// Subscription links one fan to one tone.
type Subscription struct {
	Fan          [20]byte
	Tone         [20]byte
	Artist       [20]byte
	Amount       uint64
	SubscribedAt uint64
	Bump         uint8
}

// UploadParams carries the caller supplied fields of a new tone.
type UploadParams struct {
	AudioName string
	AudioCode uint8
	AudioURL  string
	Price     uint64
	Duration  string
}

func (a *ArtistProfile) hasTone(tone [20]byte) bool {
	for _, ref := range a.Tones {
		if ref == tone {
			return true
		}
	}
	return false
}

func (a *ArtistProfile) hasSubscriber(fan [20]byte) bool {
	for _, ref := range a.Subscribers {
		if ref == fan {
			return true
		}
	}
	return false
}
