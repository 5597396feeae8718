package ringback

import (
	"strconv"

	"rbtchain/core/events"
	"rbtchain/core/types"
	"rbtchain/crypto"
)

const (
	// EventTypePlatformSetup is emitted once the operator record exists.
	EventTypePlatformSetup = "ringback.platform.setup"
	// EventTypeArtistSignedUp is emitted when an artist profile is created.
	EventTypeArtistSignedUp = "ringback.artist.signed_up"
	// EventTypeFanSignedUp is emitted when a fan profile is created.
	EventTypeFanSignedUp = "ringback.fan.signed_up"
	// EventTypeToneUploaded is emitted when an artist uploads a tone.
	EventTypeToneUploaded = "ringback.tone.uploaded"
	// EventTypeToneSubscribed is emitted when a fan pays for a tone.
	EventTypeToneSubscribed = "ringback.tone.subscribed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func fmtAddr(a [20]byte) string { return crypto.FormatAddress(a) }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// PlatformSetupEvent announces the platform record.
func PlatformSetupEvent(platform, owner [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypePlatformSetup,
		Attributes: map[string]string{
			"platform": fmtAddr(platform),
			"owner":    fmtAddr(owner),
		},
	}
}

// ArtistSignedUpEvent announces a new artist profile.
func ArtistSignedUpEvent(profile [20]byte, artist *ArtistProfile) *types.Event {
	return &types.Event{
		Type: EventTypeArtistSignedUp,
		Attributes: map[string]string{
			"profile":    fmtAddr(profile),
			"owner":      fmtAddr(artist.Owner),
			"name":       artist.Name,
			"profileUrl": artist.ProfileURL,
		},
	}
}

// FanSignedUpEvent announces a new fan profile.
func FanSignedUpEvent(profile [20]byte, fan *FanProfile) *types.Event {
	return &types.Event{
		Type: EventTypeFanSignedUp,
		Attributes: map[string]string{
			"profile":    fmtAddr(profile),
			"owner":      fmtAddr(fan.Owner),
			"name":       fan.Name,
			"profileUrl": fan.ProfileURL,
		},
	}
}

// ToneUploadedEvent announces a new tone.
func ToneUploadedEvent(toneAddr [20]byte, tone *RingBackTone) *types.Event {
	return &types.Event{
		Type: EventTypeToneUploaded,
		Attributes: map[string]string{
			"tone":      fmtAddr(toneAddr),
			"sequence":  u64(tone.Sequence),
			"artist":    fmtAddr(tone.Owner),
			"audioName": tone.AudioName,
			"audioCode": strconv.Itoa(int(tone.AudioCode)),
			"audioUrl":  tone.AudioURL,
			"price":     u64(tone.Price),
			"duration":  tone.Duration,
			"createdAt": u64(tone.CreatedAt),
		},
	}
}

// ToneSubscribedEvent announces a paid subscription.
func ToneSubscribedEvent(subAddr [20]byte, sequence uint64, sub *Subscription) *types.Event {
	return &types.Event{
		Type: EventTypeToneSubscribed,
		Attributes: map[string]string{
			"subscription": fmtAddr(subAddr),
			"tone":         fmtAddr(sub.Tone),
			"sequence":     u64(sequence),
			"fan":          fmtAddr(sub.Fan),
			"artist":       fmtAddr(sub.Artist),
			"amount":       u64(sub.Amount),
			"subscribedAt": u64(sub.SubscribedAt),
		},
	}
}
