package ringback

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rbtchain/core/events"
	"rbtchain/core/state"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/storage"
)

type harness struct {
	t      *testing.T
	mgr    *state.Manager
	engine *Engine
	now    int64
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, mgr: state.NewManager(storage.NewMemDB()), now: 1_700_000_000}
	h.engine = NewEngine(DefaultProgramID)
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

// run applies fn inside one transaction, committing only when it succeeds.
func (h *harness) run(fn func(e *Engine) error) error {
	txn := h.mgr.Begin()
	buf := &events.Buffer{}
	h.engine.SetState(txn)
	h.engine.SetEmitter(buf)
	if err := fn(h.engine); err != nil {
		txn.Discard()
		return err
	}
	require.NoError(h.t, txn.Commit())
	h.events = append(h.events, buf.Events()...)
	return nil
}

func (h *harness) view() *Engine {
	e := NewEngine(DefaultProgramID)
	e.SetState(h.mgr.View())
	return e
}

func (h *harness) fund(who [20]byte, amount int64) {
	txn := h.mgr.Begin()
	require.NoError(h.t, txn.PutAccount(who[:], &types.Account{Balance: big.NewInt(amount)}))
	require.NoError(h.t, txn.Commit())
}

func (h *harness) balance(who [20]byte) int64 {
	acc, err := h.mgr.View().GetAccount(who[:])
	require.NoError(h.t, err)
	return acc.Balance.Int64()
}

func identity(b byte) [20]byte { return filled(b) }

var (
	operator = identity(0x01)
	artistA  = identity(0x0A)
	artistB  = identity(0x0B)
	fanX     = identity(0x10)
)

func validUpload() UploadParams {
	return UploadParams{AudioName: "Morning", AudioCode: 1, AudioURL: "https://cdn.example/morning.mp3", Price: 100, Duration: "30d"}
}

func (h *harness) setup() {
	require.NoError(h.t, h.run(func(e *Engine) error {
		_, err := e.SetupPlatform(operator)
		return err
	}))
}

func (h *harness) signUpArtist(who [20]byte) {
	require.NoError(h.t, h.run(func(e *Engine) error {
		_, err := e.SignUpArtist(who, "Artist", "https://artist.example")
		return err
	}))
}

func (h *harness) upload(who [20]byte, p UploadParams) (*RingBackTone, error) {
	var tone *RingBackTone
	err := h.run(func(e *Engine) error {
		var err error
		tone, err = e.UploadTone(who, p)
		return err
	})
	return tone, err
}

func (h *harness) subscribe(who [20]byte, seq, amount uint64) (*Subscription, error) {
	var sub *Subscription
	err := h.run(func(e *Engine) error {
		var err error
		sub, err = e.Subscribe(who, seq, amount)
		return err
	})
	return sub, err
}

func TestSetupPlatformOnce(t *testing.T) {
	h := newHarness(t)
	h.setup()

	platform, ok, err := h.view().Platform()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, operator, platform.Owner)
	require.Zero(t, platform.ToneCount)

	err = h.run(func(e *Engine) error {
		_, err := e.SetupPlatform(identity(0x02))
		return err
	})
	require.ErrorIs(t, err, state.ErrAccountExists)
	require.True(t, IsAlreadyRegistered(err))

	platform, _, err = h.view().Platform()
	require.NoError(t, err)
	require.Equal(t, operator, platform.Owner)

	require.Len(t, h.events, 1)
	require.Equal(t, EventTypePlatformSetup, h.events[0].EventType())
}

func TestSignUpNameLengthBoundary(t *testing.T) {
	h := newHarness(t)

	err := h.run(func(e *Engine) error {
		_, err := e.SignUpArtist(artistA, strings.Repeat("n", MaxNameLength+1), "https://a")
		return err
	})
	require.ErrorIs(t, err, ErrExceededNameMaxLength)

	err = h.run(func(e *Engine) error {
		_, err := e.SignUpArtist(artistA, strings.Repeat("n", MaxNameLength), "https://a")
		return err
	})
	require.NoError(t, err)

	err = h.run(func(e *Engine) error {
		_, err := e.SignUpFan(fanX, strings.Repeat("n", MaxNameLength+1), "https://f")
		return err
	})
	require.ErrorIs(t, err, ErrExceededNameMaxLength)
}

func TestSignUpRejectsEmptyFields(t *testing.T) {
	h := newHarness(t)
	tooLong := strings.Repeat("x", MaxURLLength+1)

	for _, tc := range []struct{ name, url string }{
		{"", "https://ok"},
		{"ok", ""},
		{"", tooLong},
		{strings.Repeat("x", 40), ""},
	} {
		err := h.run(func(e *Engine) error {
			_, err := e.SignUpArtist(artistA, tc.name, tc.url)
			return err
		})
		require.ErrorIs(t, err, ErrCannotSignUpUser)
		err = h.run(func(e *Engine) error {
			_, err := e.SignUpFan(fanX, tc.name, tc.url)
			return err
		})
		require.ErrorIs(t, err, ErrCannotSignUpUser)
	}

	_, ok, err := h.view().Artist(artistA)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignUpTwiceFails(t *testing.T) {
	h := newHarness(t)
	h.signUpArtist(artistA)
	err := h.run(func(e *Engine) error {
		_, err := e.SignUpArtist(artistA, "Again", "https://again")
		return err
	})
	require.ErrorIs(t, err, state.ErrAccountExists)

	require.NoError(t, h.run(func(e *Engine) error {
		_, err := e.SignUpFan(fanX, "Fan", "https://fan")
		return err
	}))
	err = h.run(func(e *Engine) error {
		_, err := e.SignUpFan(fanX, "Fan", "https://fan")
		return err
	})
	require.ErrorIs(t, err, state.ErrAccountExists)

	// an identity may hold both profiles
	require.NoError(t, h.run(func(e *Engine) error {
		_, err := e.SignUpFan(artistA, "Both", "https://both")
		return err
	}))
}

func TestUploadToneAudioCode(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)

	p := validUpload()
	p.AudioCode = 0
	_, err := h.upload(artistA, p)
	require.ErrorIs(t, err, ErrInvalidAudioCode)

	platform, _, err := h.view().Platform()
	require.NoError(t, err)
	require.Zero(t, platform.ToneCount)

	p.AudioCode = 1
	tone, err := h.upload(artistA, p)
	require.NoError(t, err)
	require.Zero(t, tone.Sequence)
	require.Equal(t, uint64(h.now), tone.CreatedAt)

	platform, _, err = h.view().Platform()
	require.NoError(t, err)
	require.Equal(t, uint64(1), platform.ToneCount)
}

func TestUploadPreconditions(t *testing.T) {
	h := newHarness(t)

	_, err := h.upload(artistA, validUpload())
	require.ErrorIs(t, err, ErrPlatformNotInitialized)

	h.setup()
	_, err = h.upload(artistA, validUpload())
	require.ErrorIs(t, err, ErrArtistNotRegistered)

	h.signUpArtist(artistA)
	for i := 0; i < MaxCollectionSize; i++ {
		_, err = h.upload(artistA, validUpload())
		require.NoError(t, err)
	}
	_, err = h.upload(artistA, validUpload())
	require.ErrorIs(t, err, ErrCollectionFull)

	platform, _, err := h.view().Platform()
	require.NoError(t, err)
	require.Equal(t, uint64(MaxCollectionSize), platform.ToneCount)
}

func TestUploadTwoTonesDistinctAddresses(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	h.signUpArtist(artistB)

	_, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	_, err = h.upload(artistB, validUpload())
	require.NoError(t, err)
	_, err = h.upload(artistA, validUpload())
	require.NoError(t, err)

	v := h.view()
	artist, ok, err := v.Artist(artistA)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, artist.Tones, 2)
	require.NotEqual(t, artist.Tones[0], artist.Tones[1])

	first, err := v.ToneAddress(0)
	require.NoError(t, err)
	third, err := v.ToneAddress(2)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{first, third}, artist.Tones)

	// tone addresses depend on the sequence alone
	other := NewEngine(DefaultProgramID)
	again, err := other.ToneAddress(2)
	require.NoError(t, err)
	require.Equal(t, third, again)
	seeds := toneSeeds(2)
	derived, bump, err := crypto.FindDerivedAddress(DefaultProgramID, seeds...)
	require.NoError(t, err)
	require.Equal(t, third, derived)

	tone, ok, err := v.Tone(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bump, tone.Bump)
	require.Equal(t, artistA, tone.Owner)
}

func TestSubscribeRejectsAmountEqualToPrice(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	h.fund(fanX, 1_000)

	_, err = h.subscribe(fanX, tone.Sequence, tone.Price)
	require.ErrorIs(t, err, ErrExceededTargetAmount)
	require.Equal(t, int64(1_000), h.balance(fanX))
}

func TestSubscribePreconditions(t *testing.T) {
	h := newHarness(t)
	h.setup()

	_, err := h.subscribe(fanX, 0, 0)
	require.ErrorIs(t, err, ErrAmountNotGreaterThanZero)

	_, err = h.subscribe(fanX, 0, 10)
	require.ErrorIs(t, err, ErrToneNotFound)
}

func TestSubscribeTwiceFails(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	require.NoError(t, h.run(func(e *Engine) error {
		_, err := e.SignUpFan(fanX, "Fan", "https://fan")
		return err
	}))
	h.fund(fanX, 1_000)

	h.now += 60
	sub, err := h.subscribe(fanX, tone.Sequence, 50)
	require.NoError(t, err)
	require.Equal(t, fanX, sub.Fan)
	require.Equal(t, artistA, sub.Artist)
	require.Equal(t, uint64(h.now), sub.SubscribedAt)

	_, err = h.subscribe(fanX, tone.Sequence, 50)
	require.ErrorIs(t, err, ErrUserSubscribedAudio)

	v := h.view()
	artist, _, err := v.Artist(artistA)
	require.NoError(t, err)
	require.Equal(t, uint64(1), artist.SubscriptionCount)
	require.Equal(t, uint64(50), artist.AmountReceived)
	require.Equal(t, [][20]byte{fanX}, artist.Subscribers)

	stored, _, err := v.Tone(tone.Sequence)
	require.NoError(t, err)
	require.Equal(t, uint64(50), stored.AmountReceived)

	toneAddr, err := v.ToneAddress(tone.Sequence)
	require.NoError(t, err)
	fan, _, err := v.Fan(fanX)
	require.NoError(t, err)
	require.Equal(t, toneAddr, fan.SubscribedTone)
	require.Equal(t, uint64(1), fan.SubscriptionCount)

	record, ok, err := v.Subscription(toneAddr, fanX)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(50), record.Amount)

	require.Equal(t, int64(950), h.balance(fanX))
	require.Equal(t, int64(50), h.balance(toneAddr))
}

func TestSubscribeWithoutFanProfile(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	h.fund(fanX, 100)

	_, err = h.subscribe(fanX, tone.Sequence, 20)
	require.NoError(t, err)

	_, ok, err := h.view().Fan(fanX)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSubscribeInsufficientFundsLeavesNoState(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	h.fund(fanX, 10)

	_, err = h.subscribe(fanX, tone.Sequence, 20)
	require.ErrorIs(t, err, state.ErrInsufficientFunds)

	v := h.view()
	artist, _, err := v.Artist(artistA)
	require.NoError(t, err)
	require.Empty(t, artist.Subscribers)
	require.Zero(t, artist.SubscriptionCount)
	toneAddr, err := v.ToneAddress(tone.Sequence)
	require.NoError(t, err)
	_, ok, err := v.Subscription(toneAddr, fanX)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(10), h.balance(fanX))

	// the failed attempt does not count as a subscription
	h.fund(fanX, 100)
	_, err = h.subscribe(fanX, tone.Sequence, 20)
	require.NoError(t, err)
}

func TestSubscriberCollectionFull(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)

	for i := 0; i < MaxCollectionSize; i++ {
		fan := identity(byte(0x20 + i))
		h.fund(fan, 100)
		_, err := h.subscribe(fan, tone.Sequence, 10)
		require.NoError(t, err)
	}
	late := identity(0x30)
	h.fund(late, 100)
	_, err = h.subscribe(late, tone.Sequence, 10)
	require.ErrorIs(t, err, ErrCollectionFull)

	artist, _, err := h.view().Artist(artistA)
	require.NoError(t, err)
	require.Equal(t, uint64(MaxCollectionSize*10), artist.AmountReceived)
}

func TestSubscribeEmitsEvent(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.signUpArtist(artistA)
	tone, err := h.upload(artistA, validUpload())
	require.NoError(t, err)
	h.fund(fanX, 100)
	_, err = h.subscribe(fanX, tone.Sequence, 40)
	require.NoError(t, err)

	last := h.events[len(h.events)-1].Event()
	require.Equal(t, EventTypeToneSubscribed, last.Type)
	require.Equal(t, "40", last.Attr("amount"))
	require.Equal(t, crypto.FormatAddress(fanX), last.Attr("fan"))
	require.Equal(t, crypto.FormatAddress(artistA), last.Attr("artist"))
	require.Equal(t, "0", last.Attr("sequence"))
}

func TestEngineWithoutStateFails(t *testing.T) {
	e := NewEngine(DefaultProgramID)
	_, err := e.SetupPlatform(operator)
	require.ErrorIs(t, err, errNilState)
}

func TestEngineClock(t *testing.T) {
	e := NewEngine(DefaultProgramID)
	before := uint64(time.Now().Unix())
	require.GreaterOrEqual(t, e.now(), before)

	e.SetNowFunc(func() int64 { return -5 })
	require.Zero(t, e.now())

	e.SetNowFunc(func() int64 { return 42 })
	require.Equal(t, uint64(42), e.now())

	e.SetNowFunc(nil)
	require.GreaterOrEqual(t, e.now(), before)
}
