package ringback

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"rbtchain/core/events"
	"rbtchain/core/state"
	"rbtchain/core/types"
)

var (
	errNilState       = errors.New("ringback engine: state not configured")
	errForeignAccount = errors.New("ringback engine: account owned by another program")
)

type engineState interface {
	CreateAccount(addr, owner [20]byte, space int, data []byte) error
	AccountData(addr [20]byte) ([20]byte, []byte, bool, error)
	SetAccountData(addr [20]byte, data []byte) error
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Engine applies ring-back-tone marketplace transitions against a state
// transaction. Callers bind a fresh transaction with SetState before each
// transition and commit or discard it afterwards.
type Engine struct {
	program [20]byte
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
}

// NewEngine constructs an engine owning accounts on behalf of program.
func NewEngine(program [20]byte) *Engine {
	return &Engine{
		program: program,
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		logger: slog.Default(),
	}
}

// Program returns the id of the program owning every marketplace account.
func (e *Engine) Program() [20]byte { return e.program }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetLogger replaces the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) load(addr [20]byte, rec Record) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	owner, data, ok, err := e.state.AccountData(addr)
	if err != nil || !ok {
		return false, err
	}
	if owner != e.program {
		return false, fmt.Errorf("%w: %s", errForeignAccount, fmtAddr(addr))
	}
	if err := decode(data, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) create(addr [20]byte, rec Record) error {
	if e.state == nil {
		return errNilState
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return e.state.CreateAccount(addr, e.program, rec.Space(), data)
}

func (e *Engine) store(addr [20]byte, rec Record) error {
	if e.state == nil {
		return errNilState
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return e.state.SetAccountData(addr, data)
}

// SetupPlatform creates the platform record owned by caller. It succeeds once.
func (e *Engine) SetupPlatform(caller [20]byte) (*Platform, error) {
	d, err := e.derive(platformSeeds())
	if err != nil {
		return nil, err
	}
	platform := &Platform{Owner: caller, ToneCount: 0, Bump: d.bump}
	if err := e.create(d.addr, platform); err != nil {
		return nil, err
	}
	e.emit(PlatformSetupEvent(d.addr, caller))
	e.logger.Debug("ringback platform set up", "platform", fmtAddr(d.addr), "owner", fmtAddr(caller))
	return platform, nil
}

// SignUpArtist creates caller's artist profile.
func (e *Engine) SignUpArtist(caller [20]byte, name, profileURL string) (*ArtistProfile, error) {
	if err := validateSignUp(name, profileURL); err != nil {
		return nil, err
	}
	d, err := e.derive(artistSeeds(caller))
	if err != nil {
		return nil, err
	}
	artist := &ArtistProfile{Owner: caller, Name: name, ProfileURL: profileURL, Bump: d.bump}
	if err := e.create(d.addr, artist); err != nil {
		return nil, err
	}
	e.emit(ArtistSignedUpEvent(d.addr, artist))
	e.logger.Debug("ringback artist signed up", "owner", fmtAddr(caller), "name", name)
	return artist, nil
}

// SignUpFan creates caller's fan profile.
func (e *Engine) SignUpFan(caller [20]byte, name, profileURL string) (*FanProfile, error) {
	if err := validateSignUp(name, profileURL); err != nil {
		return nil, err
	}
	d, err := e.derive(fanSeeds(caller))
	if err != nil {
		return nil, err
	}
	fan := &FanProfile{Owner: caller, Name: name, ProfileURL: profileURL, Bump: d.bump}
	if err := e.create(d.addr, fan); err != nil {
		return nil, err
	}
	e.emit(FanSignedUpEvent(d.addr, fan))
	e.logger.Debug("ringback fan signed up", "owner", fmtAddr(caller), "name", name)
	return fan, nil
}

// UploadTone creates a tone owned by caller at the next platform sequence
// and records it on the artist profile.
func (e *Engine) UploadTone(caller [20]byte, params UploadParams) (*RingBackTone, error) {
	if err := validateUpload(params); err != nil {
		return nil, err
	}
	platformD, err := e.derive(platformSeeds())
	if err != nil {
		return nil, err
	}
	platform := new(Platform)
	if ok, err := e.load(platformD.addr, platform); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrPlatformNotInitialized
	}
	artistD, err := e.derive(artistSeeds(caller))
	if err != nil {
		return nil, err
	}
	artist := new(ArtistProfile)
	if ok, err := e.load(artistD.addr, artist); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrArtistNotRegistered
	}
	if len(artist.Tones) >= MaxCollectionSize {
		return nil, ErrCollectionFull
	}
	toneD, err := e.derive(toneSeeds(platform.ToneCount))
	if err != nil {
		return nil, err
	}
	if artist.hasTone(toneD.addr) {
		return nil, ErrCannotAddRingbackTone
	}

	tone := &RingBackTone{
		Owner:     caller,
		Sequence:  platform.ToneCount,
		AudioName: params.AudioName,
		AudioCode: params.AudioCode,
		AudioURL:  params.AudioURL,
		Price:     params.Price,
		Duration:  params.Duration,
		CreatedAt: e.now(),
		Bump:      toneD.bump,
	}
	if err := e.create(toneD.addr, tone); err != nil {
		return nil, err
	}
	next, err := addUint64(platform.ToneCount, 1)
	if err != nil {
		return nil, err
	}
	platform.ToneCount = next
	if err := e.store(platformD.addr, platform); err != nil {
		return nil, err
	}
	artist.Tones = append(artist.Tones, toneD.addr)
	if err := e.store(artistD.addr, artist); err != nil {
		return nil, err
	}
	e.emit(ToneUploadedEvent(toneD.addr, tone))
	e.logger.Debug("ringback tone uploaded", "artist", fmtAddr(caller), "sequence", tone.Sequence, "price", tone.Price)
	return tone, nil
}

// Subscribe records caller as a subscriber of the tone with the given
// sequence and moves amount from caller to the tone account.
func (e *Engine) Subscribe(caller [20]byte, sequence uint64, amount uint64) (*Subscription, error) {
	if ValidatePositive(amount) != nil {
		return nil, ErrAmountNotGreaterThanZero
	}
	toneD, err := e.derive(toneSeeds(sequence))
	if err != nil {
		return nil, err
	}
	tone := new(RingBackTone)
	if ok, err := e.load(toneD.addr, tone); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrToneNotFound
	}
	if amount == tone.Price {
		return nil, ErrExceededTargetAmount
	}
	artistD, err := e.derive(artistSeeds(tone.Owner))
	if err != nil {
		return nil, err
	}
	artist := new(ArtistProfile)
	if ok, err := e.load(artistD.addr, artist); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrArtistNotRegistered
	}
	if artist.hasSubscriber(caller) {
		return nil, ErrUserSubscribedAudio
	}
	if len(artist.Subscribers) >= MaxCollectionSize {
		return nil, ErrCollectionFull
	}

	subscriptions, err := addUint64(artist.SubscriptionCount, 1)
	if err != nil {
		return nil, err
	}
	artistReceived, err := addUint64(artist.AmountReceived, amount)
	if err != nil {
		return nil, err
	}
	toneReceived, err := addUint64(tone.AmountReceived, amount)
	if err != nil {
		return nil, err
	}
	artist.Subscribers = append(artist.Subscribers, caller)
	artist.SubscriptionCount = subscriptions
	artist.AmountReceived = artistReceived
	if err := e.store(artistD.addr, artist); err != nil {
		return nil, err
	}
	tone.AmountReceived = toneReceived
	if err := e.store(toneD.addr, tone); err != nil {
		return nil, err
	}

	subD, err := e.derive(subscriptionSeeds(toneD.addr, caller))
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		Fan:          caller,
		Tone:         toneD.addr,
		Artist:       tone.Owner,
		Amount:       amount,
		SubscribedAt: e.now(),
		Bump:         subD.bump,
	}
	if err := e.create(subD.addr, sub); err != nil {
		return nil, err
	}

	fanD, err := e.derive(fanSeeds(caller))
	if err != nil {
		return nil, err
	}
	fan := new(FanProfile)
	ok, err := e.load(fanD.addr, fan)
	if err != nil {
		return nil, err
	}
	if ok {
		count, err := addUint64(fan.SubscriptionCount, 1)
		if err != nil {
			return nil, err
		}
		fan.SubscribedTone = toneD.addr
		fan.SubscriptionCount = count
		if err := e.store(fanD.addr, fan); err != nil {
			return nil, err
		}
	}

	if err := e.state.Transfer(caller, toneD.addr, new(big.Int).SetUint64(amount)); err != nil {
		return nil, err
	}
	e.emit(ToneSubscribedEvent(subD.addr, sequence, sub))
	e.logger.Debug("ringback tone subscribed", "fan", fmtAddr(caller), "sequence", sequence, "amount", amount)
	return sub, nil
}

// Platform returns the platform record.
func (e *Engine) Platform() (*Platform, bool, error) {
	d, err := e.derive(platformSeeds())
	if err != nil {
		return nil, false, err
	}
	out := new(Platform)
	ok, err := e.load(d.addr, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

// Artist returns owner's artist profile.
func (e *Engine) Artist(owner [20]byte) (*ArtistProfile, bool, error) {
	d, err := e.derive(artistSeeds(owner))
	if err != nil {
		return nil, false, err
	}
	out := new(ArtistProfile)
	ok, err := e.load(d.addr, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

// Fan returns owner's fan profile.
func (e *Engine) Fan(owner [20]byte) (*FanProfile, bool, error) {
	d, err := e.derive(fanSeeds(owner))
	if err != nil {
		return nil, false, err
	}
	out := new(FanProfile)
	ok, err := e.load(d.addr, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

// Tone returns the tone created with the given sequence.
func (e *Engine) Tone(sequence uint64) (*RingBackTone, bool, error) {
	d, err := e.derive(toneSeeds(sequence))
	if err != nil {
		return nil, false, err
	}
	out := new(RingBackTone)
	ok, err := e.load(d.addr, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

// Subscription returns the subscription of fan to the tone at toneAddr.
func (e *Engine) Subscription(toneAddr, fan [20]byte) (*Subscription, bool, error) {
	d, err := e.derive(subscriptionSeeds(toneAddr, fan))
	if err != nil {
		return nil, false, err
	}
	out := new(Subscription)
	ok, err := e.load(d.addr, out)
	if err != nil || !ok {
		return nil, ok, err
	}
	return out, true, nil
}

// IsAlreadyRegistered reports whether err stems from creating an account
// that already exists.
func IsAlreadyRegistered(err error) bool { return errors.Is(err, state.ErrAccountExists) }
