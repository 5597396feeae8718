package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rbtchain/core/events"
	"rbtchain/core/state"
	"rbtchain/core/tx"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/native/ringback"
	"rbtchain/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

type signer struct {
	key   *crypto.PrivateKey
	id    [20]byte
	nonce uint64
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &signer{key: key, id: key.PubKey().Identity()}
}

func (s *signer) tx(t *testing.T, kind types.InstructionType, args interface{}) *types.Transaction {
	t.Helper()
	data, err := ringback.EncodeArgs(args)
	require.NoError(t, err)
	out := &types.Transaction{Type: kind, Nonce: s.nonce, Data: data}
	require.NoError(t, out.Sign(s.key.PrivateKey))
	return out
}

func (s *signer) apply(t *testing.T, x *Executor, kind types.InstructionType, args interface{}) (*Receipt, error) {
	t.Helper()
	receipt, err := x.Apply(context.Background(), s.tx(t, kind, args))
	if err == nil {
		s.nonce++
	}
	return receipt, err
}

func newTestExecutor(t *testing.T) (*Executor, *state.Manager, *recordingEmitter) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	x := NewExecutor(mgr, ringback.DefaultProgramID)
	x.SetNowFunc(func() int64 { return 1_700_000_000 })
	emitter := &recordingEmitter{}
	x.SetEmitter(emitter)
	return x, mgr, emitter
}

func fund(t *testing.T, mgr *state.Manager, who [20]byte, amount int64) {
	t.Helper()
	txn := mgr.Begin()
	acc, err := txn.GetAccount(who[:])
	require.NoError(t, err)
	acc.Balance = big.NewInt(amount)
	require.NoError(t, txn.PutAccount(who[:], acc))
	require.NoError(t, txn.Commit())
}

func TestExecutorEndToEnd(t *testing.T) {
	x, mgr, emitter := newTestExecutor(t)
	operator, artist, fan := newSigner(t), newSigner(t), newSigner(t)

	receipt, err := operator.apply(t, x, types.InstructionSetupPlatform, nil)
	require.NoError(t, err)
	require.Equal(t, "setup_platform", receipt.Instruction)
	require.Equal(t, crypto.FormatAddress(operator.id), receipt.Caller)
	require.Len(t, receipt.Events, 1)

	_, err = artist.apply(t, x, types.InstructionSignUpArtist, ringback.SignUpArgs{Name: "Artist", ProfileURL: "https://artist"})
	require.NoError(t, err)
	_, err = fan.apply(t, x, types.InstructionSignUpFan, ringback.SignUpArgs{Name: "Fan", ProfileURL: "https://fan"})
	require.NoError(t, err)
	receipt, err = artist.apply(t, x, types.InstructionUploadTone, ringback.UploadArgs{
		AudioName: "Tone", AudioCode: 2, AudioURL: "https://tone", Price: 100, Duration: "7d",
	})
	require.NoError(t, err)
	require.Equal(t, ringback.EventTypeToneUploaded, receipt.Events[0].Type)
	require.Equal(t, "0", receipt.Events[0].Attr("sequence"))

	fund(t, mgr, fan.id, 500)
	receipt, err = fan.apply(t, x, types.InstructionSubscribe, ringback.SubscribeArgs{ToneSequence: 0, Amount: 60})
	require.NoError(t, err)
	require.Equal(t, ringback.EventTypeToneSubscribed, receipt.Events[0].Type)

	view := x.View()
	tone, ok, err := view.Tone(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(60), tone.AmountReceived)
	require.Equal(t, uint64(1_700_000_000), tone.CreatedAt)

	acc, err := x.Account(fan.id)
	require.NoError(t, err)
	require.Equal(t, int64(440), acc.Balance.Int64())
	require.Equal(t, uint64(2), acc.Nonce)

	require.Len(t, emitter.events, 5)
}

func TestExecutorRejectsReplayedNonce(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	operator := newSigner(t)

	first := operator.tx(t, types.InstructionSetupPlatform, nil)
	_, err := x.Apply(context.Background(), first)
	require.NoError(t, err)

	replay := operator.tx(t, types.InstructionSetupPlatform, nil)
	_, err = x.Apply(context.Background(), replay)
	require.ErrorIs(t, err, tx.ErrNonceMismatch)
}

func TestExecutorFailureDiscardsStateAndEvents(t *testing.T) {
	x, _, emitter := newTestExecutor(t)
	artist := newSigner(t)

	_, err := artist.apply(t, x, types.InstructionSignUpArtist, ringback.SignUpArgs{Name: "", ProfileURL: "https://a"})
	require.ErrorIs(t, err, ringback.ErrCannotSignUpUser)
	require.Empty(t, emitter.events)

	acc, err := x.Account(artist.id)
	require.NoError(t, err)
	require.Zero(t, acc.Nonce)

	_, err = artist.apply(t, x, types.InstructionUploadTone, ringback.UploadArgs{
		AudioName: "Tone", AudioCode: 1, AudioURL: "https://tone", Price: 1, Duration: "1d",
	})
	require.ErrorIs(t, err, ringback.ErrPlatformNotInitialized)
}

func TestExecutorRejectsBadSignature(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	operator := newSigner(t)

	unsigned := &types.Transaction{Type: types.InstructionSetupPlatform}
	_, err := x.Apply(context.Background(), unsigned)
	require.ErrorIs(t, err, types.ErrMissingSignature)

	signed := operator.tx(t, types.InstructionSetupPlatform, nil)
	signed.V = big.NewInt(99)
	_, err = x.Apply(context.Background(), signed)
	require.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestExecutorRejectsMalformedArgs(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	fan := newSigner(t)
	bad := &types.Transaction{Type: types.InstructionSubscribe, Data: []byte{0xFF}}
	require.NoError(t, bad.Sign(fan.key.PrivateKey))
	_, err := x.Apply(context.Background(), bad)
	require.ErrorIs(t, err, ringback.ErrMalformedArgs)
}

func TestExecutorHonoursCancelledContext(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Apply(ctx, newSigner(t).tx(t, types.InstructionSetupPlatform, nil))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeNames(t *testing.T) {
	require.Equal(t, "ok", outcome(nil))
	require.Equal(t, "ToneNotFound", outcome(ringback.ErrToneNotFound))
	require.Equal(t, "AccountExists", outcome(state.ErrAccountExists))
	require.Equal(t, "NonceMismatch", outcome(tx.ErrNonceMismatch))
}
