package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rbtchain/core/events"
	"rbtchain/core/state"
	"rbtchain/core/tx"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/native/ringback"
	"rbtchain/observability/metrics"
	rbtotel "rbtchain/observability/otel"
)

// Receipt summarises a committed transaction.
type Receipt struct {
	TxHash      string        `json:"txHash"`
	Caller      string        `json:"caller"`
	Instruction string        `json:"instruction"`
	Nonce       uint64        `json:"nonce"`
	Events      []types.Event `json:"events"`
}

// Executor verifies signed transactions and applies them to state, one at a
// time. A transaction either commits every write it made or none of them.
type Executor struct {
	state   *state.Manager
	program [20]byte
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
	metrics *metrics.RingbackMetrics
	tracer  trace.Tracer
}

// NewExecutor builds an executor for the marketplace program over mgr.
func NewExecutor(mgr *state.Manager, program [20]byte) *Executor {
	return &Executor{
		state:   mgr,
		program: program,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
		tracer:  rbtotel.Tracer("rbtchain/core"),
	}
}

// SetEmitter configures where committed events are delivered.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

// SetNowFunc overrides the clock stamped on created records.
func (x *Executor) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	x.nowFn = now
}

func (x *Executor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	x.logger = logger
}

func (x *Executor) SetMetrics(m *metrics.RingbackMetrics) { x.metrics = m }

// Program returns the marketplace program id.
func (x *Executor) Program() [20]byte { return x.program }

func (x *Executor) engine(txn *state.Txn, emitter events.Emitter) *ringback.Engine {
	engine := ringback.NewEngine(x.program)
	engine.SetState(txn)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(x.nowFn)
	engine.SetLogger(x.logger)
	return engine
}

// View returns an engine reading committed state. Writes through it fail.
func (x *Executor) View() *ringback.Engine {
	return x.engine(x.state.View(), nil)
}

// Account returns the balance account of addr from committed state.
func (x *Executor) Account(addr [20]byte) (*types.Account, error) {
	return x.state.View().GetAccount(addr[:])
}

// Apply verifies and executes one signed transaction.
func (x *Executor) Apply(ctx context.Context, t *types.Transaction) (receipt *Receipt, err error) {
	if err := tx.CheckStateless(t); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	instruction := t.Type.String()
	ctx, span := x.tracer.Start(ctx, "ringback."+instruction)
	defer span.End()
	start := time.Now()
	defer func() {
		x.metrics.ObserveTransition(instruction, outcome(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
	}()

	caller, err := t.From()
	if err != nil {
		return nil, err
	}
	hash, err := t.Hash()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("rbt.caller", crypto.FormatAddress(caller)),
		attribute.Int64("rbt.nonce", int64(t.Nonce)),
	)

	txn := x.state.Begin()
	defer txn.Discard()

	if _, err := tx.CheckNonce(txn, caller, t.Nonce); err != nil {
		return nil, err
	}
	buf := &events.Buffer{}
	if err := x.dispatch(x.engine(txn, buf), caller, t); err != nil {
		x.logger.InfoContext(ctx, "transaction rejected",
			"instruction", instruction,
			"caller", crypto.FormatAddress(caller),
			"error", err)
		return nil, err
	}

	account, err := txn.GetAccount(caller[:])
	if err != nil {
		return nil, err
	}
	account.Nonce++
	if err := txn.PutAccount(caller[:], account); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", instruction, err)
	}

	committed := buf.Events()
	buf.Flush(x.emitter)
	receipt = &Receipt{
		TxHash:      "0x" + hex.EncodeToString(hash),
		Caller:      crypto.FormatAddress(caller),
		Instruction: instruction,
		Nonce:       t.Nonce,
		Events:      make([]types.Event, 0, len(committed)),
	}
	for _, evt := range committed {
		if payload := evt.Event(); payload != nil {
			receipt.Events = append(receipt.Events, payload.Clone())
		}
	}
	x.observeEvents(receipt.Events)
	x.logger.InfoContext(ctx, "transaction applied",
		"instruction", instruction,
		"caller", receipt.Caller,
		"txHash", receipt.TxHash,
		"events", len(receipt.Events))
	return receipt, nil
}

func (x *Executor) dispatch(engine *ringback.Engine, caller [20]byte, t *types.Transaction) error {
	switch t.Type {
	case types.InstructionSetupPlatform:
		_, err := engine.SetupPlatform(caller)
		return err
	case types.InstructionSignUpArtist:
		var args ringback.SignUpArgs
		if err := ringback.DecodeArgs(t.Data, &args); err != nil {
			return err
		}
		_, err := engine.SignUpArtist(caller, args.Name, args.ProfileURL)
		return err
	case types.InstructionSignUpFan:
		var args ringback.SignUpArgs
		if err := ringback.DecodeArgs(t.Data, &args); err != nil {
			return err
		}
		_, err := engine.SignUpFan(caller, args.Name, args.ProfileURL)
		return err
	case types.InstructionUploadTone:
		var args ringback.UploadArgs
		if err := ringback.DecodeArgs(t.Data, &args); err != nil {
			return err
		}
		_, err := engine.UploadTone(caller, args.Params())
		return err
	case types.InstructionSubscribe:
		var args ringback.SubscribeArgs
		if err := ringback.DecodeArgs(t.Data, &args); err != nil {
			return err
		}
		_, err := engine.Subscribe(caller, args.ToneSequence, args.Amount)
		return err
	default:
		return fmt.Errorf("%w: %s", tx.ErrUnknownInstruction, t.Type)
	}
}

func (x *Executor) observeEvents(evts []types.Event) {
	if x.metrics == nil {
		return
	}
	for i := range evts {
		evt := &evts[i]
		switch evt.Type {
		case ringback.EventTypeToneUploaded:
			if seq, err := strconv.ParseUint(evt.Attr("sequence"), 10, 64); err == nil {
				x.metrics.SetToneCount(seq + 1)
			}
		case ringback.EventTypeToneSubscribed:
			if amount, err := strconv.ParseUint(evt.Attr("amount"), 10, 64); err == nil {
				x.metrics.AddSubscriptionAmount(amount)
			}
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *ringback.Error
	if errors.As(err, &domainErr) {
		return domainErr.Name
	}
	switch {
	case errors.Is(err, state.ErrAccountExists):
		return "AccountExists"
	case errors.Is(err, state.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, tx.ErrNonceMismatch):
		return "NonceMismatch"
	case errors.Is(err, types.ErrInvalidSignature), errors.Is(err, types.ErrMissingSignature):
		return "InvalidSignature"
	case errors.Is(err, ringback.ErrMalformedArgs):
		return "MalformedArgs"
	default:
		return "error"
	}
}
