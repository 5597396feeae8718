package tx

import (
	"errors"
	"fmt"

	"rbtchain/core/state"
	"rbtchain/core/types"
)

// MaxDataSize bounds the RLP argument payload of a transaction.
const MaxDataSize = 2048

var (
	ErrNilTransaction     = errors.New("tx: transaction required")
	ErrUnknownInstruction = errors.New("tx: unknown instruction")
	ErrDataTooLarge       = errors.New("tx: instruction data too large")
	ErrNonceMismatch      = errors.New("tx: nonce mismatch")
)

// CheckStateless validates the fields of a transaction that do not depend on
// state. It does not verify the signature.
func CheckStateless(t *types.Transaction) error {
	if t == nil {
		return ErrNilTransaction
	}
	switch t.Type {
	case types.InstructionSetupPlatform,
		types.InstructionSignUpArtist,
		types.InstructionSignUpFan,
		types.InstructionUploadTone,
		types.InstructionSubscribe:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInstruction, t.Type)
	}
	if len(t.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(t.Data))
	}
	return nil
}

// CheckNonce loads the caller's account and verifies that nonce is the next
// expected one.
func CheckNonce(txn *state.Txn, caller [20]byte, nonce uint64) (*types.Account, error) {
	if txn == nil {
		return nil, fmt.Errorf("tx: state transaction required")
	}
	account, err := txn.GetAccount(caller[:])
	if err != nil {
		return nil, err
	}
	if account.Nonce != nonce {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, account.Nonce, nonce)
	}
	return account, nil
}
