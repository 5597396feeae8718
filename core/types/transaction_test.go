package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestTransactionSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &Transaction{Type: InstructionSignUpArtist, Nonce: 3, Data: []byte{0xc0}}
	require.NoError(t, tx.Sign(key))

	from, err := tx.From()
	require.NoError(t, err)
	var want [20]byte
	copy(want[:], crypto.PubkeyToAddress(key.PublicKey).Bytes())
	require.Equal(t, want, from)
}

func TestTransactionBinaryRoundTripKeepsSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &Transaction{Type: InstructionSubscribe, Nonce: 9, Data: []byte("payload")}
	require.NoError(t, tx.Sign(key))
	signer, err := tx.From()
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))
	require.Equal(t, tx.Type, decoded.Type)
	require.Equal(t, tx.Nonce, decoded.Nonce)
	require.Equal(t, tx.Data, decoded.Data)

	recovered, err := decoded.From()
	require.NoError(t, err)
	require.Equal(t, signer, recovered)
}

func TestTransactionTamperingChangesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &Transaction{Type: InstructionSubscribe, Nonce: 1, Data: []byte("a")}
	require.NoError(t, tx.Sign(key))
	signer, err := tx.From()
	require.NoError(t, err)

	forged := &Transaction{Type: tx.Type, Nonce: tx.Nonce, Data: []byte("b"), R: tx.R, S: tx.S, V: tx.V}
	recovered, err := forged.From()
	if err == nil {
		require.NotEqual(t, signer, recovered)
	}
}

func TestTransactionFromRequiresSignature(t *testing.T) {
	tx := &Transaction{Type: InstructionSetupPlatform}
	_, err := tx.From()
	require.ErrorIs(t, err, ErrMissingSignature)

	tx.R, tx.S, tx.V = big.NewInt(1), big.NewInt(1), big.NewInt(99)
	_, err = tx.From()
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestInstructionTypeString(t *testing.T) {
	require.Equal(t, "upload_tone", InstructionUploadTone.String())
	require.Equal(t, "instruction(0x7f)", InstructionType(0x7f).String())
}
