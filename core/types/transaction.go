package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// InstructionType selects the state transition a transaction invokes.
type InstructionType byte

const (
	InstructionSetupPlatform InstructionType = 0x01
	InstructionSignUpArtist  InstructionType = 0x02
	InstructionSignUpFan     InstructionType = 0x03
	InstructionUploadTone    InstructionType = 0x04
	InstructionSubscribe     InstructionType = 0x05
)

var (
	ErrMissingSignature = errors.New("transaction: missing signature")
	ErrInvalidSignature = errors.New("transaction: invalid signature values")
)

// String returns the wire name of the instruction.
func (t InstructionType) String() string {
	switch t {
	case InstructionSetupPlatform:
		return "setup_platform"
	case InstructionSignUpArtist:
		return "sign_up_artist"
	case InstructionSignUpFan:
		return "sign_up_fan"
	case InstructionUploadTone:
		return "upload_tone"
	case InstructionSubscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("instruction(0x%02x)", byte(t))
	}
}

// Transaction is a signed request to run one instruction. Data carries the
// RLP encoded instruction arguments.
type Transaction struct {
	Type  InstructionType `json:"type"`
	Nonce uint64          `json:"nonce"`
	Data  []byte          `json:"data"`

	R, S, V *big.Int `json:"r"`

	from *[20]byte
}

type signingPayload struct {
	Type  uint8
	Nonce uint64
	Data  []byte
}

type envelope struct {
	Type  uint8
	Nonce uint64
	Data  []byte
	V     *big.Int
	R     *big.Int
	S     *big.Int
}

// Hash returns the keccak256 digest of the signed fields.
func (tx *Transaction) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(signingPayload{Type: uint8(tx.Type), Nonce: tx.Nonce, Data: tx.Data})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the identity that signed the transaction. A successful
// recovery is the possession proof for that identity.
func (tx *Transaction) From() ([20]byte, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	var out [20]byte
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return out, ErrMissingSignature
	}
	if !tx.V.IsUint64() || tx.V.Uint64() < 27 || tx.V.Uint64() > 28 {
		return out, ErrInvalidSignature
	}
	recID := byte(tx.V.Uint64() - 27)
	if !crypto.ValidateSignatureValues(recID, tx.R, tx.S, true) {
		return out, ErrInvalidSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return out, err
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = recID
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pubKey).Bytes())
	tx.from = &out
	return out, nil
}

// MarshalBinary encodes the transaction for transport.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(envelope{
		Type:  uint8(tx.Type),
		Nonce: tx.Nonce,
		Data:  tx.Data,
		V:     tx.V,
		R:     tx.R,
		S:     tx.S,
	})
}

// UnmarshalBinary decodes a transaction produced by MarshalBinary.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	*tx = Transaction{
		Type:  InstructionType(env.Type),
		Nonce: env.Nonce,
		Data:  env.Data,
		V:     env.V,
		R:     env.R,
		S:     env.S,
	}
	return nil
}
