package ringback

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrMalformedArgs reports an instruction payload that does not decode.
var ErrMalformedArgs = errors.New("ringback: malformed instruction arguments")

// SignUpArgs is the payload of sign_up_artist and sign_up_fan.
type SignUpArgs struct {
	Name       string
	ProfileURL string
}

// UploadArgs is the payload of upload_tone.
type UploadArgs struct {
	AudioName string
	AudioCode uint8
	AudioURL  string
	Price     uint64
	Duration  string
}

// Params converts the payload into handler parameters.
func (a UploadArgs) Params() UploadParams {
	return UploadParams{
		AudioName: a.AudioName,
		AudioCode: a.AudioCode,
		AudioURL:  a.AudioURL,
		Price:     a.Price,
		Duration:  a.Duration,
	}
}

// SubscribeArgs is the payload of subscribe.
type SubscribeArgs struct {
	ToneSequence uint64
	Amount       uint64
}

// EncodeArgs serialises an instruction payload.
func EncodeArgs(args interface{}) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	return rlp.EncodeToBytes(args)
}

// DecodeArgs parses an instruction payload into out.
func DecodeArgs(data []byte, out interface{}) error {
	if err := rlp.DecodeBytes(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArgs, err)
	}
	return nil
}
