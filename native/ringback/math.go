package ringback

import "github.com/holiman/uint256"

// addUint64 returns a+b or ErrAmountOverflow when the sum leaves uint64.
func addUint64(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return sum.Uint64(), nil
}
