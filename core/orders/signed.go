package orders

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrFillExpired = errors.New("signed fill deadline passed")
	ErrFillEmpty   = errors.New("signed fill has no outputs")
)

// SignedFill is a fill authorized off-chain by the filler, to be executed on
// the host chain alongside a bundle. The permit signature itself is verified
// by the host contract and is carried opaquely.
type SignedFill struct {
	Deadline  uint64        `json:"deadline"`
	Signature hexutil.Bytes `json:"signature,omitempty"`
	Outputs   []Output      `json:"outputs"`
}

// Validate checks that the fill is syntactically usable at timestamp.
func (f *SignedFill) Validate(timestamp uint64) error {
	if len(f.Outputs) == 0 {
		return ErrFillEmpty
	}
	if f.Deadline < timestamp {
		return fmt.Errorf("%w: deadline %d, now %d", ErrFillExpired, f.Deadline, timestamp)
	}
	for i, o := range f.Outputs {
		if o.Amount == nil || o.Amount.Sign() <= 0 {
			return fmt.Errorf("output %d: non-positive amount", i)
		}
	}
	return nil
}
