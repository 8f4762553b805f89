package orders

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Input is an asset the order creator releases to the filler. Inputs always
// live on the chain the order was created on.
type Input struct {
	Token  common.Address
	Amount *big.Int
}

// Output is an asset that must be delivered to Recipient on chain ChainId.
type Output struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	ChainId   uint32
}

// Order is the decoded Order event of the orders contract.
type Order struct {
	Deadline *big.Int
	Inputs   []Input
	Outputs  []Output
}

// Filled is the decoded Filled event of the orders contract.
type Filled struct {
	Outputs []Output
}

// AssetKey identifies a token on a specific chain.
type AssetKey struct {
	ChainID uint64
	Token   common.Address
}

// amount converts a decoded ABI amount, saturating values that do not fit.
func amount(v *big.Int) uint256.Int {
	if v == nil || v.Sign() < 0 {
		return uint256.Int{}
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return *new(uint256.Int).SetAllOne()
	}
	return *u
}

type outputJSON struct {
	Token     common.Address `json:"token"`
	Amount    *hexutil.Big   `json:"amount"`
	Recipient common.Address `json:"recipient"`
	ChainId   hexutil.Uint64 `json:"chainId"`
}

func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{
		Token:     o.Token,
		Amount:    (*hexutil.Big)(o.Amount),
		Recipient: o.Recipient,
		ChainId:   hexutil.Uint64(o.ChainId),
	})
}

func (o *Output) UnmarshalJSON(input []byte) error {
	var dec outputJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	o.Token = dec.Token
	o.Amount = new(big.Int)
	if dec.Amount != nil {
		o.Amount = dec.Amount.ToInt()
	}
	o.Recipient = dec.Recipient
	o.ChainId = uint32(dec.ChainId)
	return nil
}
