package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/signetlabs/signet-node/core/orders"
)

// OrderEmitterCode returns code for an orders contract at contract whose
// every call emits one Order requiring amount of token for recipient on
// chainID.
func OrderEmitterCode(contract, token, recipient common.Address, amount int64, chainID uint64) []byte {
	lg, err := orders.OrderLog(contract, &orders.Order{
		Deadline: new(big.Int),
		Inputs:   []orders.Input{{Token: common.Address{}, Amount: big.NewInt(1)}},
		Outputs: []orders.Output{{
			Token: token, Amount: big.NewInt(amount), Recipient: recipient, ChainId: uint32(chainID),
		}},
	})
	if err != nil {
		panic(err)
	}
	return EmitterCode(lg.Topics[0], lg.Data, false)
}

// FilledEmitterCode returns code for an orders contract at contract whose
// every call emits one Filled delivering amount of token to recipient.
func FilledEmitterCode(contract, token, recipient common.Address, amount int64) []byte {
	lg, err := orders.FilledLog(contract, &orders.Filled{Outputs: []orders.Output{{
		Token: token, Amount: big.NewInt(amount), Recipient: recipient,
	}}})
	if err != nil {
		panic(err)
	}
	return EmitterCode(lg.Topics[0], lg.Data, false)
}
