package params

import "github.com/ethereum/go-ethereum/common"

// Constants of the local test deployment. They are used by unit tests and by
// the CLI when no config file is given.
var (
	TestHostChainID   uint64 = 1
	TestRollupChainID uint64 = 15

	TestHostZenith     = repeatAddr(0x11)
	TestHostOrders     = repeatAddr(0x22)
	TestHostPassage    = repeatAddr(0x33)
	TestHostTransactor = repeatAddr(0x44)

	TestHostUSDC = repeatAddr(0x55)
	TestHostUSDT = repeatAddr(0x66)
	TestHostWBTC = repeatAddr(0x77)
	TestHostUSD  = repeatAddr(0x88)

	TestRollupUSDC = common.HexToAddress("0x0B8BC5e60EE10957E0d1A0d95598fA63E65605e2")
	TestRollupUSDT = common.HexToAddress("0xF34326d3521F1b07d1aa63729cB14A372f8A737C")
	TestRollupWBTC = common.HexToAddress("0xE3d7066115f7d6b65F88Dff86288dB4756a7D733")

	TestRollupOrders      = common.HexToAddress("0xC2D3Dac6B115564B10329697195656459BFb2c74")
	TestRollupPassage     = common.HexToAddress("0xB043BdD3d91376A76078c361bb82496Fdb809aE2")
	TestBaseFeeRecipient  = repeatAddr(0xab)
	TestDefaultRewardAddr = repeatAddr(0x81)
)

func repeatAddr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

// TestSystemConstants returns a fresh copy of the local test constants.
func TestSystemConstants() *SystemConstants {
	return &SystemConstants{
		Host: HostConstants{
			ChainID:    TestHostChainID,
			Zenith:     TestHostZenith,
			Orders:     TestHostOrders,
			Passage:    TestHostPassage,
			Transactor: TestHostTransactor,
			Tokens:     PredeployTokens{USDC: TestHostUSDC, USDT: TestHostUSDT, WBTC: TestHostWBTC},
			USD:        []HostUSDRecord{{Token: TestHostUSD, Name: "USD", Decimals: 6}},
		},
		Rollup: RollupConstants{
			ChainID:          TestRollupChainID,
			Orders:           TestRollupOrders,
			Passage:          TestRollupPassage,
			BaseFeeRecipient: TestBaseFeeRecipient,
			Tokens:           PredeployTokens{USDC: TestRollupUSDC, USDT: TestRollupUSDT, WBTC: TestRollupWBTC},
		},
	}
}
