package extract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// HostABI holds the events of the host passage, transactor and zenith
// contracts that the rollup consumes.
const HostABI = `[
{"type":"event","name":"Enter","anonymous":false,"inputs":[
	{"name":"rollupChainId","type":"uint256","indexed":true},
	{"name":"rollupRecipient","type":"address","indexed":true},
	{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"EnterToken","anonymous":false,"inputs":[
	{"name":"rollupChainId","type":"uint256","indexed":true},
	{"name":"rollupRecipient","type":"address","indexed":true},
	{"name":"token","type":"address","indexed":true},
	{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"Transact","anonymous":false,"inputs":[
	{"name":"rollupChainId","type":"uint256","indexed":true},
	{"name":"sender","type":"address","indexed":true},
	{"name":"to","type":"address","indexed":true},
	{"name":"data","type":"bytes","indexed":false},
	{"name":"value","type":"uint256","indexed":false},
	{"name":"gas","type":"uint256","indexed":false},
	{"name":"maxFeePerGas","type":"uint256","indexed":false}]},
{"type":"event","name":"BlockSubmitted","anonymous":false,"inputs":[
	{"name":"sequencer","type":"address","indexed":true},
	{"name":"rollupChainId","type":"uint256","indexed":true},
	{"name":"gasLimit","type":"uint256","indexed":false},
	{"name":"rewardAddress","type":"address","indexed":false},
	{"name":"blockDataHash","type":"bytes32","indexed":false}]}
]`

var hostABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(HostABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

var (
	EnterTopic          = hostABI.Events["Enter"].ID
	EnterTokenTopic     = hostABI.Events["EnterToken"].ID
	TransactTopic       = hostABI.Events["Transact"].ID
	BlockSubmittedTopic = hostABI.Events["BlockSubmitted"].ID
)

// ABI returns the parsed host event interface.
func ABI() abi.ABI { return hostABI }
