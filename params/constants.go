package params

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MinterAddress is the system address that issues mints on the rollup. All
// Enter and EnterToken system transactions are attributed to it.
//
// The hex spells "tokenadmin".
var MinterAddress = common.HexToAddress("0x00000000000000000000746f6b656e61646d696e")

// PredeployTokens lists the permissioned tokens that exist on both chains.
type PredeployTokens struct {
	USDC common.Address `toml:",omitempty" yaml:"usdc"`
	USDT common.Address `toml:",omitempty" yaml:"usdt"`
	WBTC common.Address `toml:",omitempty" yaml:"wbtc"`
}

// Addresses returns the token addresses in a fixed order.
func (t PredeployTokens) Addresses() []common.Address {
	return []common.Address{t.USDC, t.USDT, t.WBTC}
}

// HostUSDRecord describes a host token that is bridged into the rollup's
// native asset rather than into an ERC-20.
type HostUSDRecord struct {
	Token    common.Address `yaml:"token"`
	Name     string         `yaml:"name"`
	Decimals uint8          `yaml:"decimals"`
}

// HostConstants are the system addresses of the host chain deployment.
type HostConstants struct {
	ChainID      uint64          `yaml:"chainId"`
	DeployHeight uint64          `yaml:"deployHeight"`
	Zenith       common.Address  `yaml:"zenith"`
	Orders       common.Address  `yaml:"orders"`
	Passage      common.Address  `yaml:"passage"`
	Transactor   common.Address  `yaml:"transactor"`
	Tokens       PredeployTokens `yaml:"tokens"`
	USD          []HostUSDRecord `toml:",omitempty" yaml:"usd"`
}

// RollupConstants are the system addresses of the rollup.
type RollupConstants struct {
	ChainID          uint64          `yaml:"chainId"`
	Orders           common.Address  `yaml:"orders"`
	Passage          common.Address  `yaml:"passage"`
	BaseFeeRecipient common.Address  `yaml:"baseFeeRecipient"`
	Tokens           PredeployTokens `yaml:"tokens"`
}

// SystemConstants is the full set of constants shared by the driver, the
// detector and the simulator.
type SystemConstants struct {
	Host   HostConstants   `yaml:"host"`
	Rollup RollupConstants `yaml:"rollup"`
}

func (c *SystemConstants) HostChainID() uint64   { return c.Host.ChainID }
func (c *SystemConstants) RollupChainID() uint64 { return c.Rollup.ChainID }

// RollupTokenFromHost maps a permissioned host token to its rollup
// counterpart.
func (c *SystemConstants) RollupTokenFromHost(host common.Address) (common.Address, bool) {
	switch host {
	case common.Address{}:
		return common.Address{}, false
	case c.Host.Tokens.USDC:
		return c.Rollup.Tokens.USDC, true
	case c.Host.Tokens.USDT:
		return c.Rollup.Tokens.USDT, true
	case c.Host.Tokens.WBTC:
		return c.Rollup.Tokens.WBTC, true
	}
	return common.Address{}, false
}

// HostUSD returns the USD record for a host token, if it is one.
func (c *SystemConstants) HostUSD(token common.Address) (HostUSDRecord, bool) {
	for _, rec := range c.Host.USD {
		if rec.Token == token {
			return rec, true
		}
	}
	return HostUSDRecord{}, false
}

// IsHostUSD reports whether token is bridged as the rollup native asset.
func (c *SystemConstants) IsHostUSD(token common.Address) bool {
	_, ok := c.HostUSD(token)
	return ok
}

// Validate checks the constants for obvious misconfiguration.
func (c *SystemConstants) Validate() error {
	if c.Host.ChainID == 0 || c.Rollup.ChainID == 0 {
		return errors.New("chain ids must be non-zero")
	}
	if c.Host.ChainID == c.Rollup.ChainID {
		return fmt.Errorf("host and rollup share chain id %d", c.Host.ChainID)
	}
	if c.Rollup.Orders == (common.Address{}) {
		return errors.New("rollup orders address unset")
	}
	if c.Rollup.Passage == (common.Address{}) {
		return errors.New("rollup passage address unset")
	}
	for _, rec := range c.Host.USD {
		if rec.Decimals > 36 {
			return fmt.Errorf("usd record %s: unsupported decimals %d", rec.Name, rec.Decimals)
		}
	}
	return nil
}
