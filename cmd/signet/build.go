package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/fatih/color"
	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/signetlabs/signet-node/bundle"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/miner"
	"github.com/signetlabs/signet-node/params"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	allocFlag = &cli.StringFlag{
		Name:     "alloc",
		Usage:    "Rollup genesis alloc JSON the block is built on",
		Required: true,
	}
	hostAllocFlag = &cli.StringFlag{
		Name:  "host.alloc",
		Usage: "Host genesis alloc JSON for bundles carrying host transactions",
	}
	itemsFlag = &cli.StringFlag{
		Name:     "items",
		Usage:    "JSON file with pending transactions and bundles",
		Required: true,
	}
	numberFlag = &cli.Uint64Flag{
		Name:  "number",
		Usage: "Number of the parent block",
	}
	timestampFlag = &cli.Uint64Flag{
		Name:  "timestamp",
		Usage: "Timestamp of the block (default: now)",
	}
	gasLimitFlag = &cli.Uint64Flag{
		Name:  "gaslimit",
		Usage: "Gas limit of the parent block",
		Value: 30_000_000,
	}
	coinbaseFlag = &cli.StringFlag{
		Name:  "coinbase",
		Usage: "Beneficiary of the block",
		Value: params.TestDefaultRewardAddr.Hex(),
	}

	buildCommand = &cli.Command{
		Name:      "build",
		Usage:     "Build a block from pending items with the simulator",
		Flags: append([]cli.Flag{
			allocFlag,
			hostAllocFlag,
			itemsFlag,
			numberFlag,
			timestampFlag,
			gasLimitFlag,
			coinbaseFlag,
		}, simFlags...),
		Action: build,
	}
)

// pendingItems is the content of the items file.
type pendingItems struct {
	Txs     []hexutil.Bytes  `json:"txs"`
	Bundles []*bundle.Bundle `json:"bundles"`
}

func readJSON(file string, v interface{}) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

func stateFromAlloc(alloc types.GenesisAlloc) (*state.StateDB, error) {
	sdb, err := state.New(types.EmptyRootHash, state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil))
	if err != nil {
		return nil, err
	}
	for addr, acc := range alloc {
		if acc.Balance != nil {
			sdb.AddBalance(addr, uint256.MustFromBig(acc.Balance), tracing.BalanceIncreaseGenesisBalance)
		}
		sdb.SetNonce(addr, acc.Nonce, tracing.NonceChangeUnspecified)
		if len(acc.Code) > 0 {
			sdb.SetCode(addr, acc.Code)
		}
		for key, value := range acc.Storage {
			sdb.SetState(addr, key, value)
		}
	}
	sdb.Finalise(true)
	return sdb, nil
}

type buildInputs struct {
	alloc     types.GenesisAlloc
	hostAlloc types.GenesisAlloc
	items     pendingItems
}

func loadInputs(ctx *cli.Context) (*buildInputs, error) {
	var (
		in buildInputs
		g  errgroup.Group
	)
	g.Go(func() error { return readJSON(ctx.String(allocFlag.Name), &in.alloc) })
	g.Go(func() error { return readJSON(ctx.String(itemsFlag.Name), &in.items) })
	if file := ctx.String(hostAllocFlag.Name); file != "" {
		g.Go(func() error { return readJSON(file, &in.hostAlloc) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

func build(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	in, err := loadInputs(ctx)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(ctx.String(coinbaseFlag.Name)) {
		return fmt.Errorf("invalid coinbase %q", ctx.String(coinbaseFlag.Name))
	}
	coinbase := common.HexToAddress(ctx.String(coinbaseFlag.Name))
	timestamp := ctx.Uint64(timestampFlag.Name)
	if timestamp == 0 {
		timestamp = uint64(time.Now().Unix())
	}
	parent := &types.Header{
		Number:   new(big.Int).SetUint64(ctx.Uint64(numberFlag.Name)),
		GasLimit: ctx.Uint64(gasLimitFlag.Name),
		BaseFee:  big.NewInt(ethparams.InitialBaseFee),
	}

	constants := &cfg.Constants
	rollupConfig := params.RollupChainConfig(constants.RollupChainID())
	statedb, err := stateFromAlloc(in.alloc)
	if err != nil {
		return err
	}
	rollup := &miner.ChainEnv{
		Config: rollupConfig,
		Env:    core.NextBlockEnv(rollupConfig, parent, timestamp, coinbase),
		State:  statedb,
		Orders: constants.Rollup.Orders,
	}
	var host *miner.ChainEnv
	if in.hostAlloc != nil {
		hostConfig := params.HostChainConfig(constants.HostChainID())
		hostState, err := stateFromAlloc(in.hostAlloc)
		if err != nil {
			return err
		}
		host = &miner.ChainEnv{
			Config: hostConfig,
			Env:    core.NextBlockEnv(hostConfig, parent, timestamp, coinbase),
			State:  hostState,
			Orders: constants.Host.Orders,
		}
	}

	cache := miner.NewSimCache(cfg.Sim)
	admitted, rejected := fillCache(cache, in.items, rollup, host)
	cache.Clean(rollup.Env.Number, rollup.Env.Timestamp)
	log.Info("Loaded pending items", "admitted", admitted, "rejected", rejected, "cached", cache.Len())

	env, err := miner.NewSimEnv(constants, rollup, host, nil, cache, cfg.Sim)
	if err != nil {
		return err
	}
	defer env.Close()

	deadline := time.Now().Add(cfg.Sim.Deadline.Duration)
	block, err := miner.NewBlockBuild(env, deadline, cfg.Sim.MaxGas, cfg.Sim.MaxHostGas).Build(context.Background())
	if err != nil {
		return err
	}
	printBlock(rollup.Env.Number, block)
	return nil
}

// fillCache admits the pending items. Items that fail to decode are logged
// and skipped.
func fillCache(cache *miner.SimCache, items pendingItems, rollup, host *miner.ChainEnv) (admitted, rejected int) {
	signer := types.LatestSignerForChainID(rollup.Config.ChainID)
	var hostSigner types.Signer
	if host != nil {
		hostSigner = types.LatestSignerForChainID(host.Config.ChainID)
	}
	baseFee := rollup.Env.BaseFee

	for i, raw := range items.Txs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			log.Warn("Skipping undecodable transaction", "index", i, "err", err)
			rejected++
			continue
		}
		sender, err := types.Sender(signer, tx)
		if err != nil {
			log.Warn("Skipping transaction with invalid signature", "hash", tx.Hash(), "err", err)
			rejected++
			continue
		}
		cache.AddTx(tx, sender, baseFee)
		admitted++
	}
	for i, b := range items.Bundles {
		if _, err := b.ReplacementID(); err != nil {
			log.Warn("Skipping bundle", "index", i, "err", err)
			rejected++
			continue
		}
		rb, err := b.Recover(signer, hostSigner)
		if err == nil {
			err = cache.AddBundle(rb, baseFee)
		}
		if err != nil {
			log.Warn("Skipping bundle", "index", i, "uuid", b.ReplacementUUID, "err", err)
			rejected++
			continue
		}
		admitted++
	}
	return admitted, rejected
}

func printBlock(number uint64, block *miner.BuiltBlock) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Hash", "To", "Gas limit", "Tip cap"})
	for i, tx := range block.Transactions() {
		to := "create"
		if tx.To() != nil {
			to = tx.To().Hex()
		}
		table.Append([]string{
			strconv.Itoa(i),
			tx.Hash().TerminalString(),
			to,
			strconv.FormatUint(tx.Gas(), 10),
			tx.GasTipCap().String(),
		})
	}
	table.SetFooter([]string{"", "", "gas used", strconv.FormatUint(block.GasUsed(), 10), ""})
	table.Render()

	if block.IsEmpty() {
		fmt.Println(color.YellowString("block %d is empty", number))
		return
	}
	fmt.Printf("%s txs=%d hostGas=%d hostFills=%d txRoot=%s contents=%s\n",
		color.GreenString("block %d", number), block.TxCount(), block.HostGasUsed(),
		len(block.HostFills()), block.TxRoot(), block.ContentsHash())
}
