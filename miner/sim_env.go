// Package miner searches the simulation cache for the best items to include
// in a rollup block. Each round simulates the top candidates concurrently on
// copies of the block state and keeps the one that pays the beneficiary the
// most.
package miner

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/panjf2000/ants/v2"
	"github.com/signetlabs/signet-node/bundle"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/core/vm"
	"github.com/signetlabs/signet-node/params"
)

// ChainEnv is the state and block of one chain that items are simulated
// against.
type ChainEnv struct {
	Config *ethparams.ChainConfig
	Env    *vm.BlockEnv
	State  *state.StateDB
	// Orders is the orders contract of the chain.
	Orders common.Address
}

// SimOutcome is a successfully simulated item.
type SimOutcome struct {
	Item        *SimItem
	Rank        uint256.Int
	Score       *uint256.Int // beneficiary balance increase
	GasUsed     uint64
	HostGasUsed uint64
	Outcomes    []*core.Outcome

	state     *state.StateDB
	hostState *state.StateDB
	fills     *orders.AggregateFills
}

// simTask is one item with private copies of everything it may write.
type simTask struct {
	RankedItem
	state     *state.StateDB
	hostState *state.StateDB
	fills     *orders.AggregateFills
}

type taskResult struct {
	outcome *SimOutcome
	err     error
}

// SimEnv holds the state of a block being built and runs simulation
// rounds on it. Rounds must not run concurrently.
type SimEnv struct {
	rollup      *ChainEnv
	host        *ChainEnv
	hostChainID uint64

	fills   *orders.AggregateFills
	cache   *SimCache
	txCount int

	concurrency int
	pool        *ants.Pool
	logger      log.Logger
}

// NewSimEnv returns an environment building on rollup, drawing candidates
// from cache. host may be nil, in which case bundles with host transactions
// fail simulation. fills is the ledger as it stands at the start of the
// block; it is copied.
func NewSimEnv(constants *params.SystemConstants, rollup, host *ChainEnv, fills *orders.AggregateFills, cache *SimCache, config params.SimConfig) (*SimEnv, error) {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = params.DefaultSimConfig.Concurrency
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation pool: %w", err)
	}
	if fills == nil {
		fills = orders.NewAggregateFills()
	} else {
		fills = fills.Copy()
	}
	return &SimEnv{
		rollup:      rollup,
		host:        host,
		hostChainID: constants.HostChainID(),
		fills:       fills,
		cache:       cache,
		concurrency: concurrency,
		pool:        pool,
		logger:      log.New("module", "miner", "number", rollup.Env.Number),
	}, nil
}

// Close releases the worker pool.
func (s *SimEnv) Close() { s.pool.Release() }

func (s *SimEnv) Cache() *SimCache              { return s.cache }
func (s *SimEnv) Fills() *orders.AggregateFills { return s.fills }
func (s *SimEnv) State() *state.StateDB         { return s.rollup.State }
func (s *SimEnv) Concurrency() int              { return s.concurrency }
func (s *SimEnv) Env() *vm.BlockEnv             { return s.rollup.Env }

// HostState returns the host state, or nil if there is no host
// environment.
func (s *SimEnv) HostState() *state.StateDB {
	if s.host == nil {
		return nil
	}
	return s.host.State
}

func (s *SimEnv) newTask(ranked RankedItem) *simTask {
	t := &simTask{RankedItem: ranked, state: s.rollup.State.Copy()}
	if ranked.Item.IsBundle() {
		if s.host != nil && len(ranked.Item.Bundle().HostTxs()) > 0 {
			t.hostState = s.host.State.Copy()
		}
	} else {
		t.fills = s.fills.Copy()
	}
	return t
}

func (s *SimEnv) simulateTx(t *simTask, maxGas uint64, deadline time.Time) (*SimOutcome, error) {
	exec := core.NewTxExecutor(s.rollup.Config, s.rollup.Env, s.rollup.Orders).
		WithDeadline(deadline).
		WithGasPool(new(gethcore.GasPool).AddGas(maxGas))

	beneficiary := s.rollup.Env.Coinbase
	initial := t.state.GetBalance(beneficiary).Clone()

	out, err := exec.ExecuteTx(t.state, t.Item.Tx(), s.txCount, t.fills)
	if err != nil {
		return nil, err
	}
	return &SimOutcome{
		Item:     t.Item,
		Rank:     t.Rank,
		Score:    balanceIncrease(initial, t.state.GetBalance(beneficiary)),
		GasUsed:  out.GasUsed,
		Outcomes: []*core.Outcome{out},
		state:    t.state,
		fills:    t.fills,
	}, nil
}

func (s *SimEnv) simulateBundle(t *simTask, maxGas, maxHostGas uint64, deadline time.Time) (*SimOutcome, error) {
	exec := core.NewTxExecutor(s.rollup.Config, s.rollup.Env, s.rollup.Orders).
		WithDeadline(deadline).
		WithGasPool(new(gethcore.GasPool).AddGas(maxGas))

	var host *bundle.HostEnv
	if t.hostState != nil {
		hostExec := core.NewHostTxExecutor(s.host.Config, s.host.Env, s.host.Orders).
			WithDeadline(deadline).
			WithGasPool(new(gethcore.GasPool).AddGas(maxHostGas))
		host = &bundle.HostEnv{Exec: hostExec, State: t.hostState}
	}

	driver := bundle.NewDriver(t.Item.Bundle(), s.fills, s.hostChainID)
	if err := driver.Run(exec, t.state, host); err != nil {
		return nil, err
	}
	return &SimOutcome{
		Item:        t.Item,
		Rank:        t.Rank,
		Score:       driver.BeneficiaryBalanceIncrease(),
		GasUsed:     driver.TotalGasUsed(),
		HostGasUsed: driver.HostGasUsed(),
		Outcomes:    driver.Outcomes(),
		state:       t.state,
		hostState:   t.hostState,
		fills:       driver.Fills(),
	}, nil
}

// run simulates one task. Items that fail, score nothing or exceed the gas
// budgets are removed from the cache. Only database errors are returned.
func (s *SimEnv) run(t *simTask, maxGas, maxHostGas uint64, deadline time.Time) taskResult {
	id := t.Item.Identifier()

	var (
		out *SimOutcome
		err error
	)
	if t.Item.IsBundle() {
		out, err = s.simulateBundle(t, maxGas, maxHostGas, deadline)
	} else {
		out, err = s.simulateTx(t, maxGas, deadline)
	}
	switch {
	case errors.Is(err, core.ErrDatabase):
		s.logger.Error("Simulation hit a database error", "id", id, "err", err)
		return taskResult{err: err}
	case errors.Is(err, core.ErrInterrupted):
		s.logger.Trace("Simulation interrupted", "id", id)
		return taskResult{}
	case err != nil:
		s.logger.Trace("Simulation failed", "id", id, "err", err)
	case out.Score.IsZero():
		s.logger.Trace("Zero score candidate", "id", id)
	case out.HostGasUsed > maxHostGas:
		s.logger.Trace("Host gas limit exceeded", "id", id, "used", out.HostGasUsed, "max", maxHostGas)
	case out.GasUsed > maxGas:
		s.logger.Trace("Gas limit exceeded", "id", id, "used", out.GasUsed, "max", maxGas)
	default:
		s.logger.Trace("Simulation complete", "id", id, "score", out.Score, "gas", out.GasUsed)
		return taskResult{outcome: out}
	}
	failedMeter.Mark(1)
	s.cache.Remove(id)
	return taskResult{}
}

// SimRound simulates the best cached items concurrently and merges the
// highest scoring one into the environment. Results arriving after deadline
// are discarded, but the round waits for every task to return; the EVM
// stops tasks at the deadline. It returns nil when no item qualified.
func (s *SimEnv) SimRound(maxGas, maxHostGas uint64, deadline time.Time) (*SimOutcome, error) {
	defer func(start time.Time) { roundTimer.UpdateSince(start) }(time.Now())
	roundMeter.Mark(1)

	active := s.cache.ReadBest(s.concurrency)
	if len(active) == 0 {
		return nil, nil
	}
	results := make(chan taskResult, len(active))

	var (
		submitted int
		fatal     error
	)
	for _, ranked := range active {
		t := s.newTask(ranked)
		if err := s.pool.Submit(func() { results <- s.run(t, maxGas, maxHostGas, deadline) }); err != nil {
			fatal = fmt.Errorf("failed to schedule simulation: %w", err)
			break
		}
		submitted++
	}

	var (
		best    *SimOutcome
		expired bool
		timer   = time.NewTimer(time.Until(deadline))
		timeout = timer.C
	)
	defer timer.Stop()
	for pending := submitted; pending > 0; {
		select {
		case res := <-results:
			pending--
			if res.err != nil && fatal == nil {
				fatal = res.err
			}
			if res.outcome == nil || expired {
				continue
			}
			candidateMeter.Mark(1)
			if best == nil || res.outcome.Score.Gt(best.Score) {
				best = res.outcome
			}
		case <-timeout:
			expired, timeout = true, nil
		}
	}
	if fatal != nil {
		return nil, fatal
	}
	if best == nil {
		s.logger.Debug("Simulation round found no candidate", "simulated", submitted, "expired", expired)
		return nil, nil
	}
	s.accept(best)
	return best, nil
}

// accept merges the winner into the environment. Its state copies were
// taken from the current state and nothing else wrote to it during the
// round, so they replace the current state wholesale.
func (s *SimEnv) accept(out *SimOutcome) {
	s.rollup.State = out.state
	if out.hostState != nil {
		s.host.State = out.hostState
	}
	s.fills = out.fills
	s.txCount += len(out.Outcomes)
	s.cache.Remove(out.Item.Identifier())
	winnerMeter.Mark(1)

	s.logger.Debug("Accepted simulated item", "id", out.Item.Identifier(), "score", out.Score,
		"gas", out.GasUsed, "hostGas", out.HostGasUsed, "txs", len(out.Outcomes))
}

func balanceIncrease(before, after *uint256.Int) *uint256.Int {
	if after.Gt(before) {
		return new(uint256.Int).Sub(after, before)
	}
	return new(uint256.Int)
}
