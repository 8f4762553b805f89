package miner

import "github.com/ethereum/go-ethereum/metrics"

var (
	roundMeter     = metrics.NewRegisteredMeter("miner/sim/rounds", nil)
	candidateMeter = metrics.NewRegisteredMeter("miner/sim/candidates", nil)
	failedMeter    = metrics.NewRegisteredMeter("miner/sim/failed", nil)
	winnerMeter    = metrics.NewRegisteredMeter("miner/sim/winner", nil)
	roundTimer     = metrics.NewRegisteredTimer("miner/sim/round/time", nil)

	cacheSizeGauge       = metrics.NewRegisteredGauge("miner/cache/size", nil)
	cacheEvictedMeter    = metrics.NewRegisteredMeter("miner/cache/evicted", nil)
	cacheDisallowedMeter = metrics.NewRegisteredMeter("miner/cache/disallowed", nil)
)
