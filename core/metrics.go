package core

import "github.com/ethereum/go-ethereum/metrics"

var (
	acceptedMeter = metrics.NewRegisteredMeter("core/driver/accepted", nil)
	droppedMeter  = metrics.NewRegisteredMeter("core/driver/dropped", nil)
	blockTimer    = metrics.NewRegisteredTimer("core/driver/block", nil)
)
