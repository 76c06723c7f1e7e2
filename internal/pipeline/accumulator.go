package pipeline

import (
	"log/slog"

	"github.com/Aghostraa/OLI-Converters/internal/domain/event"
	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/metrics"
)

// accumulator is the single writer of the AggregateResult. All stages funnel
// outcomes through one channel into this goroutine, so the result needs no
// locking and no row can race another.
type accumulator struct {
	result    *model.AggregateResult
	outcomeCh <-chan event.Outcome
	logger    *slog.Logger
}

func newAccumulator(result *model.AggregateResult, outcomeCh <-chan event.Outcome, logger *slog.Logger) *accumulator {
	return &accumulator{
		result:    result,
		outcomeCh: outcomeCh,
		logger:    logger.With("component", "accumulator"),
	}
}

// run drains outcomes until the channel closes. It never blocks on anything
// but the channel, which keeps every producer's send from deadlocking.
func (a *accumulator) run() {
	for outcome := range a.outcomeCh {
		switch {
		case outcome.Record != nil:
			a.result.AddRecord(*outcome.Record)
			metrics.AccumulatorRecords.Inc()
		case outcome.Failure != nil:
			a.result.AddFailure(*outcome.Failure)
			metrics.AccumulatorFailures.Inc()
			a.logger.Debug("row failed",
				"address", outcome.Failure.Address,
				"origin_key", outcome.Failure.OriginKey,
				"reason", outcome.Failure.Reason,
			)
		default:
			a.logger.Error("dropped outcome with neither record nor failure")
		}
	}
}
