package normalizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Aghostraa/OLI-Converters/internal/domain/event"
	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/metrics"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
)

// Normalizer receives raw explorer responses and maps them onto OLI tag
// records using per-network mapping tables.
type Normalizer struct {
	mappings  map[string]Mapping
	fallback  Mapping
	rawCh     <-chan event.RawContract
	outcomeCh chan<- event.Outcome
	workers   int
	logger    *slog.Logger
}

func New(
	fallback Mapping,
	perNetwork map[string]Mapping,
	rawCh <-chan event.RawContract,
	outcomeCh chan<- event.Outcome,
	workers int,
	logger *slog.Logger,
) *Normalizer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		mappings:  perNetwork,
		fallback:  fallback,
		rawCh:     rawCh,
		outcomeCh: outcomeCh,
		workers:   workers,
		logger:    logger.With("component", "normalizer"),
	}
}

// Run processes raw responses until rawCh is closed. Workers keep draining
// after cancellation so every row still produces exactly one outcome; rows
// drained post-cancel are marked canceled.
func (n *Normalizer) Run(ctx context.Context) {
	n.logger.Info("normalizer started", "workers", n.workers)

	var wg sync.WaitGroup
	for i := 0; i < n.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			n.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	n.logger.Info("normalizer stopped")
}

func (n *Normalizer) worker(ctx context.Context, workerID int) {
	log := n.logger.With("worker", workerID)

	for raw := range n.rawCh {
		if ctx.Err() != nil {
			n.outcomeCh <- event.FailureOutcome(raw.Row, "canceled")
			continue
		}
		n.outcomeCh <- n.normalizeRow(log, raw)
	}
}

func (n *Normalizer) normalizeRow(log *slog.Logger, raw event.RawContract) event.Outcome {
	record, err := n.Normalize(raw.Network, raw.Row.Address, raw.Body)
	if err != nil {
		metrics.NormalizerErrors.WithLabelValues(raw.Row.OriginKey).Inc()
		log.Warn("normalization failed",
			"address", raw.Row.Address,
			"origin_key", raw.Row.OriginKey,
			"error", err,
		)
		return event.FailureOutcome(raw.Row, err.Error())
	}

	metrics.NormalizerRecords.WithLabelValues(raw.Row.OriginKey).Inc()
	log.Debug("record normalized",
		"address", record.ContractAddress,
		"chain_id", record.ChainID,
		"tags", len(record.Tags),
	)
	return event.RecordOutcome(record)
}

// Normalize maps one raw response body for (network, address) onto a
// TagRecord. Exposed for direct use and tests; pure and idempotent.
func (n *Normalizer) Normalize(network registry.NetworkEntry, address string, body json.RawMessage) (model.TagRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.TagRecord{}, &NormalizationError{Field: "body", Detail: "response is not a JSON object"}
	}
	return n.mappingFor(network.OriginKey).Normalize(network, address, raw)
}

func (n *Normalizer) mappingFor(originKey string) Mapping {
	if m, ok := n.mappings[originKey]; ok {
		return m
	}
	return n.fallback
}
