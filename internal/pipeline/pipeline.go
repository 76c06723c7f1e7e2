package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/domain/event"
	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/explorer"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/fetcher"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/normalizer"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Config tunes the batch orchestrator.
type Config struct {
	FetchWorkers      int           // bounded pool size; upstream rate limits make unbounded fan-out self-defeating
	NormalizerWorkers int
	ChannelBufferSize int
	MaxAttempts       int           // fetch attempts per row
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	TaskTimeout       time.Duration // per-row wall-clock bound
	MaxRows           int           // 0 = process the whole input
}

func (c Config) withDefaults() Config {
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 10
	}
	if c.NormalizerWorkers <= 0 {
		c.NormalizerWorkers = 2
	}
	if c.ChannelBufferSize <= 0 {
		c.ChannelBufferSize = 16
	}
	return c
}

// Pipeline is the batch orchestrator: it fans input rows out across the
// fetcher pool, funnels fetch and normalize outcomes into a single
// accumulator, and produces the frozen AggregateResult.
type Pipeline struct {
	cfg      Config
	registry *registry.Registry
	client   explorer.ContractFetcher
	fallback normalizer.Mapping
	mappings map[string]normalizer.Mapping
	logger   *slog.Logger
}

// New validates the wiring and builds a pipeline. A nil registry or client
// is a programming error, not a per-row condition, so it fails here.
func New(
	cfg Config,
	reg *registry.Registry,
	client explorer.ContractFetcher,
	fallback normalizer.Mapping,
	perNetwork map[string]normalizer.Mapping,
	logger *slog.Logger,
) (*Pipeline, error) {
	if reg == nil {
		return nil, fmt.Errorf("pipeline: registry is nil")
	}
	if client == nil {
		return nil, fmt.Errorf("pipeline: explorer client is nil")
	}
	if len(fallback) == 0 {
		return nil, fmt.Errorf("pipeline: fallback mapping is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg.withDefaults(),
		registry: reg,
		client:   client,
		fallback: fallback,
		mappings: perNetwork,
		logger:   logger.With("component", "pipeline"),
	}, nil
}

// Run processes the batch and always returns a finalized result, even when
// every row failed or ctx was canceled mid-flight. Per-row errors never
// escape; rows not started at cancellation are recorded as canceled.
func (p *Pipeline) Run(ctx context.Context, rows []model.InputRow) *model.AggregateResult {
	if p.cfg.MaxRows > 0 && len(rows) > p.cfg.MaxRows {
		p.logger.Info("capping batch", "input_rows", len(rows), "max_rows", p.cfg.MaxRows)
		rows = rows[:p.cfg.MaxRows]
	}

	p.logger.Info("batch started",
		"rows", len(rows),
		"fetch_workers", p.cfg.FetchWorkers,
		"normalizer_workers", p.cfg.NormalizerWorkers,
	)

	result := model.NewAggregateResult(len(rows))

	jobCh := make(chan event.FetchJob, p.cfg.ChannelBufferSize)
	rawCh := make(chan event.RawContract, p.cfg.ChannelBufferSize)
	outcomeCh := make(chan event.Outcome, p.cfg.ChannelBufferSize)

	acc := newAccumulator(result, outcomeCh, p.logger)
	accDone := make(chan struct{})
	go func() {
		defer close(accDone)
		acc.run()
	}()

	fetch := fetcher.New(p.registry, p.client, fetcher.Config{
		Workers:        p.cfg.FetchWorkers,
		MaxAttempts:    p.cfg.MaxAttempts,
		BackoffInitial: p.cfg.BackoffInitial,
		BackoffMax:     p.cfg.BackoffMax,
		TaskTimeout:    p.cfg.TaskTimeout,
	}, jobCh, rawCh, outcomeCh, p.logger)

	norm := normalizer.New(p.fallback, p.mappings, rawCh, outcomeCh, p.cfg.NormalizerWorkers, p.logger)

	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(jobCh)
		for i, row := range rows {
			select {
			case jobCh <- event.FetchJob{Row: row}:
			case <-ctx.Done():
				// Rows never handed to a worker are still accounted for.
				for _, rest := range rows[i:] {
					outcomeCh <- event.FailureOutcome(rest, "canceled")
				}
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(rawCh)
		return fetch.Run(ctx)
	})

	g.Go(func() error {
		norm.Run(ctx)
		return nil
	})

	// Stage goroutines only fail by invariant violation; per-row errors are
	// already outcomes by the time they reach here.
	if err := g.Wait(); err != nil {
		p.logger.Error("pipeline stage error", "error", err)
	}
	close(outcomeCh)
	<-accDone

	result.Finalize()
	p.logger.Info("batch finished",
		"records", len(result.Records),
		"failures", len(result.Failures),
		"elapsed", result.Stats.ElapsedTime,
	)
	return result
}
