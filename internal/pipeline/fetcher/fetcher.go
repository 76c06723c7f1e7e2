package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/domain/event"
	"github.com/Aghostraa/OLI-Converters/internal/explorer"
	"github.com/Aghostraa/OLI-Converters/internal/metrics"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/retry"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
	"github.com/Aghostraa/OLI-Converters/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts    = 3
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 3 * time.Second
	defaultTaskTimeout    = 60 * time.Second
)

// Config tunes the fetcher stage. Zero values fall back to defaults.
type Config struct {
	Workers        int
	MaxAttempts    int           // total attempts per row, including the first
	BackoffInitial time.Duration // delay before the first retry
	BackoffMax     time.Duration
	TaskTimeout    time.Duration // wall-clock bound per row, across retries
}

// Fetcher consumes FetchJobs, resolves each row's network, and fetches its
// contract metadata with bounded retries. Successful fetches go to the
// normalizer via rawCh; failed rows go straight to the accumulator via
// outcomeCh. A slow row only ever occupies its own worker.
type Fetcher struct {
	registry  *registry.Registry
	client    explorer.ContractFetcher
	jobCh     <-chan event.FetchJob
	rawCh     chan<- event.RawContract
	outcomeCh chan<- event.Outcome
	cfg       Config
	logger    *slog.Logger

	sleepFn func(ctx context.Context, d time.Duration) error
}

func New(
	reg *registry.Registry,
	client explorer.ContractFetcher,
	cfg Config,
	jobCh <-chan event.FetchJob,
	rawCh chan<- event.RawContract,
	outcomeCh chan<- event.Outcome,
	logger *slog.Logger,
) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		registry:  reg,
		client:    client,
		jobCh:     jobCh,
		rawCh:     rawCh,
		outcomeCh: outcomeCh,
		cfg:       cfg,
		logger:    logger.With("component", "fetcher"),
	}
}

// Run processes jobs until jobCh is closed. Workers keep draining after
// cancellation, marking every remaining row canceled, so no row is silently
// dropped.
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.Info("fetcher started", "workers", f.cfg.Workers)

	g := new(errgroup.Group)
	for i := 0; i < f.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			f.worker(ctx, workerID)
			return nil
		})
	}

	err := g.Wait()
	f.logger.Info("fetcher stopped")
	return err
}

func (f *Fetcher) worker(ctx context.Context, workerID int) {
	log := f.logger.With("worker", workerID)

	for job := range f.jobCh {
		if ctx.Err() != nil {
			f.outcomeCh <- event.FailureOutcome(job.Row, "canceled")
			continue
		}

		spanCtx, span := tracing.Tracer("fetcher").Start(ctx, "fetcher.processJob",
			otelTrace.WithAttributes(
				attribute.String("origin_key", job.Row.OriginKey),
				attribute.String("address", job.Row.Address),
			),
		)
		start := time.Now()
		f.processJob(spanCtx, log, span, job)
		metrics.FetcherLatency.WithLabelValues(job.Row.OriginKey).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func (f *Fetcher) processJob(ctx context.Context, log *slog.Logger, span otelTrace.Span, job event.FetchJob) {
	metrics.FetcherRowsProcessed.WithLabelValues(job.Row.OriginKey).Inc()

	network, err := f.registry.Lookup(job.Row.OriginKey)
	if err != nil {
		metrics.FetcherFailures.WithLabelValues(job.Row.OriginKey, "unknown_network").Inc()
		log.Warn("unknown origin key", "address", job.Row.Address, "origin_key", job.Row.OriginKey)
		f.outcomeCh <- event.FailureOutcome(job.Row, "unknown network")
		return
	}

	// Per-task deadline: a hung upstream stalls this row, never the batch.
	taskCtx, cancel := context.WithTimeout(ctx, f.cfg.TaskTimeout)
	defer cancel()

	body, err := f.fetchWithRetry(taskCtx, log, network, job.Row.Address)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.outcomeCh <- event.FailureOutcome(job.Row, f.failureReason(ctx, err))
		f.recordFailureMetric(job.Row.OriginKey, ctx, err)
		return
	}

	f.rawCh <- event.RawContract{Row: job.Row, Network: network, Body: body}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, log *slog.Logger, network registry.NetworkEntry, address string) ([]byte, error) {
	attempts := f.cfg.MaxAttempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.client.FetchContract(ctx, network, address)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		decision := retry.Classify(err)
		if !decision.IsTransient() {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		metrics.FetcherRetries.WithLabelValues(network.OriginKey).Inc()
		log.Warn("fetch failed; retrying",
			"origin_key", network.OriginKey,
			"address", address,
			"attempt", attempt,
			"classification_reason", decision.Reason,
			"error", err,
		)

		if sleepErr := f.sleep(ctx, retry.Backoff(attempt, f.cfg.BackoffInitial, f.cfg.BackoffMax)); sleepErr != nil {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("transient failure after %d attempts: %w", attempts, lastErr)
}

// failureReason turns a fetch error into the short human-readable reason
// recorded on the row's failure entry.
func (f *Fetcher) failureReason(batchCtx context.Context, err error) string {
	if batchCtx.Err() != nil && errors.Is(err, context.Canceled) {
		return "canceled"
	}
	switch retry.Classify(err).Class {
	case retry.ClassNotFound:
		return "contract not found"
	default:
		return fmt.Sprintf("fetch failed: %v", err)
	}
}

func (f *Fetcher) recordFailureMetric(originKey string, batchCtx context.Context, err error) {
	class := string(retry.Classify(err).Class)
	if batchCtx.Err() != nil && errors.Is(err, context.Canceled) {
		class = "canceled"
	}
	metrics.FetcherFailures.WithLabelValues(originKey, class).Inc()
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if f.sleepFn != nil {
		return f.sleepFn(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
