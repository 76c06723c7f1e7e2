package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/domain/event"
	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/retry"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher scripts per-address responses, counting calls.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(address string, call int) (json.RawMessage, error)
}

func newFakeFetcher(respond func(address string, call int) (json.RawMessage, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), respond: respond}
}

func (f *fakeFetcher) FetchContract(_ context.Context, _ registry.NetworkEntry, address string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[address]++
	call := f.calls[address]
	f.mu.Unlock()
	return f.respond(address, call)
}

func (f *fakeFetcher) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func testRegistry() *registry.Registry {
	return registry.New(map[string]registry.NetworkEntry{
		"optimism": {APIBaseURL: "https://optimism.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-10"},
	})
}

func noSleep(context.Context, time.Duration) error { return nil }

func runFetcher(t *testing.T, client *fakeFetcher, cfg Config, jobs []event.FetchJob) ([]event.RawContract, []event.Outcome) {
	t.Helper()

	jobCh := make(chan event.FetchJob, len(jobs))
	rawCh := make(chan event.RawContract, len(jobs))
	outcomeCh := make(chan event.Outcome, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	f := New(testRegistry(), client, cfg, jobCh, rawCh, outcomeCh,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sleepFn = noSleep

	require.NoError(t, f.Run(context.Background()))
	close(rawCh)
	close(outcomeCh)

	var raws []event.RawContract
	for raw := range rawCh {
		raws = append(raws, raw)
	}
	var outcomes []event.Outcome
	for o := range outcomeCh {
		outcomes = append(outcomes, o)
	}
	return raws, outcomes
}

func TestFetcher_SuccessForwardsRawBody(t *testing.T) {
	body := json.RawMessage(`{"name": "TokenVault"}`)
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		return body, nil
	})

	raws, outcomes := runFetcher(t, client, Config{}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}},
	})

	require.Len(t, raws, 1)
	assert.Empty(t, outcomes)
	assert.Equal(t, body, raws[0].Body)
	assert.Equal(t, "eip155-10", raws[0].Network.ChainID)
}

func TestFetcher_RetriesTransientThenSucceeds(t *testing.T) {
	client := newFakeFetcher(func(_ string, call int) (json.RawMessage, error) {
		if call < 3 {
			return nil, retry.Transient(fmt.Errorf("http status 429"))
		}
		return json.RawMessage(`{}`), nil
	})

	raws, outcomes := runFetcher(t, client, Config{MaxAttempts: 3}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}},
	})

	require.Len(t, raws, 1)
	assert.Empty(t, outcomes)
	assert.Equal(t, 3, client.callCount("0xAA"))
}

func TestFetcher_TransientExhaustsAttempts(t *testing.T) {
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		return nil, retry.Transient(fmt.Errorf("http status 503"))
	})

	raws, outcomes := runFetcher(t, client, Config{MaxAttempts: 3}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}},
	})

	assert.Empty(t, raws)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Contains(t, outcomes[0].Failure.Reason, "fetch failed")
	assert.Contains(t, outcomes[0].Failure.Reason, "after 3 attempts")
	assert.Equal(t, 3, client.callCount("0xAA"))
}

func TestFetcher_TerminalDoesNotRetry(t *testing.T) {
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		return nil, retry.Terminal(fmt.Errorf("http status 403"))
	})

	raws, outcomes := runFetcher(t, client, Config{MaxAttempts: 5}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}},
	})

	assert.Empty(t, raws)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Contains(t, outcomes[0].Failure.Reason, "fetch failed")
	assert.Equal(t, 1, client.callCount("0xAA"), "terminal errors burn exactly one attempt")
}

func TestFetcher_NotFoundReason(t *testing.T) {
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		return nil, retry.NotFound(fmt.Errorf("http status 404"))
	})

	_, outcomes := runFetcher(t, client, Config{}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}},
	})

	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, "contract not found", outcomes[0].Failure.Reason)
	assert.Equal(t, 1, client.callCount("0xAA"))
}

func TestFetcher_UnknownNetworkReason(t *testing.T) {
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		t.Error("client must not be called for an unknown origin key")
		return nil, nil
	})

	_, outcomes := runFetcher(t, client, Config{}, []event.FetchJob{
		{Row: model.InputRow{Address: "0xAA", OriginKey: "atlantis"}},
	})

	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, "unknown network", outcomes[0].Failure.Reason)
	assert.Equal(t, "atlantis", outcomes[0].Failure.OriginKey)
}

func TestFetcher_DrainsJobsAfterCancel(t *testing.T) {
	client := newFakeFetcher(func(string, int) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})

	jobCh := make(chan event.FetchJob, 3)
	rawCh := make(chan event.RawContract, 3)
	outcomeCh := make(chan event.Outcome, 3)
	for _, addr := range []string{"0xAA", "0xBB", "0xCC"} {
		jobCh <- event.FetchJob{Row: model.InputRow{Address: addr, OriginKey: "optimism"}}
	}
	close(jobCh)

	f := New(testRegistry(), client, Config{Workers: 1}, jobCh, rawCh, outcomeCh,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.Run(ctx))
	close(outcomeCh)

	var outcomes []event.Outcome
	for o := range outcomeCh {
		outcomes = append(outcomes, o)
	}
	require.Len(t, outcomes, 3, "every queued row still yields an outcome")
	for _, o := range outcomes {
		require.NotNil(t, o.Failure)
		assert.Equal(t, "canceled", o.Failure.Reason)
	}
	assert.Equal(t, 0, client.callCount("0xAA"))
}

func TestFetcher_TaskTimeoutBoundsSlowRow(t *testing.T) {
	slow := &hangingFetcher{}

	jobCh := make(chan event.FetchJob, 1)
	rawCh := make(chan event.RawContract, 1)
	outcomeCh := make(chan event.Outcome, 1)
	jobCh <- event.FetchJob{Row: model.InputRow{Address: "0xAA", OriginKey: "optimism"}}
	close(jobCh)

	f := New(testRegistry(), slow, Config{TaskTimeout: 50 * time.Millisecond}, jobCh, rawCh, outcomeCh,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fetcher did not release the hung row")
	}

	close(outcomeCh)
	var outcomes []event.Outcome
	for o := range outcomeCh {
		outcomes = append(outcomes, o)
	}
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Contains(t, outcomes[0].Failure.Reason, "fetch failed")
}

// hangingFetcher blocks until the per-task context expires.
type hangingFetcher struct{}

func (h *hangingFetcher) FetchContract(ctx context.Context, _ registry.NetworkEntry, _ string) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
