package model

import (
	"sort"
	"time"
)

// Failure records one row that did not produce a TagRecord.
type Failure struct {
	Address   string `json:"address"`
	OriginKey string `json:"origin_key"`
	Reason    string `json:"reason"`
}

// Stats summarizes one batch run.
type Stats struct {
	TotalRows      int    `json:"total_rows"`
	ProcessedCount int    `json:"processed_count"`
	RecordCount    int    `json:"record_count"`
	FailureCount   int    `json:"failure_count"`
	NamedContracts int    `json:"contracts_with_name"`
	ProxyContracts int    `json:"proxy_contracts"`
	ElapsedTime    string `json:"elapsed_time"`
}

// AggregateResult is the batch output: every input row lands in exactly one
// of Records or Failures. It is owned by the orchestrator's accumulator until
// Finalize, and must not be mutated afterwards.
type AggregateResult struct {
	Records  []TagRecord `json:"records"`
	Failures []Failure   `json:"failures"`

	Stats Stats `json:"stats"`

	startedAt time.Time
}

// NewAggregateResult creates an empty result for a batch of totalRows rows.
func NewAggregateResult(totalRows int) *AggregateResult {
	return &AggregateResult{
		Records:   []TagRecord{},
		Failures:  []Failure{},
		Stats:     Stats{TotalRows: totalRows},
		startedAt: time.Now(),
	}
}

// AddRecord appends a successful row. Not safe for concurrent use; the
// orchestrator funnels all writes through a single accumulator goroutine.
func (a *AggregateResult) AddRecord(rec TagRecord) {
	a.Records = append(a.Records, rec)
	a.Stats.ProcessedCount++
	a.Stats.RecordCount++
	if _, ok := rec.TagValue(TagContractName); ok {
		a.Stats.NamedContracts++
	}
	if v, ok := rec.TagValue(TagIsProxy); ok {
		if isProxy, ok := v.(bool); ok && isProxy {
			a.Stats.ProxyContracts++
		}
	}
}

// AddFailure appends a failed row.
func (a *AggregateResult) AddFailure(f Failure) {
	a.Failures = append(a.Failures, f)
	a.Stats.ProcessedCount++
	a.Stats.FailureCount++
}

// Finalize freezes the result: completion order is concurrent and
// nondeterministic, so records and failures are sorted into a canonical
// order before the result is handed to the writer.
func (a *AggregateResult) Finalize() {
	sort.Slice(a.Records, func(i, j int) bool {
		if a.Records[i].ChainID != a.Records[j].ChainID {
			return a.Records[i].ChainID < a.Records[j].ChainID
		}
		return a.Records[i].ContractAddress < a.Records[j].ContractAddress
	})
	sort.Slice(a.Failures, func(i, j int) bool {
		if a.Failures[i].OriginKey != a.Failures[j].OriginKey {
			return a.Failures[i].OriginKey < a.Failures[j].OriginKey
		}
		return a.Failures[i].Address < a.Failures[j].Address
	})
	a.Stats.ElapsedTime = time.Since(a.startedAt).Round(10 * time.Millisecond).String()
}
