package event

import "github.com/Aghostraa/OLI-Converters/internal/domain/model"

// FetchJob is one unit of work for the fetcher stage: a single input row to
// resolve, fetch and normalize.
type FetchJob struct {
	Row model.InputRow
}
