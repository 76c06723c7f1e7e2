package event

import (
	"encoding/json"

	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
)

// RawContract carries one successfully fetched explorer response from the
// fetcher to the normalizer. Body is the upstream JSON, unmodified.
type RawContract struct {
	Row     model.InputRow
	Network registry.NetworkEntry
	Body    json.RawMessage
}
