package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
)

// NormalizationError reports a raw field that could not be mapped to the
// canonical schema. It fails the row, never the batch.
type NormalizationError struct {
	Field  string
	Detail string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization: field %q: %s", e.Field, e.Detail)
}

// Transform names how a raw value becomes a tag value. Adding a network is a
// mapping-table change; the transform set itself stays fixed.
type Transform string

const (
	// TransformString emits the first non-empty string among Sources.
	TransformString Transform = "string"
	// TransformBool emits the first boolean among Sources.
	TransformBool Transform = "bool"
	// TransformAnyTrue emits true when any present source is true, false when
	// all present sources are false. Omitted when no source is present.
	TransformAnyTrue Transform = "any_true"
	// TransformAddress emits the first non-empty string canonicalized as an
	// EVM address.
	TransformAddress Transform = "address"
	// TransformTimestamp emits the first non-empty string after validating it
	// parses as RFC 3339.
	TransformTimestamp Transform = "timestamp"
	// TransformProxyFlag emits whether the contract is a proxy: true when the
	// first source (a proxy target hash) is non-empty, otherwise inferred
	// from proxy markers in the second source (the contract name).
	TransformProxyFlag Transform = "proxy_flag"
)

// FieldMapping binds an ordered list of candidate source field paths to one
// OLI tag. Paths use dots for nesting ("implementation.address").
type FieldMapping struct {
	TagID     string
	Sources   []string
	Transform Transform
}

// Mapping is the ordered tag mapping for one network's response shape.
// Order is preserved in the emitted record.
type Mapping []FieldMapping

// DefaultBlockscout maps the Blockscout v2 smart-contract response shape
// onto the OLI tag set. All supported networks run Blockscout, so this is
// also the fallback mapping.
func DefaultBlockscout() Mapping {
	return Mapping{
		{TagID: model.TagIsVerified, Transform: TransformAnyTrue, Sources: []string{
			"is_verified", "is_fully_verified", "is_partially_verified", "is_verified_via_sourcify",
		}},
		{TagID: model.TagContractName, Transform: TransformString, Sources: []string{"name", "contract_name"}},
		{TagID: model.TagCompilerVersion, Transform: TransformString, Sources: []string{"compiler_version"}},
		{TagID: model.TagEVMVersion, Transform: TransformString, Sources: []string{"evm_version"}},
		{TagID: model.TagSourceRepoURL, Transform: TransformString, Sources: []string{"sourcify_repo_url"}},
		{TagID: model.TagIsProxy, Transform: TransformProxyFlag, Sources: []string{"minimal_proxy_address_hash", "name"}},
		{TagID: model.TagImplementationAddress, Transform: TransformAddress, Sources: []string{"minimal_proxy_address_hash"}},
		{TagID: model.TagDeploymentDate, Transform: TransformTimestamp, Sources: []string{"verified_at"}},
	}
}

// Normalize maps one parsed raw response onto a TagRecord. Pure: identical
// inputs yield identical output. Missing optional fields are omitted rather
// than emitted as nulls; present-but-malformed fields fail the row.
func (m Mapping) Normalize(network registry.NetworkEntry, address string, raw map[string]any) (model.TagRecord, error) {
	record := model.TagRecord{
		ChainID:         network.ChainID,
		ContractAddress: model.CanonicalAddress(address),
		Tags:            []model.Tag{},
	}

	seen := make(map[string]bool, len(m))
	for _, fm := range m {
		if seen[fm.TagID] {
			continue
		}
		value, ok, err := fm.apply(raw)
		if err != nil {
			return model.TagRecord{}, err
		}
		if !ok {
			continue
		}
		seen[fm.TagID] = true
		record.Tags = append(record.Tags, model.Tag{TagID: fm.TagID, Value: value})
	}
	return record, nil
}

func (fm FieldMapping) apply(raw map[string]any) (any, bool, error) {
	switch fm.Transform {
	case TransformString:
		return fm.firstString(raw, false)
	case TransformAddress:
		value, ok, err := fm.firstString(raw, false)
		if err != nil || !ok {
			return nil, ok, err
		}
		return model.CanonicalAddress(value.(string)), true, nil
	case TransformTimestamp:
		value, ok, err := fm.firstString(raw, false)
		if err != nil || !ok {
			return nil, ok, err
		}
		ts := value.(string)
		if _, parseErr := time.Parse(time.RFC3339, ts); parseErr != nil {
			return nil, false, &NormalizationError{Field: fm.Sources[0], Detail: fmt.Sprintf("value %q is not an RFC 3339 timestamp", ts)}
		}
		return ts, true, nil
	case TransformBool:
		for _, path := range fm.Sources {
			value, present := lookupPath(raw, path)
			if !present || value == nil {
				continue
			}
			b, isBool := value.(bool)
			if !isBool {
				return nil, false, &NormalizationError{Field: path, Detail: fmt.Sprintf("expected bool, got %T", value)}
			}
			return b, true, nil
		}
		return nil, false, nil
	case TransformAnyTrue:
		found := false
		result := false
		for _, path := range fm.Sources {
			value, present := lookupPath(raw, path)
			if !present || value == nil {
				continue
			}
			b, isBool := value.(bool)
			if !isBool {
				return nil, false, &NormalizationError{Field: path, Detail: fmt.Sprintf("expected bool, got %T", value)}
			}
			found = true
			result = result || b
		}
		return result, found, nil
	case TransformProxyFlag:
		return fm.applyProxyFlag(raw)
	default:
		return nil, false, &NormalizationError{Field: fm.TagID, Detail: fmt.Sprintf("unknown transform %q", fm.Transform)}
	}
}

// applyProxyFlag expects Sources[0] to be the proxy target hash path and an
// optional Sources[1] naming path for the marker heuristic.
func (fm FieldMapping) applyProxyFlag(raw map[string]any) (any, bool, error) {
	found := false

	if len(fm.Sources) > 0 {
		value, present := lookupPath(raw, fm.Sources[0])
		if present && value != nil {
			hash, isString := value.(string)
			if !isString {
				return nil, false, &NormalizationError{Field: fm.Sources[0], Detail: fmt.Sprintf("expected string, got %T", value)}
			}
			if hash != "" {
				return true, true, nil
			}
			found = true
		}
	}

	if len(fm.Sources) > 1 {
		value, present := lookupPath(raw, fm.Sources[1])
		if present && value != nil {
			name, isString := value.(string)
			if !isString {
				return nil, false, &NormalizationError{Field: fm.Sources[1], Detail: fmt.Sprintf("expected string, got %T", value)}
			}
			lower := strings.ToLower(name)
			if strings.Contains(lower, "proxy") || strings.Contains(lower, "erc1967") {
				return true, true, nil
			}
			if name != "" {
				found = true
			}
		}
	}

	if !found {
		return nil, false, nil
	}
	return false, true, nil
}

// firstString returns the first present, non-empty string among Sources.
// A present non-string value is a malformed field.
func (fm FieldMapping) firstString(raw map[string]any, allowEmpty bool) (any, bool, error) {
	for _, path := range fm.Sources {
		value, present := lookupPath(raw, path)
		if !present || value == nil {
			continue
		}
		s, isString := value.(string)
		if !isString {
			return nil, false, &NormalizationError{Field: path, Detail: fmt.Sprintf("expected string, got %T", value)}
		}
		if s == "" && !allowEmpty {
			continue
		}
		return s, true, nil
	}
	return nil, false, nil
}

func lookupPath(raw map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	current := any(raw)
	for _, segment := range segments {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		next, ok := m[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}
