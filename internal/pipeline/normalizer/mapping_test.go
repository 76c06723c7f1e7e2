package normalizer

import (
	"testing"

	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optimismEntry() registry.NetworkEntry {
	return registry.NetworkEntry{OriginKey: "optimism", APIBaseURL: "https://optimism.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-10"}
}

func TestNormalize_BlockscoutHappyPath(t *testing.T) {
	raw := map[string]any{
		"name":                     "TokenVault",
		"is_verified":              true,
		"is_fully_verified":        false,
		"compiler_version":         "v0.8.24+commit.e11b9ed9",
		"evm_version":              "cancun",
		"sourcify_repo_url":        "https://repo.sourcify.dev/contracts/full_match/10/0xAA/",
		"minimal_proxy_address_hash": "",
		"verified_at":              "2024-03-01T12:00:00Z",
	}

	rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAbCd", raw)
	require.NoError(t, err)

	assert.Equal(t, "eip155-10", rec.ChainID)
	assert.Equal(t, "0xabcd", rec.ContractAddress, "address canonicalized exactly once")

	v, ok := rec.TagValue(model.TagIsVerified)
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = rec.TagValue(model.TagContractName)
	require.True(t, ok)
	assert.Equal(t, "TokenVault", v)

	v, ok = rec.TagValue(model.TagCompilerVersion)
	require.True(t, ok)
	assert.Equal(t, "v0.8.24+commit.e11b9ed9", v)

	v, ok = rec.TagValue(model.TagDeploymentDate)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T12:00:00Z", v)

	// Hash present but empty, name carries no proxy marker.
	v, ok = rec.TagValue(model.TagIsProxy)
	require.True(t, ok)
	assert.Equal(t, false, v)

	// Empty hash means no implementation address was reported.
	_, ok = rec.TagValue(model.TagImplementationAddress)
	assert.False(t, ok)
}

func TestNormalize_MissingFieldsAreOmitted(t *testing.T) {
	rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", map[string]any{
		"is_verified": true,
	})
	require.NoError(t, err)

	_, ok := rec.TagValue(model.TagContractName)
	assert.False(t, ok, "absent field must not appear as a null tag")
	_, ok = rec.TagValue(model.TagCompilerVersion)
	assert.False(t, ok)
	_, ok = rec.TagValue(model.TagIsProxy)
	assert.False(t, ok)

	assert.Len(t, rec.Tags, 1)
}

func TestNormalize_EmptyStringsAreOmitted(t *testing.T) {
	rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", map[string]any{
		"name":             "",
		"compiler_version": "",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Tags)
}

func TestNormalize_AnyTrueCombinesVerificationFlags(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want any // nil means omitted
	}{
		{"all false", map[string]any{"is_verified": false, "is_fully_verified": false}, false},
		{"sourcify only", map[string]any{"is_verified": false, "is_verified_via_sourcify": true}, true},
		{"partial only", map[string]any{"is_partially_verified": true}, true},
		{"none present", map[string]any{"name": "Foo"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", tc.raw)
			require.NoError(t, err)

			v, ok := rec.TagValue(model.TagIsVerified)
			if tc.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestNormalize_ProxyDetection(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want any
	}{
		{"minimal proxy hash set", map[string]any{"minimal_proxy_address_hash": "0xBEEF"}, true},
		{"proxy in name", map[string]any{"name": "TransparentUpgradeableProxy"}, true},
		{"erc1967 in name", map[string]any{"name": "ERC1967Implementation"}, true},
		{"plain contract", map[string]any{"name": "TokenVault"}, false},
		{"nothing reported", map[string]any{"compiler_version": "v0.8.24"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", tc.raw)
			require.NoError(t, err)

			v, ok := rec.TagValue(model.TagIsProxy)
			if tc.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestNormalize_ImplementationAddressCanonicalized(t *testing.T) {
	rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", map[string]any{
		"minimal_proxy_address_hash": "0xDEADBEEF",
	})
	require.NoError(t, err)

	v, ok := rec.TagValue(model.TagImplementationAddress)
	require.True(t, ok)
	assert.Equal(t, "0xdeadbeef", v)
}

func TestNormalize_MalformedFieldFailsTheRow(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]any
		wantField string
	}{
		{"non-bool verification flag", map[string]any{"is_verified": "yes"}, "is_verified"},
		{"non-string name", map[string]any{"name": 42}, "name"},
		{"non-string timestamp", map[string]any{"verified_at": 1709294400}, "verified_at"},
		{"unparseable timestamp", map[string]any{"verified_at": "yesterday"}, "verified_at"},
		{"non-string proxy hash", map[string]any{"minimal_proxy_address_hash": 7}, "minimal_proxy_address_hash"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", tc.raw)
			require.Error(t, err)

			var normErr *NormalizationError
			require.ErrorAs(t, err, &normErr)
			assert.Equal(t, tc.wantField, normErr.Field, "error names the offending field")
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"name":        "TokenVault",
		"is_verified": true,
		"verified_at": "2024-03-01T12:00:00Z",
	}

	first, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", raw)
	require.NoError(t, err)
	second, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalize_TagIDsAreUnique(t *testing.T) {
	// A buggy mapping table repeating a tag keeps only the first entry.
	m := Mapping{
		{TagID: model.TagContractName, Transform: TransformString, Sources: []string{"name"}},
		{TagID: model.TagContractName, Transform: TransformString, Sources: []string{"other_name"}},
	}
	rec, err := m.Normalize(optimismEntry(), "0xAA", map[string]any{"name": "First", "other_name": "Second"})
	require.NoError(t, err)

	require.Len(t, rec.Tags, 1)
	assert.Equal(t, "First", rec.Tags[0].Value)
}

func TestNormalize_TagOrderFollowsMapping(t *testing.T) {
	rec, err := DefaultBlockscout().Normalize(optimismEntry(), "0xAA", map[string]any{
		"name":        "Foo",
		"is_verified": true,
	})
	require.NoError(t, err)

	require.Len(t, rec.Tags, 2)
	assert.Equal(t, model.TagIsVerified, rec.Tags[0].TagID)
	assert.Equal(t, model.TagContractName, rec.Tags[1].TagID)
}

func TestNormalize_NestedSourcePath(t *testing.T) {
	m := Mapping{
		{TagID: model.TagImplementationAddress, Transform: TransformAddress, Sources: []string{"implementation.address_hash"}},
	}
	rec, err := m.Normalize(optimismEntry(), "0xAA", map[string]any{
		"implementation": map[string]any{"address_hash": "0xCAFE"},
	})
	require.NoError(t, err)

	v, ok := rec.TagValue(model.TagImplementationAddress)
	require.True(t, ok)
	assert.Equal(t, "0xcafe", v)
}

func TestNormalize_UnknownTransform(t *testing.T) {
	m := Mapping{{TagID: "x", Transform: Transform("mystery"), Sources: []string{"a"}}}
	_, err := m.Normalize(optimismEntry(), "0xAA", map[string]any{"a": 1})
	assert.Error(t, err)
}
