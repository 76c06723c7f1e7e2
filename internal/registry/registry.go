package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// NetworkEntry is the static per-network configuration: where the network's
// Blockscout-style API lives and which canonical chain ID its contracts get.
type NetworkEntry struct {
	OriginKey  string `yaml:"-"`
	APIBaseURL string `yaml:"api_base_url"`
	ChainID    string `yaml:"chain_id"`
}

// ErrUnknownNetwork is returned by Lookup for origin keys with no entry.
type ErrUnknownNetwork struct {
	OriginKey string
}

func (e *ErrUnknownNetwork) Error() string {
	return fmt.Sprintf("unknown network: %s", e.OriginKey)
}

// Registry maps origin keys to network entries. It is built once at startup
// and never mutated afterwards, so lookups are safe from any goroutine.
type Registry struct {
	entries map[string]NetworkEntry
}

// New builds a registry from the given entries keyed by origin key.
func New(entries map[string]NetworkEntry) *Registry {
	byKey := make(map[string]NetworkEntry, len(entries))
	for key, entry := range entries {
		entry.OriginKey = key
		byKey[key] = entry
	}
	return &Registry{entries: byKey}
}

// Default returns the built-in registry covering the Blockscout deployments
// the converter ships with.
func Default() *Registry {
	return New(map[string]NetworkEntry{
		"optimism":      {APIBaseURL: "https://optimism.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-10"},
		"polygon_zkevm": {APIBaseURL: "https://zkevm.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-1101"},
		"mode":          {APIBaseURL: "https://explorer.mode.network/api/v2/smart-contracts/", ChainID: "eip155-34443"},
		"arbitrum":      {APIBaseURL: "https://arbitrum.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-42161"},
		"zora":          {APIBaseURL: "https://explorer.zora.energy/api/v2/smart-contracts/", ChainID: "eip155-7777777"},
		"base":          {APIBaseURL: "https://base.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-8453"},
		"zksync_era":    {APIBaseURL: "https://zksync.blockscout.com/api/v2/smart-contracts/", ChainID: "eip155-324"},
		"linea":         {APIBaseURL: "https://explorer.linea.build/api/v2/smart-contracts/", ChainID: "eip155-59144"},
		"redstone":      {APIBaseURL: "https://explorer.redstone.xyz/api/v2/smart-contracts/", ChainID: "eip155-17001"},
	})
}

type registryFile struct {
	Networks map[string]NetworkEntry `yaml:"networks"`
}

// LoadFile reads a YAML registry file and overlays it on the built-in
// defaults. File entries win over defaults for the same origin key.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}

	merged := Default().entries
	for key, entry := range file.Networks {
		if entry.APIBaseURL == "" {
			return nil, fmt.Errorf("registry file %s: network %q: api_base_url is required", path, key)
		}
		if entry.ChainID == "" {
			return nil, fmt.Errorf("registry file %s: network %q: chain_id is required", path, key)
		}
		entry.OriginKey = key
		merged[key] = entry
	}
	return &Registry{entries: merged}, nil
}

// Lookup resolves an origin key to its network entry.
func (r *Registry) Lookup(originKey string) (NetworkEntry, error) {
	entry, ok := r.entries[originKey]
	if !ok {
		return NetworkEntry{}, &ErrUnknownNetwork{OriginKey: originKey}
	}
	return entry, nil
}

// OriginKeys returns all configured origin keys in sorted order.
func (r *Registry) OriginKeys() []string {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of configured networks.
func (r *Registry) Len() int {
	return len(r.entries)
}
