package model

// InputRow is one line of the unlabelled-contracts input: a contract address
// and the origin key selecting which network it lives on.
type InputRow struct {
	Address   string
	OriginKey string
}

// Tag is a single (tag_id, value) fact about a contract in the OLI schema.
type Tag struct {
	TagID string `json:"tag_id"`
	Value any    `json:"value"`
}

// TagRecord is the canonical OLI output unit for one contract.
// ContractAddress is canonicalized exactly once, by the normalizer.
// Tags never contains two entries with the same TagID.
type TagRecord struct {
	ChainID         string `json:"chain_id"`
	ContractAddress string `json:"contract_address"`
	Tags            []Tag  `json:"tags"`
}

// TagValue returns the value for tagID and whether the tag is present.
func (r TagRecord) TagValue(tagID string) (any, bool) {
	for _, t := range r.Tags {
		if t.TagID == tagID {
			return t.Value, true
		}
	}
	return nil, false
}

// OLI tag vocabulary emitted by the default Blockscout mapping.
const (
	TagIsVerified            = "is_verified"
	TagContractName          = "contract_name"
	TagCompilerVersion       = "compiler_version"
	TagEVMVersion            = "evm_version"
	TagSourceRepoURL         = "source_repo_url"
	TagIsProxy               = "is_proxy"
	TagImplementationAddress = "implementation_address"
	TagDeploymentDate        = "deployment_date"
)
