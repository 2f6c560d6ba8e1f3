// Package deployment reads the deployment JSON that locates the Givety
// contracts and maintains the resumable deployment-state file.
package deployment

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/givety/givety-indexer/schemas"
)

// IndexedContracts maps deployment address keys to the contract names the
// indexer decodes events for.
var IndexedContracts = map[string]string{
	"borrowerOperations": "BorrowerOperations",
	"troveManager":       "TroveManager",
	"stabilityPool":      "StabilityPool",
	"gvtyStaking":        "GVTYStaking",
	"priceFeed":          "PriceFeed",
}

// Deployment describes one deployment of the protocol.
type Deployment struct {
	ChainID                       uint64            `json:"chainId"`
	Addresses                     map[string]string `json:"addresses"`
	Version                       string            `json:"version"`
	DeploymentDate                int64             `json:"deploymentDate"`
	StartBlock                    uint64            `json:"startBlock"`
	BootstrapPeriod               uint64            `json:"bootstrapPeriod"`
	TotalStabilityPoolGVTYReward  string            `json:"totalStabilityPoolGVTYReward"`
	LiquidityMiningGVTYRewardRate string            `json:"liquidityMiningGVTYRewardRate"`
	PriceFeedIsTestnet            bool              `json:"_priceFeedIsTestnet"`
	GivTokenIsMock                bool              `json:"_givTokenIsMock"`
	IsDev                         bool              `json:"_isDev"`
}

// Parse validates data against the deployment schema and decodes it.
func Parse(data []byte) (*Deployment, error) {
	if err := schemas.ValidateDeployment(data); err != nil {
		return nil, err
	}
	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode deployment: %w", err)
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a deployment file.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("deployment %s: %w", path, err)
	}
	return d, nil
}

// Check reports every indexed contract whose address is missing, zero or
// shared with another contract.
func (d *Deployment) Check() error {
	var result *multierror.Error
	seen := make(map[common.Address]string)
	for _, key := range sortedKeys(IndexedContracts) {
		raw, ok := d.Addresses[key]
		switch {
		case !ok:
			result = multierror.Append(result, fmt.Errorf("address of %s missing", key))
			continue
		case !common.IsHexAddress(raw):
			result = multierror.Append(result, fmt.Errorf("address of %s invalid: %q", key, raw))
			continue
		}
		addr := common.HexToAddress(raw)
		if (addr == common.Address{}) {
			result = multierror.Append(result, fmt.Errorf("address of %s is zero", key))
			continue
		}
		if other, dup := seen[addr]; dup {
			result = multierror.Append(result, fmt.Errorf("%s and %s share address %s", other, key, addr.Hex()))
			continue
		}
		seen[addr] = key
	}
	return result.ErrorOrNil()
}

// ContractAddresses returns the indexed contracts by address.
func (d *Deployment) ContractAddresses() map[common.Address]string {
	out := make(map[common.Address]string, len(IndexedContracts))
	for key, name := range IndexedContracts {
		if raw, ok := d.Addresses[key]; ok && common.IsHexAddress(raw) {
			out[common.HexToAddress(raw)] = name
		}
	}
	return out
}

// JSON renders the deployment as indented JSON.
func (d *Deployment) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
