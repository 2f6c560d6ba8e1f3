package deployment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDeployment = `{
  "chainId": 5,
  "addresses": {
    "activePool": "0x00000000000000000000000000000000000000a0",
    "borrowerOperations": "0x0000000000000000000000000000000000000001",
    "troveManager": "0x0000000000000000000000000000000000000002",
    "stabilityPool": "0x0000000000000000000000000000000000000003",
    "gvtyStaking": "0x0000000000000000000000000000000000000004",
    "priceFeed": "0x0000000000000000000000000000000000000005"
  },
  "version": "d5a1c3f",
  "deploymentDate": 1700000000000,
  "startBlock": 9000000,
  "bootstrapPeriod": 1209600,
  "totalStabilityPoolGVTYReward": "32000000",
  "liquidityMiningGVTYRewardRate": "0.257201646090534979",
  "_priceFeedIsTestnet": true,
  "_givTokenIsMock": true,
  "_isDev": false
}`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sampleDeployment))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), d.ChainID)
	assert.Equal(t, uint64(9000000), d.StartBlock)
	assert.True(t, d.PriceFeedIsTestnet)
	assert.False(t, d.IsDev)

	contracts := d.ContractAddresses()
	assert.Len(t, contracts, len(IndexedContracts))
	assert.Equal(t, "TroveManager", contracts[common.HexToAddress("0x0000000000000000000000000000000000000002")])
	assert.NotContains(t, contracts, common.HexToAddress("0x00000000000000000000000000000000000000a0"))
}

func TestParse_CheckErrors(t *testing.T) {
	dup := strings.Replace(sampleDeployment,
		`"priceFeed": "0x0000000000000000000000000000000000000005"`,
		`"priceFeed": "0x0000000000000000000000000000000000000001"`, 1)
	_, err := Parse([]byte(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share address")

	zero := strings.Replace(sampleDeployment,
		`"gvtyStaking": "0x0000000000000000000000000000000000000004"`,
		`"gvtyStaking": "0x0000000000000000000000000000000000000000"`, 1)
	_, err = Parse([]byte(zero))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gvtyStaking is zero")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goerli.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDeployment), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "d5a1c3f", d.Version)

	out, err := d.JSON()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, d, again)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
