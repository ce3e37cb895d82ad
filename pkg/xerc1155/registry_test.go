package xerc1155

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOverwriteAndClear(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway(), WithRegistryCacheSize(1))

	addr, err := c.ContractOnChain(destChain)
	require.NoError(t, err)
	assert.Equal(t, "", addr)

	require.NoError(t, c.SetContractOnChain(ctx, owner, destChain, remoteAddr))
	require.NoError(t, c.SetContractOnChain(ctx, owner, "1", "0x01"))
	require.NoError(t, c.SetContractOnChain(ctx, owner, destChain, "0x02"))

	// The cache holds one entry; both reads must still see committed values.
	addr, err = c.ContractOnChain(destChain)
	require.NoError(t, err)
	assert.Equal(t, "0x02", addr)
	addr, err = c.ContractOnChain("1")
	require.NoError(t, err)
	assert.Equal(t, "0x01", addr)

	all, err := c.ContractsOnChains()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{destChain: "0x02", "1": "0x01"}, all)

	require.NoError(t, c.SetContractOnChain(ctx, owner, "1", ""))
	addr, err = c.ContractOnChain("1")
	require.NoError(t, err)
	assert.Equal(t, "", addr)
}

func TestChainIDsAreOpaque(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway())

	require.NoError(t, c.SetContractOnChain(ctx, owner, "1", "0xaa"))
	require.NoError(t, c.SetContractOnChain(ctx, owner, "01", "0xbb"))
	require.NoError(t, c.SetContractOnChain(ctx, owner, "osmosis-1", "osmo1contract"))

	for chain, want := range map[string]string{"1": "0xaa", "01": "0xbb", "osmosis-1": "osmo1contract"} {
		got, err := c.ContractOnChain(chain)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSameContract(t *testing.T) {
	assert.True(t, sameContract(remoteAddr, "0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"))
	assert.False(t, sameContract(remoteAddr, "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e1"))
	assert.True(t, sameContract("osmo1contract", "osmo1contract"))
	assert.False(t, sameContract("osmo1contract", "OSMO1CONTRACT"))
}
