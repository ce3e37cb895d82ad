package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
)

var (
	testOwner     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testHolder    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testRecipient = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func testNodeConfig(dataDir string) *Config {
	cfg := validConfig()
	cfg.Env = "unit-test"
	cfg.DataDir = dataDir
	cfg.AutoRegister = true
	cfg.Relayer.SweepInterval = 50 * time.Millisecond
	cfg.Chains[0].FeePayer = "payer-80001"
	return cfg
}

func startNode(t *testing.T, cfg *Config) (*Node, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	n, err := New(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)

	readyC := make(chan struct{})
	errC := make(chan error, 1)
	go func() {
		errC <- n.Run(ctx, func() { close(readyC) })
	}()

	select {
	case <-readyC:
	case err := <-errC:
		t.Fatalf("node stopped before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not become ready")
	}
	return n, cancel, errC
}

func stopNode(t *testing.T, n *Node, cancel context.CancelFunc, errC <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
	n.Close()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testNodeConfig("")
	cfg.Chains = nil
	_, err := New(context.Background(), zap.NewNop(), cfg)
	assert.ErrorContains(t, err, "invalid config")
}

func TestNodeAutoRegister(t *testing.T) {
	n, err := New(context.Background(), zap.NewNop(), testNodeConfig(""))
	require.NoError(t, err)
	defer n.Close()

	assert.Equal(t, []string{"43113", "80001"}, n.ChainIDs())

	src, ok := n.Contract("80001")
	require.True(t, ok)
	dest, ok := n.Contract("43113")
	require.True(t, ok)

	reg, err := src.ContractsOnChains()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"43113": dest.Address().Hex()}, reg)

	reg, err = dest.ContractsOnChains()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"80001": src.Address().Hex()}, reg)

	feePayer, err := n.Gateway().DappFeePayer("80001", src.Address())
	require.NoError(t, err)
	assert.Equal(t, "payer-80001", feePayer)

	assert.False(t, n.Ready(), "api and relayer are not running yet")
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNodeRelaysTransfers(t *testing.T) {
	n, cancel, errC := startNode(t, testNodeConfig(""))
	defer stopNode(t, n, cancel, errC)

	assert.True(t, n.Ready())
	base := fmt.Sprintf("http://%s/v1/chains", n.APIAddr())

	resp := postJSON(t, base+"/80001/mint", map[string]interface{}{
		"caller": testOwner.Hex(), "to": testHolder.Hex(), "ids": []string{"1", "2"}, "amounts": []string{"10", "5"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, base+"/80001/transfers", map[string]interface{}{
		"caller":      testHolder.Hex(),
		"destChainId": "43113",
		"ids":         []string{"1", "2"},
		"amounts":     []string{"5", "3"},
		"recipient":   testRecipient.Hex(),
		"metadataParams": map[string]interface{}{
			"destGasLimit": 300000, "destGasPrice": 1, "ackGasLimit": 100000, "ackGasPrice": 1,
			"relayerFee": "0", "ackType": int(codec.AckOnSuccess),
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	dest, _ := n.Contract("43113")
	require.Eventually(t, func() bool {
		bal, err := dest.BalanceOf(testRecipient, big.NewInt(2))
		return err == nil && bal.Cmp(big.NewInt(3)) == 0
	}, 5*time.Second, 20*time.Millisecond)

	bal, err := dest.BalanceOf(testRecipient, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())
	assert.Empty(t, n.Gateway().Pending())
}

func TestNodeStatePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	n, err := New(ctx, zap.NewNop(), testNodeConfig(dir))
	require.NoError(t, err)
	src, _ := n.Contract("80001")
	require.NoError(t, src.Mint(ctx, testOwner, testHolder, []*big.Int{big.NewInt(7)}, []*big.Int{big.NewInt(70)}, nil))
	n.Close()

	n, err = New(ctx, zap.NewNop(), testNodeConfig(dir))
	require.NoError(t, err)
	defer n.Close()

	src, _ = n.Contract("80001")
	bal, err := src.BalanceOf(testHolder, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal.Int64())

	reg, err := src.ContractsOnChains()
	require.NoError(t, err)
	assert.Len(t, reg, 1)
}

func TestNodeInitialMintAndOpaqueChainIDs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := testNodeConfig(dir)
	cfg.Chains[0].ChainID = "../gateway"
	cfg.Chains[1].ChainID = "a/b"
	cfg.Chains[0].InitialMint = []TokenAmount{{ID: "1", Amount: "10"}, {ID: "2", Amount: "5"}}

	n, err := New(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)
	src, ok := n.Contract("../gateway")
	require.True(t, ok)
	bal, err := src.BalanceOf(testOwner, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.Int64())
	dest, _ := n.Contract("a/b")
	supply, err := dest.TotalSupply(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), supply.Int64())
	n.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"chains", "gateway"}, names)
	chains, err := os.ReadDir(filepath.Join(dir, "chains"))
	require.NoError(t, err)
	assert.Len(t, chains, 2)

	// The initial supply is minted once, when the chain database is created.
	n, err = New(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)
	defer n.Close()
	src, _ = n.Contract("../gateway")
	supply, err = src.TotalSupply(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(10), supply.Int64())
}
