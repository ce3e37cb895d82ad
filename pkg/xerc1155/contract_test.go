package xerc1155

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
)

func TestNewRegistersFeePayer(t *testing.T) {
	gw := newFakeGateway()
	c := newTestContract(t, gw)

	assert.Equal(t, "router1feepayer", gw.dapps[srcChain+"/"+contractAddr.Hex()])
	assert.Equal(t, srcChain, c.ChainID())
	assert.Equal(t, contractAddr, c.Address())

	o, err := c.Owner()
	require.NoError(t, err)
	assert.Equal(t, owner, o)

	g, err := c.GatewayContract()
	require.NoError(t, err)
	assert.Equal(t, gatewayAddr, g)

	uri, err := c.URI(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "https://tokens.example/{id}.json", uri)
}

func TestNewMintsInitialSupplyOnce(t *testing.T) {
	ctx := context.Background()
	database := openDB(t)
	sink := &recordingSink{}

	cfg := testConfig(srcChain)
	cfg.InitialIDs = bigs(1, 2)
	cfg.InitialAmounts = bigs(10, 5)
	c, err := New(ctx, cfg, database, newFakeGateway(), WithEventSink(sink))
	require.NoError(t, err)
	requireBalances(t, c, owner, map[int64]int64{1: 10, 2: 5})
	assert.Equal(t, []EventKind{EventMinted}, sink.kinds())

	// Reopening an existing instance does not mint again.
	c, err = New(ctx, cfg, database, newFakeGateway())
	require.NoError(t, err)
	requireBalances(t, c, owner, map[int64]int64{1: 10, 2: 5})
	supply, err := c.TotalSupply(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(10), supply.Int64())

	// A bad initial mint leaves the database uninitialized.
	cfg.InitialAmounts = bigs(10)
	fresh := openDB(t)
	_, err = New(ctx, cfg, fresh, newFakeGateway())
	assert.ErrorContains(t, err, xcommon.ReasonLengthMismatch)
	require.NoError(t, fresh.View(func(txn *db.Txn) error {
		ok, err := txn.IsInitialized()
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()

	_, err := New(ctx, Config{}, openDB(t), gw)
	assert.Error(t, err)

	cfg := testConfig(srcChain)
	cfg.Owner = common.Address{}
	_, err = New(ctx, cfg, openDB(t), gw)
	assert.ErrorContains(t, err, "owner must be set")

	cfg = testConfig(srcChain)
	cfg.Address = common.Address{}
	_, err = New(ctx, cfg, openDB(t), gw)
	assert.ErrorContains(t, err, "contract address must be set")

	_, err = New(ctx, testConfig(srcChain), openDB(t), nil)
	assert.Error(t, err)
}

func TestNewFailsWhenGatewayRejectsFeePayer(t *testing.T) {
	gw := newFakeGateway()
	gw.failDapp = errGatewayDown
	database := openDB(t)

	_, err := New(context.Background(), testConfig(srcChain), database, gw)
	require.ErrorIs(t, err, errGatewayDown)

	// Nothing was persisted.
	require.NoError(t, database.View(func(txn *db.Txn) error {
		ok, err := txn.IsInitialized()
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	database := openDB(t)
	gw := newFakeGateway()

	c, err := New(ctx, testConfig(srcChain), database, gw)
	require.NoError(t, err)
	require.NoError(t, c.Mint(ctx, owner, holder, bigs(1), bigs(10), nil))
	require.NoError(t, c.SetContractOnChain(ctx, owner, destChain, remoteAddr))

	// Construction parameters are ignored once the instance exists.
	cfg := testConfig(srcChain)
	cfg.Owner = stranger
	c2, err := New(ctx, cfg, database, gw)
	require.NoError(t, err)

	o, err := c2.Owner()
	require.NoError(t, err)
	assert.Equal(t, owner, o)
	requireBalances(t, c2, holder, map[int64]int64{1: 10})
	addr, err := c2.ContractOnChain(destChain)
	require.NoError(t, err)
	assert.Equal(t, remoteAddr, addr)

	_, err = New(ctx, testConfig("1"), database, gw)
	assert.ErrorContains(t, err, "database belongs to chain")
}

func TestOwnerOnlyOperations(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	c := newTestContract(t, gw)

	for _, caller := range []common.Address{stranger, holder, gatewayAddr, {}} {
		err := c.SetContractOnChain(ctx, caller, destChain, remoteAddr)
		assert.ErrorIs(t, err, xcommon.ErrOnlyOwner)
		assert.EqualError(t, err, "only owner")

		err = c.Mint(ctx, caller, holder, bigs(1), bigs(1), nil)
		assert.True(t, xcommon.IsKind(err, xcommon.KindAuthorization))

		err = c.SetGateway(ctx, caller, stranger)
		assert.ErrorIs(t, err, xcommon.ErrOnlyOwner)

		err = c.SetDappMetadata(ctx, caller, "someone")
		assert.ErrorIs(t, err, xcommon.ErrOnlyOwner)

		err = c.TransferOwnership(ctx, caller, stranger)
		assert.ErrorIs(t, err, xcommon.ErrOnlyOwner)
	}

	// Nothing changed.
	addr, err := c.ContractOnChain(destChain)
	require.NoError(t, err)
	assert.Equal(t, "", addr)
	requireBalances(t, c, holder, map[int64]int64{1: 0})
	g, err := c.GatewayContract()
	require.NoError(t, err)
	assert.Equal(t, gatewayAddr, g)
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway())

	require.NoError(t, c.TransferOwnership(ctx, owner, stranger))
	assert.ErrorIs(t, c.SetContractOnChain(ctx, owner, destChain, remoteAddr), xcommon.ErrOnlyOwner)
	require.NoError(t, c.SetContractOnChain(ctx, stranger, destChain, remoteAddr))

	err := c.TransferOwnership(ctx, stranger, common.Address{})
	assert.True(t, xcommon.IsKind(err, xcommon.KindInvalidRequest))
}

func TestSetGatewayChangesTrustedCaller(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway())
	packet := mustPacket(t, bigs(1), bigs(1), recipient)

	require.NoError(t, c.SetGateway(ctx, owner, stranger))

	_, err := c.IReceive(ctx, gatewayAddr, remoteAddr, packet, destChain)
	assert.ErrorIs(t, err, xcommon.ErrOnlyGateway)

	_, err = c.IReceive(ctx, stranger, remoteAddr, packet, destChain)
	require.NoError(t, err)
}

func TestSetDappMetadata(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	c := newTestContract(t, gw)

	require.NoError(t, c.SetDappMetadata(ctx, owner, "newpayer"))
	assert.Equal(t, "newpayer", gw.dapps[srcChain+"/"+contractAddr.Hex()])
	payer, err := c.FeePayer()
	require.NoError(t, err)
	assert.Equal(t, "newpayer", payer)

	gw.failDapp = errGatewayDown
	err = c.SetDappMetadata(ctx, owner, "other")
	assert.True(t, xcommon.IsKind(err, xcommon.KindGateway))
	payer, err = c.FeePayer()
	require.NoError(t, err)
	assert.Equal(t, "newpayer", payer)
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway())

	require.NoError(t, c.Mint(ctx, owner, holder, bigs(1, 2, 1), bigs(10, 5, 1), []byte("0x")))
	requireBalances(t, c, holder, map[int64]int64{1: 11, 2: 5})

	supply, err := c.TotalSupply(big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(11), supply.Int64())

	err = c.Mint(ctx, owner, common.Address{}, bigs(1), bigs(1), nil)
	assert.EqualError(t, err, xcommon.ReasonMintToZeroAddress)

	err = c.Mint(ctx, owner, holder, bigs(1, 2), bigs(1), nil)
	assert.EqualError(t, err, xcommon.ReasonLengthMismatch)

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	err = c.Mint(ctx, owner, holder, bigs(1), []*big.Int{max}, nil)
	assert.True(t, xcommon.IsKind(err, xcommon.KindSupplyOverflow))
	requireBalances(t, c, holder, map[int64]int64{1: 11})
}

func TestBalanceOfBatch(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t, newFakeGateway())
	require.NoError(t, c.Mint(ctx, owner, holder, bigs(1, 2), bigs(10, 5), nil))
	require.NoError(t, c.Mint(ctx, owner, recipient, bigs(2), bigs(7), nil))

	bals, err := c.BalanceOfBatch([]common.Address{holder, holder, recipient, recipient}, bigs(1, 2, 1, 2))
	require.NoError(t, err)
	require.Len(t, bals, 4)
	for i, want := range []int64{10, 5, 0, 7} {
		assert.Zero(t, big.NewInt(want).Cmp(bals[i]), "index %d", i)
	}

	_, err = c.BalanceOfBatch([]common.Address{holder}, bigs(1, 2))
	assert.True(t, xcommon.IsKind(err, xcommon.KindInvalidRequest))

	_, err = c.BalanceOf(holder, big.NewInt(-1))
	assert.True(t, xcommon.IsKind(err, xcommon.KindInvalidRequest))
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newTestContract(t, newFakeGateway(), WithEventSink(sink))

	require.NoError(t, c.Mint(ctx, owner, holder, bigs(1), bigs(1), nil))
	_ = c.Mint(ctx, stranger, holder, bigs(1), bigs(1), nil)
	require.NoError(t, c.SetContractOnChain(ctx, owner, destChain, remoteAddr))

	assert.Equal(t, []EventKind{EventMinted, EventRegistryUpdated}, sink.kinds())
	assert.Equal(t, srcChain, sink.events[0].ChainID)
	assert.Equal(t, fixedClock(), sink.events[0].Time)
}

func TestEventsDoNotAliasCallerSlices(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newTestContract(t, newFakeGateway(), WithEventSink(sink))
	require.NoError(t, c.SetContractOnChain(ctx, owner, destChain, remoteAddr))

	ids, amounts := bigs(1), bigs(4)
	require.NoError(t, c.Mint(ctx, owner, holder, ids, amounts, nil))
	req := codec.TransferRequest{TokenIDs: bigs(1), Amounts: bigs(3), Recipient: codec.EncodeAddress(recipient)}
	_, err := c.TransferCrossChain(ctx, holder, destChain, req, mustMetadata(t), nil)
	require.NoError(t, err)

	ids[0].SetInt64(100)
	amounts[0].SetInt64(100)
	req.TokenIDs[0].SetInt64(100)
	req.Amounts[0] = big.NewInt(100)

	require.Len(t, sink.events, 3)
	for _, ev := range sink.events[1:] {
		assert.Equal(t, int64(1), ev.TokenIDs[0].Int64(), ev.Kind)
	}
	assert.Equal(t, int64(4), sink.events[1].Amounts[0].Int64())
	assert.Equal(t, int64(3), sink.events[2].Amounts[0].Int64())
}
