package xerc1155

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/xerc1155/xchain/pkg/codec"
	"github.com/xerc1155/xchain/pkg/db"
)

var (
	owner        = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	holder       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	recipient    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	stranger     = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	gatewayAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	contractAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	remoteAddr   = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
)

const (
	srcChain  = "80001"
	destChain = "43113"
)

// fakeGateway records dispatches and optionally fails them.
type fakeGateway struct {
	mu        sync.Mutex
	sent      []*OutboundRequest
	dapps     map[string]string
	failSend  error
	failDapp  error
	nextNonce uint64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{dapps: make(map[string]string)}
}

func (g *fakeGateway) ISend(ctx context.Context, req *OutboundRequest) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSend != nil {
		return 0, g.failSend
	}
	g.nextNonce++
	g.sent = append(g.sent, req)
	return g.nextNonce, nil
}

func (g *fakeGateway) SetDappMetadata(ctx context.Context, chainID string, dapp common.Address, feePayer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDapp != nil {
		return g.failDapp
	}
	g.dapps[chainID+"/"+dapp.Hex()] = feePayer
	return nil
}

func (g *fakeGateway) requests() []*OutboundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*OutboundRequest(nil), g.sent...)
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []*Event
}

func (s *recordingSink) Publish(ev *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func openDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testConfig(chainID string) Config {
	return Config{
		ChainID:  chainID,
		Address:  contractAddr,
		URI:      "https://tokens.example/{id}.json",
		Owner:    owner,
		Gateway:  gatewayAddr,
		FeePayer: "router1feepayer",
	}
}

func fixedClock() time.Time {
	return time.Unix(1654516425, 0).UTC()
}

func newTestContract(t *testing.T, gw Gateway, opts ...Option) *Contract {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	c, err := New(context.Background(), testConfig(srcChain), openDB(t), gw, opts...)
	require.NoError(t, err)
	return c
}

func bigs(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func mustMetadata(t *testing.T) codec.RequestMetadata {
	t.Helper()
	md, err := codec.BuildRequestMetadata(1_000_000, 20_000_000_000, 500_000, 15_000_000_000, big.NewInt(0), codec.AckOnSuccess, false, "")
	require.NoError(t, err)
	return md
}

func mustPacket(t *testing.T, ids, amounts []*big.Int, to common.Address) []byte {
	t.Helper()
	p, err := codec.EncodePacket(codec.TransferRequest{TokenIDs: ids, Amounts: amounts, Recipient: codec.EncodeAddress(to)})
	require.NoError(t, err)
	return p
}

func requireBalances(t *testing.T, c *Contract, account common.Address, want map[int64]int64) {
	t.Helper()
	for id, amount := range want {
		bal, err := c.BalanceOf(account, big.NewInt(id))
		require.NoError(t, err)
		require.Equalf(t, big.NewInt(amount).String(), bal.String(), "balance of token %d", id)
	}
}

var errGatewayDown = errors.New("gateway down")
