package db

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	xcommon "github.com/xerc1155/xchain/pkg/common"
)

// GatewayDB persists the loopback gateway's queue so that requests survive a restart.
type GatewayDB interface {
	// GwEnqueue assigns the next request nonce to msg, stores it as in flight and accrues its fee.
	GwEnqueue(msg *xcommon.RelayMessage) (uint64, error)
	GwUpdateInflight(msg *xcommon.RelayMessage) error
	GwDeleteInflight(msgID string) error
	GwGetInflight(logger *zap.Logger) ([]*xcommon.RelayMessage, error)
	GwStoreDappFeePayer(chainID string, dapp common.Address, feePayer string) error
	GwDappFeePayer(chainID string, dapp common.Address) (string, error)
	GwFeesCollected(chainID string) (*big.Int, error)
}

const (
	gwNonceKey       = "GW:NONCE"
	gwInflightPrefix = "GW:INFLIGHT:"
	gwDappPrefix     = "GW:DAPP:"
	gwFeesPrefix     = "GW:FEES:"
)

func gwInflightKey(msgID string) []byte {
	return []byte(gwInflightPrefix + msgID)
}

func gwDappKey(chainID string, dapp common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", gwDappPrefix, chainID, dapp.Hex()))
}

func gwFeesKey(chainID string) []byte {
	return []byte(gwFeesPrefix + chainID)
}

func (t *Txn) gwFees(chainID string) (*big.Int, error) {
	b, err := t.get(gwFeesKey(chainID))
	if errors.Is(err, ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func (d *Database) GwEnqueue(msg *xcommon.RelayMessage) (uint64, error) {
	err := d.Update(func(txn *Txn) error {
		var nonce uint64
		b, err := txn.get([]byte(gwNonceKey))
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			nonce = binary.BigEndian.Uint64(b)
		}
		nonce++
		var nb [8]byte
		binary.BigEndian.PutUint64(nb[:], nonce)
		if err := txn.set([]byte(gwNonceKey), nb[:]); err != nil {
			return err
		}
		msg.Nonce = nonce

		if msg.Fee != nil && msg.Fee.Sign() > 0 {
			fees, err := txn.gwFees(msg.SrcChainID)
			if err != nil {
				return err
			}
			if err := txn.set(gwFeesKey(msg.SrcChainID), fees.Add(fees, msg.Fee).Bytes()); err != nil {
				return err
			}
		}

		v, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.set(gwInflightKey(msg.MessageIDString()), v)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue relay message: %w", err)
	}
	return msg.Nonce, nil
}

func (d *Database) GwUpdateInflight(msg *xcommon.RelayMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := d.Update(func(txn *Txn) error {
		return txn.set(gwInflightKey(msg.MessageIDString()), b)
	}); err != nil {
		return fmt.Errorf("failed to update in-flight message %s: %w", msg.MessageIDString(), err)
	}
	return nil
}

func (d *Database) GwDeleteInflight(msgID string) error {
	if err := d.Update(func(txn *Txn) error {
		return txn.delete(gwInflightKey(msgID))
	}); err != nil {
		return fmt.Errorf("failed to delete in-flight message %s: %w", msgID, err)
	}
	return nil
}

// GwGetInflight is called by the gateway on start up to reload undelivered requests. Entries that fail to decode are
// logged and skipped.
func (d *Database) GwGetInflight(logger *zap.Logger) ([]*xcommon.RelayMessage, error) {
	msgs := []*xcommon.RelayMessage{}
	err := d.View(func(txn *Txn) error {
		return txn.iterate([]byte(gwInflightPrefix), func(key []byte, val []byte) error {
			var m xcommon.RelayMessage
			if err := json.Unmarshal(val, &m); err != nil {
				logger.Error("failed to unmarshal in-flight message for key", zap.String("key", string(key)), zap.Error(err))
				return nil
			}
			msgs = append(msgs, &m)
			return nil
		})
	})
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Nonce < msgs[j].Nonce })
	return msgs, err
}

func (d *Database) GwStoreDappFeePayer(chainID string, dapp common.Address, feePayer string) error {
	return d.Update(func(txn *Txn) error {
		return txn.set(gwDappKey(chainID, dapp), []byte(feePayer))
	})
}

// GwDappFeePayer returns the registered fee payer of a dapp, or "" if the dapp never registered.
func (d *Database) GwDappFeePayer(chainID string, dapp common.Address) (string, error) {
	var out string
	err := d.View(func(txn *Txn) error {
		b, err := txn.get(gwDappKey(chainID, dapp))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		out = string(b)
		return err
	})
	return out, err
}

func (d *Database) GwFeesCollected(chainID string) (*big.Int, error) {
	var out *big.Int
	err := d.View(func(txn *Txn) error {
		var err error
		out, err = txn.gwFees(chainID)
		return err
	})
	return out, err
}

// MockGatewayDB is an in-memory GatewayDB for tests.
type MockGatewayDB struct {
	mu       sync.Mutex
	nonce    uint64
	inflight map[string]*xcommon.RelayMessage
	dapps    map[string]string
	fees     map[string]*big.Int
}

func NewMockGatewayDB() *MockGatewayDB {
	return &MockGatewayDB{
		inflight: make(map[string]*xcommon.RelayMessage),
		dapps:    make(map[string]string),
		fees:     make(map[string]*big.Int),
	}
}

func (d *MockGatewayDB) GwEnqueue(msg *xcommon.RelayMessage) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nonce++
	msg.Nonce = d.nonce
	if msg.Fee != nil && msg.Fee.Sign() > 0 {
		f, ok := d.fees[msg.SrcChainID]
		if !ok {
			f = new(big.Int)
			d.fees[msg.SrcChainID] = f
		}
		f.Add(f, msg.Fee)
	}
	cpy := *msg
	d.inflight[msg.MessageIDString()] = &cpy
	return msg.Nonce, nil
}

func (d *MockGatewayDB) GwUpdateInflight(msg *xcommon.RelayMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cpy := *msg
	d.inflight[msg.MessageIDString()] = &cpy
	return nil
}

func (d *MockGatewayDB) GwDeleteInflight(msgID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, msgID)
	return nil
}

func (d *MockGatewayDB) GwGetInflight(logger *zap.Logger) ([]*xcommon.RelayMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*xcommon.RelayMessage, 0, len(d.inflight))
	for _, m := range d.inflight {
		cpy := *m
		out = append(out, &cpy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}

func (d *MockGatewayDB) GwStoreDappFeePayer(chainID string, dapp common.Address, feePayer string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dapps[string(gwDappKey(chainID, dapp))] = feePayer
	return nil
}

func (d *MockGatewayDB) GwDappFeePayer(chainID string, dapp common.Address) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dapps[string(gwDappKey(chainID, dapp))], nil
}

func (d *MockGatewayDB) GwFeesCollected(chainID string) (*big.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fees[chainID]; ok {
		return new(big.Int).Set(f), nil
	}
	return new(big.Int), nil
}
