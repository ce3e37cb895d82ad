package xerc1155

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/db"
)

// SetContractOnChain records addr as the counterpart contract on chainID, replacing any earlier entry. The empty
// address unregisters the chain. Owner only.
func (c *Contract) SetContractOnChain(ctx context.Context, caller common.Address, chainID string, addr string) error {
	err := c.call("setContractOnChain", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyOwner(s, caller); err != nil {
			return nil, err
		}
		if err := txn.SetContractOnChain(chainID, addr); err != nil {
			return nil, err
		}
		return []*Event{{Kind: EventRegistryUpdated, DestChainID: chainID, Value: addr}}, nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("xerc: counterpart registered", zap.String("chain", chainID), zap.String("contract", addr))
	return nil
}

// ContractOnChain returns the counterpart contract on chainID, or "" if the chain is not configured.
func (c *Contract) ContractOnChain(chainID string) (string, error) {
	if v, ok := c.registry.Get(chainID); ok {
		return v.(string), nil
	}
	var addr string
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		addr, err = txn.ContractOnChain(chainID)
		return err
	})
	return addr, err
}

// ContractsOnChains returns a snapshot of the whole registry.
func (c *Contract) ContractsOnChains() (map[string]string, error) {
	var out map[string]string
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		out, err = txn.ContractsOnChains()
		return err
	})
	return out, err
}

// lookup reads the registry through the cache. It must only be called inside a contract call: the cache is filled
// and updated under the instance mutex, so it never holds a value other than the committed one.
func (c *Contract) lookup(txn *db.Txn, chainID string) (string, error) {
	if v, ok := c.registry.Get(chainID); ok {
		return v.(string), nil
	}
	addr, err := txn.ContractOnChain(chainID)
	if err != nil {
		return "", err
	}
	c.registry.Add(chainID, addr)
	return addr, nil
}

// sameContract compares two counterpart identifiers. Hex addresses compare case-insensitively; anything else must
// match exactly.
func sameContract(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return a == b
}
