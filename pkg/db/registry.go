package db

import (
	"errors"
)

const registryPrefix = "REG:CHAIN:"

func registryKey(chainID string) []byte {
	return []byte(registryPrefix + chainID)
}

// SetContractOnChain maps a chain identifier to the counterpart contract on that chain, replacing any previous
// mapping. Setting the empty address removes the mapping.
func (t *Txn) SetContractOnChain(chainID string, addr string) error {
	if addr == "" {
		return t.delete(registryKey(chainID))
	}
	return t.set(registryKey(chainID), []byte(addr))
}

// ContractOnChain returns the counterpart contract on chainID, or "" if none is configured.
func (t *Txn) ContractOnChain(chainID string) (string, error) {
	b, err := t.get(registryKey(chainID))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ContractsOnChains returns the whole registry.
func (t *Txn) ContractsOnChains() (map[string]string, error) {
	out := make(map[string]string)
	err := t.iterate([]byte(registryPrefix), func(key []byte, val []byte) error {
		out[string(key[len(registryPrefix):])] = string(val)
		return nil
	})
	return out, err
}
