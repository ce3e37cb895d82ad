package db

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// The ledger is the multi-token bookkeeping the transfer protocol consumes: balances per (token id, owner) and a
// total supply per token id. Zero balances are not stored.

const (
	ledgerBalancePrefix = "LEDGER:BAL:"
	ledgerSupplyPrefix  = "LEDGER:SUPPLY:"
)

var (
	ErrInsufficientBalance = errors.New("burn amount exceeds balance")
	ErrSupplyOverflow      = errors.New("mint amount overflows supply")
)

func ledgerBalanceKey(id *uint256.Int, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%064x/%x", ledgerBalancePrefix, id.ToBig(), owner.Bytes()))
}

func ledgerSupplyKey(id *uint256.Int) []byte {
	return []byte(fmt.Sprintf("%s%064x", ledgerSupplyPrefix, id.ToBig()))
}

func (t *Txn) getUint256(key []byte) (*uint256.Int, error) {
	b, err := t.get(key)
	if errors.Is(err, ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("corrupt ledger entry %s: %d bytes", string(key), len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (t *Txn) putUint256(key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return t.delete(key)
	}
	b := v.Bytes32()
	return t.set(key, b[:])
}

// BalanceOf returns the balance of owner for token id. Unknown pairs have a zero balance.
func (t *Txn) BalanceOf(owner common.Address, id *uint256.Int) (*uint256.Int, error) {
	return t.getUint256(ledgerBalanceKey(id, owner))
}

// TotalSupply returns minted minus burned for token id.
func (t *Txn) TotalSupply(id *uint256.Int) (*uint256.Int, error) {
	return t.getUint256(ledgerSupplyKey(id))
}

// Mint credits amount of token id to owner. A zero amount is a no-op.
func (t *Txn) Mint(owner common.Address, id *uint256.Int, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}

	supply, err := t.TotalSupply(id)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}

	balance, err := t.BalanceOf(owner, id)
	if err != nil {
		return err
	}
	// The balance is bounded by the supply, so this cannot overflow once the supply did not.
	newBalance := new(uint256.Int).Add(balance, amount)

	if err := t.putUint256(ledgerSupplyKey(id), newSupply); err != nil {
		return err
	}
	return t.putUint256(ledgerBalanceKey(id, owner), newBalance)
}

// Burn debits amount of token id from owner. A zero amount is a no-op.
func (t *Txn) Burn(owner common.Address, id *uint256.Int, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}

	balance, err := t.BalanceOf(owner, id)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}

	supply, err := t.TotalSupply(id)
	if err != nil {
		return err
	}
	if supply.Lt(amount) {
		return fmt.Errorf("ledger corrupt: supply of %s below balance", id.ToBig())
	}

	if err := t.putUint256(ledgerSupplyKey(id), new(uint256.Int).Sub(supply, amount)); err != nil {
		return err
	}
	return t.putUint256(ledgerBalanceKey(id, owner), new(uint256.Int).Sub(balance, amount))
}
