package db

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndBurn(t *testing.T) {
	db := openTestDB(t)
	id := uint256.NewInt(1)

	require.NoError(t, db.Update(func(txn *Txn) error {
		require.NoError(t, txn.Mint(alice, id, uint256.NewInt(10)))
		require.NoError(t, txn.Mint(bob, id, uint256.NewInt(5)))
		return txn.Burn(alice, id, uint256.NewInt(4))
	}))

	require.NoError(t, db.View(func(txn *Txn) error {
		bal, err := txn.BalanceOf(alice, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), bal.Uint64())

		bal, err = txn.BalanceOf(bob, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), bal.Uint64())

		supply, err := txn.TotalSupply(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), supply.Uint64())
		return nil
	}))
}

func TestBurnExceedsBalance(t *testing.T) {
	db := openTestDB(t)
	id := uint256.NewInt(3)

	require.NoError(t, db.Update(func(txn *Txn) error {
		return txn.Mint(alice, id, uint256.NewInt(2))
	}))

	err := db.Update(func(txn *Txn) error {
		return txn.Burn(alice, id, uint256.NewInt(3))
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Burning from an account with no balance at all.
	err = db.Update(func(txn *Txn) error {
		return txn.Burn(bob, id, uint256.NewInt(1))
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestBurnToZeroRemovesEntry(t *testing.T) {
	db := openTestDB(t)
	id := uint256.NewInt(9)

	require.NoError(t, db.Update(func(txn *Txn) error {
		require.NoError(t, txn.Mint(alice, id, uint256.NewInt(2)))
		return txn.Burn(alice, id, uint256.NewInt(2))
	}))

	require.NoError(t, db.View(func(txn *Txn) error {
		_, err := txn.get(ledgerBalanceKey(id, alice))
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = txn.get(ledgerSupplyKey(id))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestZeroAmountsAreNoops(t *testing.T) {
	db := openTestDB(t)
	id := uint256.NewInt(1)
	require.NoError(t, db.Update(func(txn *Txn) error {
		require.NoError(t, txn.Mint(alice, id, new(uint256.Int)))
		// Burning zero from an empty account is allowed.
		return txn.Burn(bob, id, new(uint256.Int))
	}))
	require.NoError(t, db.View(func(txn *Txn) error {
		supply, err := txn.TotalSupply(id)
		require.NoError(t, err)
		assert.True(t, supply.IsZero())
		return nil
	}))
}

func TestMintOverflow(t *testing.T) {
	db := openTestDB(t)
	id := uint256.NewInt(1)
	max := new(uint256.Int).SetAllOne()

	require.NoError(t, db.Update(func(txn *Txn) error {
		return txn.Mint(alice, id, max)
	}))
	err := db.Update(func(txn *Txn) error {
		return txn.Mint(bob, id, uint256.NewInt(1))
	})
	assert.ErrorIs(t, err, ErrSupplyOverflow)

	require.NoError(t, db.View(func(txn *Txn) error {
		bal, err := txn.BalanceOf(bob, id)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		return nil
	}))
}

func TestLargeTokenIDs(t *testing.T) {
	db := openTestDB(t)
	big := new(uint256.Int).SetAllOne()
	small := uint256.NewInt(1)

	require.NoError(t, db.Update(func(txn *Txn) error {
		require.NoError(t, txn.Mint(alice, big, uint256.NewInt(1)))
		return txn.Mint(alice, small, uint256.NewInt(2))
	}))
	require.NoError(t, db.View(func(txn *Txn) error {
		bal, err := txn.BalanceOf(alice, big)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), bal.Uint64())
		bal, err = txn.BalanceOf(alice, small)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), bal.Uint64())
		return nil
	}))
}
