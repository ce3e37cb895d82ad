package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const settingsKey = "CFG:SETTINGS"

// Settings are the per-instance administrative values fixed at construction and changed only by the owner.
type Settings struct {
	ChainID  string         `json:"chainId"`
	Self     common.Address `json:"self"`
	Owner    common.Address `json:"owner"`
	Gateway  common.Address `json:"gateway"`
	FeePayer string         `json:"feePayer"`
	URI      string         `json:"uri"`
}

// Settings returns the stored settings, or ErrNotFound on a fresh database.
func (t *Txn) Settings() (*Settings, error) {
	b, err := t.get([]byte(settingsKey))
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

func (t *Txn) StoreSettings(s *Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return t.set([]byte(settingsKey), b)
}

// IsInitialized reports whether settings were ever stored.
func (t *Txn) IsInitialized() (bool, error) {
	_, err := t.Settings()
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
