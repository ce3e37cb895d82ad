package db

import (
	"encoding/hex"
	"time"
)

const processedPrefix = "INBOUND:DONE:"

func processedKey(digest [32]byte) []byte {
	return []byte(processedPrefix + hex.EncodeToString(digest[:]))
}

// IsProcessed reports whether an inbound packet with this digest was already applied.
func (t *Txn) IsProcessed(digest [32]byte) (bool, error) {
	return t.has(processedKey(digest))
}

// MarkProcessed records the digest of an applied inbound packet.
func (t *Txn) MarkProcessed(digest [32]byte, now time.Time) error {
	v, _ := now.UTC().MarshalText()
	return t.set(processedKey(digest), v)
}

// ProcessedCount returns how many inbound packets were recorded as applied.
func (t *Txn) ProcessedCount() (int, error) {
	n := 0
	err := t.iterate([]byte(processedPrefix), func(_ []byte, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
