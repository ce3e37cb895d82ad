package db

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransferStatus is the source-side view of an outbound transfer.
type TransferStatus string

const (
	// TransferInFlight means the tokens are burned and the request was handed to the gateway.
	TransferInFlight TransferStatus = "InFlight"
	// TransferDelivered means the gateway acknowledged a successful execution on the destination.
	TransferDelivered TransferStatus = "Delivered"
	// TransferFailed means the gateway acknowledged a failed execution on the destination. The burned tokens are not
	// restored.
	TransferFailed TransferStatus = "Failed"
)

const transferPrefix = "XFER:OUT:"

// TransferRecord is stored by the source instance for every accepted outbound transfer. The packet itself travels
// with the gateway request; the record only keeps its keccak256 digest and length.
type TransferRecord struct {
	RequestID    uint64         `json:"requestId"`
	Sender       common.Address `json:"sender"`
	DestChainID  string         `json:"destChainId"`
	DestContract string         `json:"destContract"`
	PacketHash   common.Hash    `json:"packetHash"`
	PacketSize   int            `json:"packetSize"`
	Fee          *big.Int       `json:"fee"`
	Status       TransferStatus `json:"status"`
	AckData      hexutil.Bytes  `json:"ackData,omitempty"`
	Created      time.Time      `json:"created"`
	Updated      time.Time      `json:"updated"`
}

func transferKey(requestID uint64) []byte {
	// Zero padded so that iteration is in request order.
	return []byte(fmt.Sprintf("%s%020d", transferPrefix, requestID))
}

func (t *Txn) StoreTransfer(r *TransferRecord) error {
	b, err := EncodeTransfer(r)
	if err != nil {
		return err
	}
	return t.StoreEncodedTransfer(r.RequestID, b)
}

// EncodeTransfer returns the stored form of r. The request id is the key of a stored record and is not part of the
// value, so a record can be encoded before its id is known.
func EncodeTransfer(r *TransferRecord) ([]byte, error) {
	v := *r
	v.RequestID = 0
	b, err := json.Marshal(&v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer %d: %w", r.RequestID, err)
	}
	return b, nil
}

// StoreEncodedTransfer writes a value produced by EncodeTransfer under requestID.
func (t *Txn) StoreEncodedTransfer(requestID uint64, b []byte) error {
	return t.set(transferKey(requestID), b)
}

func decodeTransfer(key []byte, val []byte) (*TransferRecord, error) {
	id, err := strconv.ParseUint(string(key[len(transferPrefix):]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer key %s: %w", string(key), err)
	}
	var r TransferRecord
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfer %d: %w", id, err)
	}
	r.RequestID = id
	return &r, nil
}

// Transfer returns the record of requestID or ErrNotFound.
func (t *Txn) Transfer(requestID uint64) (*TransferRecord, error) {
	key := transferKey(requestID)
	b, err := t.get(key)
	if err != nil {
		return nil, err
	}
	return decodeTransfer(key, b)
}

// Transfers returns every outbound transfer record, oldest first.
func (t *Txn) Transfers() ([]*TransferRecord, error) {
	out := []*TransferRecord{}
	err := t.iterate([]byte(transferPrefix), func(key []byte, val []byte) error {
		r, err := decodeTransfer(key, val)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
