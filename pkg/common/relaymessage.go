package common

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RelayMessage is a request accepted by a gateway and not yet delivered to its destination.
type RelayMessage struct {
	// Nonce is the request identifier returned to the sender. It is unique per gateway.
	Nonce uint64 `json:"nonce"`
	// ID is an opaque correlation id for logs and API clients.
	ID           string         `json:"id"`
	SrcChainID   string         `json:"srcChainId"`
	Sender       common.Address `json:"sender"`
	DestChainID  string         `json:"destChainId"`
	DestContract string         `json:"destContract"`
	// Packet is the transfer packet, already unwrapped from the request packet.
	Packet   hexutil.Bytes `json:"packet"`
	Metadata hexutil.Bytes `json:"metadata"`
	Fee      *big.Int      `json:"fee"`
	Created  time.Time     `json:"created"`
	Attempts int           `json:"attempts"`
	LastErr  string        `json:"lastError,omitempty"`
}

// MessageIDString uniquely identifies the message across gateways.
func (m *RelayMessage) MessageIDString() string {
	return fmt.Sprintf("%s/%s/%d", m.SrcChainID, m.Sender.Hex(), m.Nonce)
}
