package xerc1155

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventTransferCrossChain EventKind = "TransferCrossChain"
	EventReceived           EventKind = "CrossChainReceived"
	EventAcknowledged       EventKind = "Acknowledged"
	EventMinted             EventKind = "Minted"
	EventRegistryUpdated    EventKind = "RegistryUpdated"
	EventGatewayUpdated     EventKind = "GatewayUpdated"
	EventOwnershipChanged   EventKind = "OwnershipTransferred"
	EventDappMetadataSet    EventKind = "DappMetadataSet"
)

// Event is published after a contract call committed. Fields not relevant to Kind are left empty.
type Event struct {
	Kind        EventKind      `json:"kind"`
	ChainID     string         `json:"chainId"`
	RequestID   uint64         `json:"requestId,omitempty"`
	SrcChainID  string         `json:"srcChainId,omitempty"`
	DestChainID string         `json:"destChainId,omitempty"`
	Account     common.Address `json:"account"`
	TokenIDs    []*big.Int     `json:"tokenIds,omitempty"`
	Amounts     []*big.Int     `json:"amounts,omitempty"`
	Value       string         `json:"value,omitempty"`
	Success     bool           `json:"success,omitempty"`
	Time        time.Time      `json:"time"`
}

// EventSink receives committed events. Publish must not block and must not call back into the contract.
type EventSink interface {
	Publish(ev *Event)
}

type nopSink struct{}

func (nopSink) Publish(*Event) {}
