package xerc1155

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xerc1155/xchain/pkg/codec"
)

// RequestVersion is the gateway request format version sent with every dispatch.
const RequestVersion = 1

// OutboundRequest is one dispatch handed to the gateway.
type OutboundRequest struct {
	Version     uint64
	SrcChainID  string
	Sender      common.Address
	DestChainID string
	Metadata    codec.RequestMetadata
	// RequestPacket is abi.encode(string destContract, bytes transferPacket).
	RequestPacket []byte
	Fee           *big.Int
}

// Gateway is the message relay collaborator. Implementations must not call back into the sending contract
// synchronously from ISend.
type Gateway interface {
	// ISend accepts a request for delivery and returns its request identifier. Delivery is asynchronous.
	ISend(ctx context.Context, req *OutboundRequest) (uint64, error)
	// SetDappMetadata registers who pays fees for requests sent by dapp on chainID.
	SetDappMetadata(ctx context.Context, chainID string, dapp common.Address, feePayer string) error
}
