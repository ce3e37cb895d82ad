package xerc1155

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
)

// TransferCrossChain burns the requested tokens from caller and dispatches a transfer packet to the counterpart on
// destChainID through the gateway, paying fee. It returns the gateway request identifier, or zero if the request
// moved nothing and empty dispatch is disabled.
//
// Either the burns and the dispatch all happen or none do. Delivery is not awaited.
func (c *Contract) TransferCrossChain(
	ctx context.Context,
	caller common.Address,
	destChainID string,
	req codec.TransferRequest,
	metadata codec.RequestMetadata,
	fee *big.Int,
) (uint64, error) {
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Sign() < 0 {
		return 0, xcommon.NewError(xcommon.KindInvalidRequest, "negative fee")
	}

	var requestID uint64
	skipped, dispatched := false, false
	err := c.call("transferCrossChain", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		dest, err := c.lookup(txn, destChainID)
		if err != nil {
			return nil, err
		}
		if dest == "" {
			return nil, xcommon.ErrDestNotSet
		}

		if err := req.Validate(); err != nil {
			return nil, err
		}
		if err := burnBatch(txn, caller, req.TokenIDs, req.Amounts); err != nil {
			return nil, err
		}

		if c.skipEmptyDispatch && req.IsNoop() {
			skipped = true
			return nil, nil
		}

		packet, err := codec.EncodePacket(req)
		if err != nil {
			return nil, err
		}
		requestPacket, err := codec.EncodeRequestPacket(dest, packet)
		if err != nil {
			return nil, err
		}

		// Everything that can fail on the request runs before dispatch. After ISend only the write of the already
		// encoded record remains, and its size does not depend on the request.
		now := c.now()
		record, err := db.EncodeTransfer(&db.TransferRecord{
			Sender:       caller,
			DestChainID:  destChainID,
			DestContract: dest,
			PacketHash:   crypto.Keccak256Hash(packet),
			PacketSize:   len(packet),
			Fee:          fee,
			Status:       db.TransferInFlight,
			Created:      now,
			Updated:      now,
		})
		if err != nil {
			return nil, err
		}

		requestID, err = c.gw.ISend(ctx, &OutboundRequest{
			Version:       RequestVersion,
			SrcChainID:    c.chainID,
			Sender:        c.self,
			DestChainID:   destChainID,
			Metadata:      metadata,
			RequestPacket: requestPacket,
			Fee:           new(big.Int).Set(fee),
		})
		if err != nil {
			return nil, xcommon.WrapError(xcommon.KindGateway, xcommon.ReasonGatewayRejected, err)
		}
		dispatched = true

		if err := txn.StoreEncodedTransfer(requestID, record); err != nil {
			return nil, err
		}

		return []*Event{{
			Kind:        EventTransferCrossChain,
			RequestID:   requestID,
			SrcChainID:  c.chainID,
			DestChainID: destChainID,
			Account:     caller,
			TokenIDs:    copyBigs(req.TokenIDs),
			Amounts:     copyBigs(req.Amounts),
			Value:       fee.String(),
		}}, nil
	})
	if err != nil {
		if dispatched {
			orphanedDispatches.WithLabelValues(c.chainID).Inc()
			c.logger.Error("xerc: gateway accepted a request whose burn was rolled back",
				zap.Uint64("requestId", requestID),
				zap.String("destChain", destChainID),
				zap.Error(err),
			)
		}
		return 0, err
	}

	if skipped {
		skippedDispatches.WithLabelValues(c.chainID).Inc()
		c.logger.Info("xerc: transfer moves no tokens, not dispatched", zap.String("destChain", destChainID), zap.Stringer("sender", caller))
		return 0, nil
	}

	outboundTransfers.WithLabelValues(c.chainID, destChainID).Inc()
	c.logger.Info("xerc: dispatched cross-chain transfer",
		zap.Uint64("requestId", requestID),
		zap.String("destChain", destChainID),
		zap.Stringer("sender", caller),
		zap.Int("numTokens", len(req.TokenIDs)),
		zap.Stringer("fee", fee),
	)
	return requestID, nil
}

// Transfers returns the outbound transfers recorded by this instance, oldest first.
func (c *Contract) Transfers() ([]*db.TransferRecord, error) {
	var out []*db.TransferRecord
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		out, err = txn.Transfers()
		return err
	})
	return out, err
}

// Transfer returns the record of one outbound transfer, or db.ErrNotFound.
func (c *Contract) Transfer(requestID uint64) (*db.TransferRecord, error) {
	var out *db.TransferRecord
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		out, err = txn.Transfer(requestID)
		return err
	})
	return out, err
}
