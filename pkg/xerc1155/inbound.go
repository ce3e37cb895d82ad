package xerc1155

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
)

// IReceive applies a transfer packet delivered by the gateway: it mints the packet's tokens to the packet's
// recipient and returns the acknowledgment abi.encode(string srcChainID).
//
// The caller must be the configured gateway. That is the only authenticity check unless strict origin is enabled;
// the packet itself is untrusted input. Without replay protection a redelivered packet mints again.
func (c *Contract) IReceive(ctx context.Context, caller common.Address, requestSender string, packet []byte, srcChainID string) ([]byte, error) {
	var ack []byte
	var recipient common.Address
	var req codec.TransferRequest

	err := c.call("iReceive", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyGateway(s, caller); err != nil {
			return nil, err
		}

		if c.strictOrigin {
			expected, err := c.lookup(txn, srcChainID)
			if err != nil {
				return nil, err
			}
			if expected == "" || !sameContract(expected, requestSender) {
				return nil, xcommon.NewError(xcommon.KindAuthorization, xcommon.ReasonUnknownOrigin)
			}
		}

		var err error
		req, err = codec.DecodePacket(packet)
		if err != nil {
			return nil, err
		}
		recipient, err = codec.DecodeAddress(req.Recipient)
		if err != nil {
			return nil, err
		}
		if recipient == (common.Address{}) {
			return nil, xcommon.NewError(xcommon.KindInvalidRequest, xcommon.ReasonMintToZeroAddress)
		}

		if c.replayProtection {
			digest := packetDigest(srcChainID, requestSender, packet)
			done, err := txn.IsProcessed(digest)
			if err != nil {
				return nil, err
			}
			if done {
				return nil, xcommon.NewError(xcommon.KindDuplicateDelivery, xcommon.ReasonAlreadyProcessed)
			}
			if err := txn.MarkProcessed(digest, c.now()); err != nil {
				return nil, err
			}
		}

		if err := mintBatch(txn, recipient, req.TokenIDs, req.Amounts); err != nil {
			return nil, err
		}

		ack = codec.EncodeAck(srcChainID)
		return []*Event{{
			Kind:       EventReceived,
			SrcChainID: srcChainID,
			Account:    recipient,
			TokenIDs:   copyBigs(req.TokenIDs),
			Amounts:    copyBigs(req.Amounts),
			Value:      requestSender,
		}}, nil
	})
	if err != nil {
		if xcommon.IsKind(err, xcommon.KindDuplicateDelivery) {
			c.logger.Warn("xerc: refusing redelivered packet", zap.String("srcChain", srcChainID), zap.String("requestSender", requestSender))
		}
		return nil, err
	}

	inboundTransfers.WithLabelValues(c.chainID, srcChainID).Inc()
	c.logger.Info("xerc: received cross-chain transfer",
		zap.String("srcChain", srcChainID),
		zap.String("requestSender", requestSender),
		zap.Stringer("recipient", recipient),
		zap.Int("numTokens", len(req.TokenIDs)),
	)
	return ack, nil
}

// IAck records the gateway's report of how an earlier outbound request executed on the destination. A failed
// execution does not restore the burned tokens. Acks for unknown requests are ignored.
func (c *Contract) IAck(ctx context.Context, caller common.Address, requestID uint64, execFlag bool, execData []byte) error {
	known := true
	err := c.call("iAck", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyGateway(s, caller); err != nil {
			return nil, err
		}

		r, err := txn.Transfer(requestID)
		if errors.Is(err, db.ErrNotFound) {
			known = false
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		r.Status = db.TransferFailed
		if execFlag {
			r.Status = db.TransferDelivered
		}
		r.AckData = append([]byte(nil), execData...)
		r.Updated = c.now()
		if err := txn.StoreTransfer(r); err != nil {
			return nil, err
		}
		return []*Event{{
			Kind:        EventAcknowledged,
			RequestID:   requestID,
			DestChainID: r.DestChainID,
			Account:     r.Sender,
			Success:     execFlag,
		}}, nil
	})
	if err != nil {
		return err
	}

	if !known {
		c.logger.Warn("xerc: ack for unknown request", zap.Uint64("requestId", requestID), zap.Bool("execFlag", execFlag))
		return nil
	}

	outcome := "failure"
	if execFlag {
		outcome = "success"
	}
	acksReceived.WithLabelValues(c.chainID, outcome).Inc()
	c.logger.Info("xerc: request acknowledged", zap.Uint64("requestId", requestID), zap.Bool("execFlag", execFlag))
	return nil
}

// packetDigest identifies an inbound packet by origin chain, sender and content. Each part is length prefixed so
// that no two distinct triples hash the same input.
func packetDigest(srcChainID string, requestSender string, packet []byte) [32]byte {
	parts := [][]byte{[]byte(srcChainID), []byte(requestSender), packet}
	buf := make([]byte, 0, 24+len(srcChainID)+len(requestSender)+len(packet))
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(p)))
		buf = append(buf, p...)
	}
	return crypto.Keccak256Hash(buf)
}

// ProcessedCount returns how many inbound packets were recorded under replay protection.
func (c *Contract) ProcessedCount() (int, error) {
	var n int
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		n, err = txn.ProcessedCount()
		return err
	})
	return n, err
}
