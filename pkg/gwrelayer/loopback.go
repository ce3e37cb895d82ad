// Package gwrelayer provides an in-process gateway that carries requests between contract instances running in the
// same process, and a relayer that delivers them in the background. It stands in for a real relay network in tests
// and on devnets. It is not part of any contract's trust model: contracts only see the gateway principal it calls
// them with.
package gwrelayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
	"github.com/xerc1155/xchain/pkg/xerc1155"
)

var (
	// ErrNoRoute means the destination chain or contract is not attached to the gateway. The request stays pending.
	ErrNoRoute = errors.New("no route to destination contract")
	// ErrUnknownRequest means the request is not pending (never accepted, already delivered or dropped).
	ErrUnknownRequest = errors.New("unknown request")
)

// Receiver is the part of a contract the gateway delivers to.
type Receiver interface {
	Address() common.Address
	IReceive(ctx context.Context, caller common.Address, requestSender string, packet []byte, srcChainID string) ([]byte, error)
	IAck(ctx context.Context, caller common.Address, requestID uint64, execFlag bool, execData []byte) error
}

// subChanSize is the capacity of the channel that notifies the relayer of new requests.
const subChanSize = 1024

type route struct {
	gateway   common.Address
	receivers map[common.Address]Receiver
}

// Loopback routes requests between the chains attached to it. Accepted requests are persisted in the GatewayDB until
// they are delivered or dropped.
type Loopback struct {
	logger *zap.Logger
	db     db.GatewayDB
	now    func() time.Time

	mu        sync.Mutex
	routes    map[string]*route
	pending   map[uint64]*xcommon.RelayMessage
	delivered map[uint64]*xcommon.RelayMessage

	subChan chan uint64
}

// DeliveryResult is the outcome of executing one request on its destination.
type DeliveryResult struct {
	Nonce   uint64 `json:"nonce"`
	Success bool   `json:"success"`
	AckData []byte `json:"ackData,omitempty"`
	Error   string `json:"error,omitempty"`
	Acked   bool   `json:"acked"`
}

func NewLoopback(logger *zap.Logger, gdb db.GatewayDB) *Loopback {
	return &Loopback{
		logger:    logger.With(zap.String("component", "gwrelayer")),
		db:        gdb,
		now:       time.Now,
		routes:    make(map[string]*route),
		pending:   make(map[uint64]*xcommon.RelayMessage),
		delivered: make(map[uint64]*xcommon.RelayMessage),
		subChan:   make(chan uint64, subChanSize),
	}
}

// Load reloads requests that were accepted but not delivered before a restart.
func (l *Loopback) Load() error {
	msgs, err := l.db.GwGetInflight(l.logger)
	if err != nil {
		return fmt.Errorf("failed to load in-flight requests: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range msgs {
		l.pending[m.Nonce] = m
	}
	pendingRequests.Set(float64(len(l.pending)))
	if len(msgs) != 0 {
		l.logger.Info("gw: reloaded in-flight requests", zap.Int("count", len(msgs)))
	}
	return nil
}

// AddChain attaches a chain to the gateway. Contracts on the chain are called with gatewayAddr as caller, and use the
// returned Endpoint to send.
func (l *Loopback) AddChain(chainID string, gatewayAddr common.Address) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.routes[chainID]; ok {
		r.gateway = gatewayAddr
	} else {
		l.routes[chainID] = &route{gateway: gatewayAddr, receivers: make(map[common.Address]Receiver)}
	}
	return &Endpoint{l: l, chainID: chainID, address: gatewayAddr}
}

// Register makes a contract on chainID reachable for deliveries and acknowledgments.
func (l *Loopback) Register(chainID string, r Receiver) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rt, ok := l.routes[chainID]
	if !ok {
		return fmt.Errorf("chain %s is not attached to the gateway", chainID)
	}
	rt.receivers[r.Address()] = r
	l.logger.Info("gw: registered contract", zap.String("chain", chainID), zap.Stringer("contract", r.Address()))
	return nil
}

// Chains returns the attached chain ids in sorted order.
func (l *Loopback) Chains() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.routes))
	for id := range l.routes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// C returns the channel on which the nonces of newly accepted requests are announced.
func (l *Loopback) C() <-chan uint64 {
	return l.subChan
}

func (l *Loopback) send(ctx context.Context, chainID string, req *xerc1155.OutboundRequest) (uint64, error) {
	if req.SrcChainID != chainID {
		requestsRejected.Inc()
		return 0, fmt.Errorf("request from chain %s sent through the gateway of chain %s", req.SrcChainID, chainID)
	}
	if req.Version != xerc1155.RequestVersion {
		requestsRejected.Inc()
		return 0, fmt.Errorf("unsupported request version %d", req.Version)
	}
	if _, err := codec.ParseRequestMetadata(req.Metadata); err != nil {
		requestsRejected.Inc()
		return 0, fmt.Errorf("invalid request metadata: %w", err)
	}
	destContract, packet, err := codec.DecodeRequestPacket(req.RequestPacket)
	if err != nil {
		requestsRejected.Inc()
		return 0, err
	}

	fee := req.Fee
	if fee == nil {
		fee = new(big.Int)
	}
	msg := &xcommon.RelayMessage{
		ID:           uuid.NewString(),
		SrcChainID:   req.SrcChainID,
		Sender:       req.Sender,
		DestChainID:  req.DestChainID,
		DestContract: destContract,
		Packet:       packet,
		Metadata:     append([]byte(nil), req.Metadata...),
		Fee:          new(big.Int).Set(fee),
		Created:      l.now(),
	}

	nonce, err := l.db.GwEnqueue(msg)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.pending[nonce] = msg
	pendingRequests.Set(float64(len(l.pending)))
	l.mu.Unlock()

	select {
	case l.subChan <- nonce:
	default:
		// The relayer also sweeps the pending set, so a full channel only delays delivery.
		l.logger.Warn("gw: relayer channel full", zap.Uint64("nonce", nonce))
	}

	requestsAccepted.WithLabelValues(msg.SrcChainID, msg.DestChainID).Inc()
	l.logger.Info("gw: accepted request",
		zap.Uint64("nonce", nonce),
		zap.String("id", msg.ID),
		zap.String("srcChain", msg.SrcChainID),
		zap.String("destChain", msg.DestChainID),
		zap.String("destContract", msg.DestContract),
		zap.Stringer("fee", msg.Fee),
	)
	return nonce, nil
}

// Pending returns the requests not yet delivered, in nonce order.
func (l *Loopback) Pending() []*xcommon.RelayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*xcommon.RelayMessage, 0, len(l.pending))
	for _, m := range l.pending {
		cpy := *m
		out = append(out, &cpy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// Deliver executes a pending request on its destination and, if the request metadata asks for it, acknowledges the
// outcome to the source. A request whose destination is not attached stays pending and ErrNoRoute is returned. A
// request the destination rejects is not retried: it is delivered with a failed outcome.
func (l *Loopback) Deliver(ctx context.Context, nonce uint64) (*DeliveryResult, error) {
	msg, dest, gatewayAddr, err := l.claim(nonce)
	if err != nil {
		return nil, err
	}

	res := l.execute(ctx, msg, dest, gatewayAddr)

	l.mu.Lock()
	l.delivered[nonce] = msg
	pendingRequests.Set(float64(len(l.pending)))
	l.mu.Unlock()

	if err := l.db.GwDeleteInflight(msg.MessageIDString()); err != nil {
		l.logger.Error("gw: failed to delete delivered request", zap.Uint64("nonce", nonce), zap.Error(err))
	}

	l.ack(ctx, msg, res)
	return res, nil
}

// Redeliver executes an already delivered request a second time, the way a relayer that missed the first outcome
// would. No acknowledgment is sent.
func (l *Loopback) Redeliver(ctx context.Context, nonce uint64) (*DeliveryResult, error) {
	l.mu.Lock()
	msg, ok := l.delivered[nonce]
	l.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRequest
	}
	dest, gatewayAddr, err := l.resolve(msg)
	if err != nil {
		return nil, err
	}
	l.logger.Warn("gw: redelivering request", zap.Uint64("nonce", nonce))
	return l.execute(ctx, msg, dest, gatewayAddr), nil
}

// Drop discards a pending request without delivering it. The tokens burned on the source stay burned.
func (l *Loopback) Drop(nonce uint64) error {
	l.mu.Lock()
	msg, ok := l.pending[nonce]
	if ok {
		delete(l.pending, nonce)
	}
	pendingRequests.Set(float64(len(l.pending)))
	l.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	requestsDropped.Inc()
	l.logger.Warn("gw: dropped request", zap.Uint64("nonce", nonce), zap.String("destChain", msg.DestChainID))
	return l.db.GwDeleteInflight(msg.MessageIDString())
}

// DeliverAll delivers every pending request in nonce order. Requests without a route are skipped and stay pending.
func (l *Loopback) DeliverAll(ctx context.Context) ([]*DeliveryResult, error) {
	var out []*DeliveryResult
	for _, m := range l.Pending() {
		res, err := l.Deliver(ctx, m.Nonce)
		if errors.Is(err, ErrNoRoute) || errors.Is(err, ErrUnknownRequest) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// FeesCollected returns the fees paid by requests sent from chainID.
func (l *Loopback) FeesCollected(chainID string) (*big.Int, error) {
	return l.db.GwFeesCollected(chainID)
}

// DappFeePayer returns the fee payer registered for dapp on chainID.
func (l *Loopback) DappFeePayer(chainID string, dapp common.Address) (string, error) {
	return l.db.GwDappFeePayer(chainID, dapp)
}

// recordFailure stores the outcome of a failed delivery attempt on a request that stays pending.
func (l *Loopback) recordFailure(nonce uint64, cause error) {
	l.mu.Lock()
	msg, ok := l.pending[nonce]
	var cpy xcommon.RelayMessage
	if ok {
		msg.Attempts++
		msg.LastErr = cause.Error()
		cpy = *msg
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := l.db.GwUpdateInflight(&cpy); err != nil {
		l.logger.Error("gw: failed to update in-flight request", zap.Uint64("nonce", nonce), zap.Error(err))
	}
}

// claim removes a deliverable request from the pending set. Contracts are called without holding the gateway lock:
// a contract holds its own lock while sending through the gateway.
func (l *Loopback) claim(nonce uint64) (*xcommon.RelayMessage, Receiver, common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.pending[nonce]
	if !ok {
		return nil, nil, common.Address{}, ErrUnknownRequest
	}
	dest, gatewayAddr, err := l.resolveLocked(msg)
	if err != nil {
		return nil, nil, common.Address{}, err
	}
	delete(l.pending, nonce)
	return msg, dest, gatewayAddr, nil
}

func (l *Loopback) resolve(msg *xcommon.RelayMessage) (Receiver, common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveLocked(msg)
}

func (l *Loopback) resolveLocked(msg *xcommon.RelayMessage) (Receiver, common.Address, error) {
	rt, ok := l.routes[msg.DestChainID]
	if !ok || !common.IsHexAddress(msg.DestContract) {
		noRouteErrors.Inc()
		return nil, common.Address{}, ErrNoRoute
	}
	dest, ok := rt.receivers[common.HexToAddress(msg.DestContract)]
	if !ok {
		noRouteErrors.Inc()
		return nil, common.Address{}, ErrNoRoute
	}
	return dest, rt.gateway, nil
}

func (l *Loopback) execute(ctx context.Context, msg *xcommon.RelayMessage, dest Receiver, gatewayAddr common.Address) *DeliveryResult {
	res := &DeliveryResult{Nonce: msg.Nonce}
	ack, err := dest.IReceive(ctx, gatewayAddr, msg.Sender.Hex(), msg.Packet, msg.SrcChainID)
	if err != nil {
		res.Error = err.Error()
		deliveries.WithLabelValues(msg.DestChainID, "failure").Inc()
		l.logger.Warn("gw: destination rejected request", zap.Uint64("nonce", msg.Nonce), zap.String("destChain", msg.DestChainID), zap.Error(err))
		return res
	}
	res.Success = true
	res.AckData = ack
	deliveries.WithLabelValues(msg.DestChainID, "success").Inc()
	l.logger.Info("gw: delivered request", zap.Uint64("nonce", msg.Nonce), zap.String("destChain", msg.DestChainID))
	return res
}

func (l *Loopback) ack(ctx context.Context, msg *xcommon.RelayMessage, res *DeliveryResult) {
	md, err := codec.ParseRequestMetadata(codec.RequestMetadata(msg.Metadata))
	if err != nil {
		l.logger.Error("gw: stored request has invalid metadata", zap.Uint64("nonce", msg.Nonce), zap.Error(err))
		return
	}
	if !md.AckType.WantsAck(res.Success) {
		return
	}

	l.mu.Lock()
	var src Receiver
	var gatewayAddr common.Address
	if rt, ok := l.routes[msg.SrcChainID]; ok {
		src = rt.receivers[msg.Sender]
		gatewayAddr = rt.gateway
	}
	l.mu.Unlock()
	if src == nil {
		l.logger.Warn("gw: no route back to source for ack", zap.Uint64("nonce", msg.Nonce), zap.String("srcChain", msg.SrcChainID))
		return
	}

	data := res.AckData
	if !res.Success {
		data = []byte(res.Error)
	}
	if err := src.IAck(ctx, gatewayAddr, msg.Nonce, res.Success, data); err != nil {
		l.logger.Error("gw: source rejected ack", zap.Uint64("nonce", msg.Nonce), zap.Error(err))
		return
	}
	res.Acked = true
	acksSent.WithLabelValues(msg.SrcChainID).Inc()
}

// Endpoint is the gateway as seen by the contracts of one chain.
type Endpoint struct {
	l       *Loopback
	chainID string
	address common.Address
}

// Address is the principal contracts on this chain must accept as their gateway.
func (e *Endpoint) Address() common.Address {
	return e.address
}

func (e *Endpoint) ChainID() string {
	return e.chainID
}

func (e *Endpoint) ISend(ctx context.Context, req *xerc1155.OutboundRequest) (uint64, error) {
	return e.l.send(ctx, e.chainID, req)
}

func (e *Endpoint) SetDappMetadata(ctx context.Context, chainID string, dapp common.Address, feePayer string) error {
	if chainID != e.chainID {
		return fmt.Errorf("dapp on chain %s registered through the gateway of chain %s", chainID, e.chainID)
	}
	if err := e.l.db.GwStoreDappFeePayer(chainID, dapp, feePayer); err != nil {
		return err
	}
	e.l.logger.Info("gw: dapp metadata set", zap.String("chain", chainID), zap.Stringer("dapp", dapp), zap.String("feePayer", feePayer))
	return nil
}

var _ xerc1155.Gateway = (*Endpoint)(nil)
