// Package xerc1155 implements a multi-token contract instance that can move tokens to counterpart instances on
// other chains through a message gateway.
//
// Every state changing call runs under the instance mutex in a single database transaction, so calls on one instance
// are totally ordered and either commit as a whole or leave no trace. Nothing orders calls across instances: the
// outbound leg on the source and the inbound leg on the destination are two independent transactions coordinated
// only by the packet the gateway carries between them.
package xerc1155

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
)

const defaultRegistryCacheSize = 128

// Config holds the construction parameters of an instance. They are persisted on first start and ignored on later
// starts, except ChainID which must match the stored value.
type Config struct {
	ChainID  string
	Address  common.Address
	URI      string
	Owner    common.Address
	Gateway  common.Address
	FeePayer string

	// InitialIDs and InitialAmounts are minted to Owner when the instance is created.
	InitialIDs     []*big.Int
	InitialAmounts []*big.Int
}

type Option func(*Contract)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Contract) {
		c.logger = logger
	}
}

func WithEventSink(sink EventSink) Option {
	return func(c *Contract) {
		c.sink = sink
	}
}

// WithReplayProtection makes IReceive refuse a packet it has already applied for the same origin chain and sender.
// Two legitimate transfers with identical content are indistinguishable under this rule and the second one is
// refused too.
func WithReplayProtection() Option {
	return func(c *Contract) {
		c.replayProtection = true
	}
}

// WithStrictOrigin makes IReceive refuse packets whose request sender is not the registered counterpart of the
// origin chain.
func WithStrictOrigin() Option {
	return func(c *Contract) {
		c.strictOrigin = true
	}
}

// WithSkipEmptyDispatch makes TransferCrossChain return without dispatching when the request moves no tokens.
func WithSkipEmptyDispatch() Option {
	return func(c *Contract) {
		c.skipEmptyDispatch = true
	}
}

func WithRegistryCacheSize(size int) Option {
	return func(c *Contract) {
		c.cacheSize = size
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Contract) {
		c.now = now
	}
}

type Contract struct {
	mu       sync.Mutex
	logger   *zap.Logger
	db       *db.Database
	gw       Gateway
	chainID  string
	self     common.Address
	sink     EventSink
	now      func() time.Time
	registry *lru.Cache

	cacheSize         int
	replayProtection  bool
	strictOrigin      bool
	skipEmptyDispatch bool
}

// New returns the instance stored in database, creating it from cfg if the database is empty. Creation registers the
// fee payer with the gateway.
func New(ctx context.Context, cfg Config, database *db.Database, gw Gateway, opts ...Option) (*Contract, error) {
	if cfg.ChainID == "" {
		return nil, errors.New("chain id must be set")
	}
	if database == nil {
		return nil, errors.New("database must be set")
	}
	if gw == nil {
		return nil, errors.New("gateway must be set")
	}

	c := &Contract{
		logger:    zap.NewNop(),
		db:        database,
		gw:        gw,
		chainID:   cfg.ChainID,
		sink:      nopSink{},
		now:       time.Now,
		cacheSize: defaultRegistryCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("chainId", cfg.ChainID))

	var err error
	c.registry, err = lru.New(c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry cache: %w", err)
	}

	created := false
	var events []*Event
	err = database.Update(func(txn *db.Txn) error {
		initialized, err := txn.IsInitialized()
		if err != nil {
			return err
		}
		if initialized {
			s, err := txn.Settings()
			if err != nil {
				return err
			}
			if s.ChainID != cfg.ChainID {
				return fmt.Errorf("database belongs to chain %q, not %q", s.ChainID, cfg.ChainID)
			}
			c.self = s.Self
			return nil
		}

		if cfg.Address == (common.Address{}) {
			return errors.New("contract address must be set")
		}
		if cfg.Owner == (common.Address{}) {
			return errors.New("owner must be set")
		}
		initial := codec.TransferRequest{TokenIDs: cfg.InitialIDs, Amounts: cfg.InitialAmounts}
		if err := initial.Validate(); err != nil {
			return fmt.Errorf("invalid initial mint: %w", err)
		}
		if err := mintBatch(txn, cfg.Owner, cfg.InitialIDs, cfg.InitialAmounts); err != nil {
			return fmt.Errorf("failed to mint initial supply: %w", err)
		}
		if len(cfg.InitialIDs) > 0 {
			events = append(events, &Event{
				Kind:     EventMinted,
				Account:  cfg.Owner,
				TokenIDs: copyBigs(cfg.InitialIDs),
				Amounts:  copyBigs(cfg.InitialAmounts),
			})
		}

		if err := gw.SetDappMetadata(ctx, cfg.ChainID, cfg.Address, cfg.FeePayer); err != nil {
			return fmt.Errorf("failed to register fee payer with gateway: %w", err)
		}
		created = true
		c.self = cfg.Address
		return txn.StoreSettings(&db.Settings{
			ChainID:  cfg.ChainID,
			Self:     cfg.Address,
			Owner:    cfg.Owner,
			Gateway:  cfg.Gateway,
			FeePayer: cfg.FeePayer,
			URI:      cfg.URI,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize contract on chain %s: %w", cfg.ChainID, err)
	}

	c.logger.Info("xerc: contract ready",
		zap.Bool("created", created),
		zap.Stringer("address", c.self),
		zap.Bool("replayProtection", c.replayProtection),
		zap.Bool("strictOrigin", c.strictOrigin),
		zap.Bool("skipEmptyDispatch", c.skipEmptyDispatch),
	)
	for _, ev := range events {
		ev.ChainID = c.chainID
		ev.Time = c.now()
		c.sink.Publish(ev)
	}
	return c, nil
}

func (c *Contract) ChainID() string {
	return c.chainID
}

func (c *Contract) Address() common.Address {
	return c.self
}

// call runs fn as one atomic contract call. Events returned by fn are published only if the call commits.
func (c *Contract) call(op string, fn func(txn *db.Txn, s *db.Settings) ([]*Event, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []*Event
	err := c.db.Update(func(txn *db.Txn) error {
		s, err := txn.Settings()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		events, err = fn(txn, s)
		return err
	})
	if err != nil {
		kind := string(xcommon.KindOf(err))
		if kind == "" {
			kind = "Internal"
		}
		rejectedCalls.WithLabelValues(c.chainID, op, kind).Inc()
		c.logger.Debug("xerc: call rolled back", zap.String("op", op), zap.String("kind", kind), zap.Error(err))
		return err
	}

	for _, ev := range events {
		if ev.Kind == EventRegistryUpdated {
			c.registry.Add(ev.DestChainID, ev.Value)
		}
		ev.ChainID = c.chainID
		ev.Time = c.now()
		c.sink.Publish(ev)
	}
	return nil
}

func onlyOwner(s *db.Settings, caller common.Address) error {
	if caller != s.Owner {
		return xcommon.ErrOnlyOwner
	}
	return nil
}

func onlyGateway(s *db.Settings, caller common.Address) error {
	if caller != s.Gateway {
		return xcommon.ErrOnlyGateway
	}
	return nil
}

// TransferOwnership hands the owner role to newOwner.
func (c *Contract) TransferOwnership(ctx context.Context, caller common.Address, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return xcommon.NewError(xcommon.KindInvalidRequest, "new owner is the zero address")
	}
	return c.call("transferOwnership", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyOwner(s, caller); err != nil {
			return nil, err
		}
		prev := s.Owner
		s.Owner = newOwner
		if err := txn.StoreSettings(s); err != nil {
			return nil, err
		}
		c.logger.Info("xerc: ownership transferred", zap.Stringer("from", prev), zap.Stringer("to", newOwner))
		return []*Event{{Kind: EventOwnershipChanged, Account: newOwner}}, nil
	})
}

// SetGateway replaces the principal allowed to call IReceive and IAck. It does not change which Gateway this instance
// dispatches through.
func (c *Contract) SetGateway(ctx context.Context, caller common.Address, gateway common.Address) error {
	return c.call("setGateway", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyOwner(s, caller); err != nil {
			return nil, err
		}
		s.Gateway = gateway
		if err := txn.StoreSettings(s); err != nil {
			return nil, err
		}
		c.logger.Info("xerc: gateway updated", zap.Stringer("gateway", gateway))
		return []*Event{{Kind: EventGatewayUpdated, Account: gateway}}, nil
	})
}

// SetDappMetadata registers feePayer with the gateway as the payer for requests sent by this instance.
func (c *Contract) SetDappMetadata(ctx context.Context, caller common.Address, feePayer string) error {
	return c.call("setDappMetadata", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyOwner(s, caller); err != nil {
			return nil, err
		}
		if err := c.gw.SetDappMetadata(ctx, c.chainID, c.self, feePayer); err != nil {
			return nil, xcommon.WrapError(xcommon.KindGateway, xcommon.ReasonGatewayRejected, err)
		}
		s.FeePayer = feePayer
		if err := txn.StoreSettings(s); err != nil {
			return nil, err
		}
		return []*Event{{Kind: EventDappMetadataSet, Value: feePayer}}, nil
	})
}

// Mint creates tokens for to. Owner only.
func (c *Contract) Mint(ctx context.Context, caller common.Address, to common.Address, ids []*big.Int, amounts []*big.Int, data []byte) error {
	req := codec.TransferRequest{TokenIDs: ids, Amounts: amounts}
	if err := req.Validate(); err != nil {
		return err
	}
	return c.call("mint", func(txn *db.Txn, s *db.Settings) ([]*Event, error) {
		if err := onlyOwner(s, caller); err != nil {
			return nil, err
		}
		if to == (common.Address{}) {
			return nil, xcommon.NewError(xcommon.KindInvalidRequest, xcommon.ReasonMintToZeroAddress)
		}
		if err := mintBatch(txn, to, ids, amounts); err != nil {
			return nil, err
		}
		return []*Event{{Kind: EventMinted, Account: to, TokenIDs: copyBigs(ids), Amounts: copyBigs(amounts)}}, nil
	})
}

func (c *Contract) Settings() (*db.Settings, error) {
	var out *db.Settings
	err := c.db.View(func(txn *db.Txn) error {
		var err error
		out, err = txn.Settings()
		return err
	})
	return out, err
}

func (c *Contract) Owner() (common.Address, error) {
	s, err := c.Settings()
	if err != nil {
		return common.Address{}, err
	}
	return s.Owner, nil
}

// GatewayContract returns the principal currently allowed to call IReceive.
func (c *Contract) GatewayContract() (common.Address, error) {
	s, err := c.Settings()
	if err != nil {
		return common.Address{}, err
	}
	return s.Gateway, nil
}

func (c *Contract) FeePayer() (string, error) {
	s, err := c.Settings()
	if err != nil {
		return "", err
	}
	return s.FeePayer, nil
}

// URI returns the metadata URI template. The same template serves every token id.
func (c *Contract) URI(id *big.Int) (string, error) {
	s, err := c.Settings()
	if err != nil {
		return "", err
	}
	return s.URI, nil
}

func (c *Contract) BalanceOf(owner common.Address, id *big.Int) (*big.Int, error) {
	uid, err := toUint256(id)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = c.db.View(func(txn *db.Txn) error {
		bal, err := txn.BalanceOf(owner, uid)
		if err != nil {
			return err
		}
		out = bal.ToBig()
		return nil
	})
	return out, err
}

func (c *Contract) BalanceOfBatch(owners []common.Address, ids []*big.Int) ([]*big.Int, error) {
	if len(owners) != len(ids) {
		return nil, xcommon.NewError(xcommon.KindInvalidRequest, "ERC1155: accounts and ids length mismatch")
	}
	out := make([]*big.Int, len(ids))
	err := c.db.View(func(txn *db.Txn) error {
		for i := range ids {
			uid, err := toUint256(ids[i])
			if err != nil {
				return err
			}
			bal, err := txn.BalanceOf(owners[i], uid)
			if err != nil {
				return err
			}
			out[i] = bal.ToBig()
		}
		return nil
	})
	return out, err
}

func (c *Contract) TotalSupply(id *big.Int) (*big.Int, error) {
	uid, err := toUint256(id)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = c.db.View(func(txn *db.Txn) error {
		s, err := txn.TotalSupply(uid)
		if err != nil {
			return err
		}
		out = s.ToBig()
		return nil
	})
	return out, err
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, xcommon.NewError(xcommon.KindInvalidRequest, fmt.Sprintf("invalid token quantity %v", v))
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, xcommon.NewError(xcommon.KindInvalidRequest, "value exceeds 256 bits")
	}
	return u, nil
}

func mintBatch(txn *db.Txn, to common.Address, ids []*big.Int, amounts []*big.Int) error {
	for i := range ids {
		id, err := toUint256(ids[i])
		if err != nil {
			return err
		}
		amount, err := toUint256(amounts[i])
		if err != nil {
			return err
		}
		if err := txn.Mint(to, id, amount); err != nil {
			if errors.Is(err, db.ErrSupplyOverflow) {
				return xcommon.WrapError(xcommon.KindSupplyOverflow, xcommon.ReasonMintOverflow, err)
			}
			return err
		}
	}
	return nil
}

func burnBatch(txn *db.Txn, from common.Address, ids []*big.Int, amounts []*big.Int) error {
	for i := range ids {
		id, err := toUint256(ids[i])
		if err != nil {
			return err
		}
		amount, err := toUint256(amounts[i])
		if err != nil {
			return err
		}
		if err := txn.Burn(from, id, amount); err != nil {
			if errors.Is(err, db.ErrInsufficientBalance) {
				return xcommon.WrapError(xcommon.KindInsufficientBalance, xcommon.ReasonBurnExceedsBalance, err)
			}
			return err
		}
	}
	return nil
}

// copyBigs deep copies v for events, which outlive the call and are read on other goroutines.
func copyBigs(v []*big.Int) []*big.Int {
	out := make([]*big.Int, len(v))
	for i, x := range v {
		if x != nil {
			out[i] = new(big.Int).Set(x)
		}
	}
	return out
}
