// Package node assembles a devnet: one contract instance per configured chain, the loopback gateway connecting them,
// the relayer, the JSON API and the status server.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xerc1155/xchain/pkg/api"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
	"github.com/xerc1155/xchain/pkg/gwrelayer"
	"github.com/xerc1155/xchain/pkg/readiness"
	"github.com/xerc1155/xchain/pkg/xerc1155"
)

const shutdownTimeout = 5 * time.Second

type Node struct {
	logger *zap.Logger
	cfg    *Config
	env    xcommon.Environment

	ready     *readiness.Registry
	dbs       []*db.Database
	gw        *gwrelayer.Loopback
	relayer   *gwrelayer.Relayer
	hub       *api.EventHub
	contracts map[string]*xerc1155.Contract

	mu      sync.Mutex
	apiAddr net.Addr
}

// New opens the databases and creates (or reloads) the contract instances. The node does not serve anything until
// Run is called. Close must be called once the node is no longer needed.
func New(ctx context.Context, logger *zap.Logger, cfg *Config) (n *Node, err error) {
	env, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	n = &Node{
		logger:    logger,
		cfg:       cfg,
		env:       env,
		ready:     readiness.NewRegistry(),
		hub:       api.NewEventHub(logger),
		contracts: make(map[string]*xerc1155.Contract, len(cfg.Chains)),
	}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	for _, c := range []readiness.Component{xcommon.ReadinessDatabase, xcommon.ReadinessGateway, xcommon.ReadinessAPI} {
		if err := n.ready.Register(c); err != nil {
			return nil, err
		}
	}
	if cfg.Relayer.Enabled {
		if err := n.ready.Register(xcommon.ReadinessRelayer); err != nil {
			return nil, err
		}
	}

	gwDB, err := n.openDB("gateway")
	if err != nil {
		return nil, err
	}
	n.gw = gwrelayer.NewLoopback(logger, gwDB)
	if err := n.gw.Load(); err != nil {
		return nil, err
	}

	for i := range cfg.Chains {
		ch := &cfg.Chains[i]
		if err := n.addChain(ctx, ch); err != nil {
			return nil, err
		}
	}
	n.ready.SetReady(xcommon.ReadinessDatabase)

	if cfg.AutoRegister {
		if err := n.autoRegister(ctx); err != nil {
			return nil, err
		}
	}
	n.ready.SetReady(xcommon.ReadinessGateway)

	if cfg.Relayer.Enabled {
		opts := []gwrelayer.RelayerOption{
			gwrelayer.WithDeliveryDelay(cfg.Relayer.DeliveryDelay),
			gwrelayer.WithSweepInterval(cfg.Relayer.SweepInterval),
			gwrelayer.WithMaxRetries(cfg.Relayer.MaxRetries),
		}
		if cfg.Relayer.RateLimit > 0 {
			opts = append(opts, gwrelayer.WithRateLimit(cfg.Relayer.RateLimit, cfg.Relayer.RateBurst))
		}
		n.relayer = gwrelayer.NewRelayer(logger, n.gw, opts...)
	}

	logger.Info("xerc: node initialized",
		zap.String("env", string(env)),
		zap.Strings("chains", n.ChainIDs()),
		zap.Bool("inMemory", cfg.DataDir == ""),
		zap.Bool("relayer", cfg.Relayer.Enabled),
	)
	return n, nil
}

// openDB opens a database under the data directory, or an in-memory one when no data directory is configured.
func (n *Node) openDB(name string) (*db.Database, error) {
	var (
		d   *db.Database
		err error
	)
	if n.cfg.DataDir == "" {
		d, err = db.OpenInMemory()
	} else {
		d, err = db.Open(filepath.Join(n.cfg.DataDir, name))
	}
	if err != nil {
		return nil, err
	}
	n.dbs = append(n.dbs, d)
	return d, nil
}

func (n *Node) addChain(ctx context.Context, ch *ChainConfig) error {
	ids, amounts, err := ch.InitialSupply()
	if err != nil {
		return err
	}
	d, err := n.openDB(ch.DBPath())
	if err != nil {
		return err
	}

	opts := []xerc1155.Option{
		xerc1155.WithLogger(n.logger),
		xerc1155.WithEventSink(n.hub),
	}
	if ch.ReplayProtection {
		opts = append(opts, xerc1155.WithReplayProtection())
	}
	if ch.StrictOrigin {
		opts = append(opts, xerc1155.WithStrictOrigin())
	}
	if ch.SkipEmptyDispatch {
		opts = append(opts, xerc1155.WithSkipEmptyDispatch())
	}
	if ch.RegistryCacheSize > 0 {
		opts = append(opts, xerc1155.WithRegistryCacheSize(ch.RegistryCacheSize))
	}

	ep := n.gw.AddChain(ch.ChainID, ch.GatewayAddress())
	c, err := xerc1155.New(ctx, xerc1155.Config{
		ChainID:  ch.ChainID,
		Address:  common.HexToAddress(ch.Address),
		URI:      ch.URI,
		Owner:    common.HexToAddress(ch.Owner),
		Gateway:  ep.Address(),
		FeePayer: ch.FeePayer,

		InitialIDs:     ids,
		InitialAmounts: amounts,
	}, d, ep, opts...)
	if err != nil {
		return err
	}
	if err := n.gw.Register(ch.ChainID, c); err != nil {
		return err
	}
	n.contracts[ch.ChainID] = c
	return nil
}

// autoRegister fills in missing registry entries between the configured chains.
func (n *Node) autoRegister(ctx context.Context) error {
	for _, src := range n.ChainIDs() {
		c := n.contracts[src]
		owner, err := c.Owner()
		if err != nil {
			return err
		}
		for _, dest := range n.ChainIDs() {
			if dest == src {
				continue
			}
			current, err := c.ContractOnChain(dest)
			if err != nil {
				return err
			}
			if current != "" {
				continue
			}
			addr := n.contracts[dest].Address().Hex()
			if err := c.SetContractOnChain(ctx, owner, dest, addr); err != nil {
				return fmt.Errorf("failed to register %s on chain %s: %w", dest, src, err)
			}
			n.logger.Info("xerc: registered counterpart", zap.String("chain", src), zap.String("destChain", dest), zap.String("contract", addr))
		}
	}
	return nil
}

// ChainIDs returns the configured chains in sorted order.
func (n *Node) ChainIDs() []string {
	out := make([]string, 0, len(n.contracts))
	for id := range n.contracts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (n *Node) Contract(chainID string) (*xerc1155.Contract, bool) {
	c, ok := n.contracts[chainID]
	return c, ok
}

func (n *Node) Gateway() *gwrelayer.Loopback {
	return n.gw
}

func (n *Node) Ready() bool {
	return n.ready.Ready()
}

// APIAddr returns the address the API listens on, or nil before Run bound it.
func (n *Node) APIAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.apiAddr
}

// Run serves the node until ctx is canceled or one of its services fails. Listeners are bound before any service
// starts; onReady, if not nil, is called once everything is up.
func (n *Node) Run(ctx context.Context, onReady func()) error {
	apiLn, err := n.apiListener()
	if err != nil {
		return err
	}
	var statusLn net.Listener
	if n.cfg.StatusAddr != "" {
		statusLn, err = net.Listen("tcp", n.cfg.StatusAddr)
		if err != nil {
			if apiLn != nil {
				apiLn.Close()
			}
			return fmt.Errorf("failed to listen on status address: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	run := func(name string, r xcommon.Runnable) {
		g.Go(func() error {
			return xcommon.WrapWithScissors(r, name)(ctx)
		})
	}

	run("eventhub", n.hub.Run)

	if n.relayer != nil {
		run("relayer", n.relayer.Run)
		n.ready.SetReady(xcommon.ReadinessRelayer)
	}

	if apiLn != nil {
		n.mu.Lock()
		n.apiAddr = apiLn.Addr()
		n.mu.Unlock()
		srv := api.NewHTTPServer(apiLn.Addr().String(), n.contracts, n.gw, n.hub, n.logger, n.env)
		run("api", serveHTTP(n.logger, "api", srv, apiLn))
		n.logger.Info("xerc: api listening", zap.Stringer("addr", apiLn.Addr()))
	}
	n.ready.SetReady(xcommon.ReadinessAPI)

	if statusLn != nil {
		run("status", serveHTTP(n.logger, "status", newStatusServer(n.cfg.StatusAddr, n.env, n.ready), statusLn))
		n.logger.Info("xerc: status server listening", zap.Stringer("addr", statusLn.Addr()))
	}

	if onReady != nil {
		onReady()
	}
	n.logger.Info("xerc: node started")

	return g.Wait()
}

func (n *Node) apiListener() (net.Listener, error) {
	if n.cfg.SystemdSocket {
		listeners, err := getSDListeners()
		if err != nil {
			return nil, err
		}
		return listeners[0], nil
	}
	if n.cfg.APIAddr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", n.cfg.APIAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on api address: %w", err)
	}
	return ln, nil
}

func serveHTTP(logger *zap.Logger, name string, srv *http.Server, ln net.Listener) xcommon.Runnable {
	return func(ctx context.Context) error {
		errC := make(chan error, 1)
		go func() {
			errC <- srv.Serve(ln)
		}()

		select {
		case err := <-errC:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("%s server failed: %w", name, err)
		case <-ctx.Done():
		}

		//nolint:contextcheck // ctx is already canceled here.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error while shutting down server", zap.String("server", name), zap.Error(err))
		}
		return nil
	}
}

// Close closes every database. It must not be called while Run is active.
func (n *Node) Close() {
	for _, d := range n.dbs {
		if err := d.Close(); err != nil {
			n.logger.Error("failed to close database", zap.Error(err))
		}
	}
	n.dbs = nil
}
