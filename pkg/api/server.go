// Package api exposes the contract instances and the loopback gateway of a node over a JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/codec"
	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/db"
	"github.com/xerc1155/xchain/pkg/gwrelayer"
	"github.com/xerc1155/xchain/pkg/xerc1155"
)

const MAX_BODY_SIZE = 1 * 1024 * 1024

const requestIDHeader = "X-Request-Id"

type httpServer struct {
	logger    *zap.Logger
	env       xcommon.Environment
	contracts map[string]*xerc1155.Contract
	gw        *gwrelayer.Loopback
	hub       *EventHub
}

// NewHTTPServer returns a server for the given contract instances, keyed by chain identifier. gw and hub may be nil,
// in which case the gateway and event routes are not registered.
func NewHTTPServer(
	addr string,
	contracts map[string]*xerc1155.Contract,
	gw *gwrelayer.Loopback,
	hub *EventHub,
	logger *zap.Logger,
	env xcommon.Environment,
) *http.Server {
	s := &httpServer{
		logger:    logger.With(zap.String("component", "api")),
		env:       env,
		contracts: contracts,
		gw:        gw,
		hub:       hub,
	}

	r := mux.NewRouter()
	r.Use(s.requestID, cors)
	r.HandleFunc("/v1/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/metadata", s.handleBuildMetadata).Methods("POST", "OPTIONS")
	r.HandleFunc("/v1/metadata/{metadata}", s.handleParseMetadata).Methods("GET")
	r.HandleFunc("/v1/chains", s.handleChains).Methods("GET")

	c := r.PathPrefix("/v1/chains/{chain}").Subrouter()
	c.HandleFunc("", s.handleSettings).Methods("GET")
	c.HandleFunc("/balances/{owner}/{id}", s.handleBalance).Methods("GET")
	c.HandleFunc("/supply/{id}", s.handleSupply).Methods("GET")
	c.HandleFunc("/registry", s.handleRegistry).Methods("GET")
	c.HandleFunc("/registry/{dest}", s.handleSetRegistry).Methods("PUT", "OPTIONS")
	c.HandleFunc("/mint", s.handleMint).Methods("POST", "OPTIONS")
	c.HandleFunc("/transfers", s.handleTransfers).Methods("GET")
	c.HandleFunc("/transfers", s.handleTransferCrossChain).Methods("POST", "OPTIONS")
	c.HandleFunc("/transfers/{id}", s.handleTransfer).Methods("GET")
	c.HandleFunc("/gateway", s.handleSetGateway).Methods("PUT", "OPTIONS")
	c.HandleFunc("/owner", s.handleTransferOwnership).Methods("PUT", "OPTIONS")
	c.HandleFunc("/dapp-metadata", s.handleSetDappMetadata).Methods("PUT", "OPTIONS")

	if gw != nil {
		g := r.PathPrefix("/v1/gateway").Subrouter()
		g.HandleFunc("/pending", s.handlePending).Methods("GET")
		g.HandleFunc("/pending/{nonce}", s.handleDrop).Methods("DELETE", "OPTIONS")
		g.HandleFunc("/deliver/{nonce}", s.handleDeliver).Methods("POST", "OPTIONS")
		g.HandleFunc("/redeliver/{nonce}", s.handleRedeliver).Methods("POST", "OPTIONS")
		g.HandleFunc("/fees/{chain}", s.handleFees).Methods("GET")
	}
	if hub != nil {
		r.HandleFunc("/v1/events", s.handleRecentEvents).Methods("GET")
		r.HandleFunc("/v1/events/ws", hub.ServeWS).Methods("GET")
	}

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *httpServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error     string       `json:"error"`
	Kind      xcommon.Kind `json:"kind,omitempty"`
	RequestID string       `json:"requestId"`
}

// statusFor maps contract error kinds to HTTP statuses.
func statusFor(err error) int {
	switch xcommon.KindOf(err) {
	case xcommon.KindAuthorization:
		return http.StatusForbidden
	case xcommon.KindDecode, xcommon.KindInvalidRequest:
		return http.StatusBadRequest
	case xcommon.KindDestinationNotConfigured, xcommon.KindInsufficientBalance, xcommon.KindSupplyOverflow, xcommon.KindDuplicateDelivery:
		return http.StatusConflict
	case xcommon.KindGateway:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, gwrelayer.ErrUnknownRequest), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gwrelayer.ErrNoRoute):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("requestId", w.Header().Get(requestIDHeader)), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("requestId", w.Header().Get(requestIDHeader)), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&errorResponse{
		Error:     err.Error(),
		Kind:      xcommon.KindOf(err),
		RequestID: w.Header().Get(requestIDHeader),
	})
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *httpServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_SIZE)).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode body: %w", err))
		return false
	}
	return true
}

// writable rejects state-changing calls when the environment does not allow acting on behalf of arbitrary callers.
func (s *httpServer) writable(w http.ResponseWriter) bool {
	if !s.env.AllowsImpersonation() {
		s.writeError(w, http.StatusForbidden, errors.New("write endpoints are disabled in this environment"))
		return false
	}
	return true
}

func (s *httpServer) contract(w http.ResponseWriter, r *http.Request) *xerc1155.Contract {
	chain := mux.Vars(r)["chain"]
	c, ok := s.contracts[chain]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown chain %q", chain))
		return nil
	}
	return c
}

// parseBig accepts decimal or 0x-prefixed hex.
func parseBig(v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(v, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func parseBigs(vs []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		n, err := parseBig(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseAddress(v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address %q", v)
	}
	return common.HexToAddress(v), nil
}

func bigStrings(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok")
}

type chainInfo struct {
	ChainID string         `json:"chainId"`
	Address common.Address `json:"address"`
}

func (s *httpServer) handleChains(w http.ResponseWriter, r *http.Request) {
	out := make([]chainInfo, 0, len(s.contracts))
	for id, c := range s.contracts {
		out = append(out, chainInfo{ChainID: id, Address: c.Address()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	s.writeJSON(w, http.StatusOK, out)
}

func (s *httpServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	settings, err := c.Settings()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

type balanceResponse struct {
	Owner   common.Address `json:"owner"`
	ID      string         `json:"id"`
	Balance string         `json:"balance"`
}

func (s *httpServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	vars := mux.Vars(r)
	owner, err := parseAddress(vars["owner"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := parseBig(vars["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	bal, err := c.BalanceOf(owner, id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, &balanceResponse{Owner: owner, ID: id.String(), Balance: bal.String()})
}

type supplyResponse struct {
	ID     string `json:"id"`
	Supply string `json:"supply"`
	URI    string `json:"uri"`
}

func (s *httpServer) handleSupply(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	id, err := parseBig(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	supply, err := c.TotalSupply(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	uri, err := c.URI(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, &supplyResponse{ID: id.String(), Supply: supply.String(), URI: uri})
}

func (s *httpServer) handleRegistry(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	reg, err := c.ContractsOnChains()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, reg)
}

type setRegistryRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *httpServer) handleSetRegistry(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	var req setRegistryRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.SetContractOnChain(r.Context(), caller, mux.Vars(r)["dest"], req.Address); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mintRequest struct {
	Caller  string        `json:"caller"`
	To      string        `json:"to"`
	IDs     []string      `json:"ids"`
	Amounts []string      `json:"amounts"`
	Data    hexutil.Bytes `json:"data"`
}

func (s *httpServer) handleMint(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := parseBigs(req.IDs)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amounts, err := parseBigs(req.Amounts)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.Mint(r.Context(), caller, to, ids, amounts, req.Data); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transferRequest carries either raw metadata or the parameters to build it from.
type transferRequest struct {
	Caller      string                `json:"caller"`
	DestChainID string                `json:"destChainId"`
	IDs         []string              `json:"ids"`
	Amounts     []string              `json:"amounts"`
	Data        hexutil.Bytes         `json:"data"`
	Recipient   string                `json:"recipient"`
	Metadata    hexutil.Bytes         `json:"metadata,omitempty"`
	Params      *metadataParamsFields `json:"metadataParams,omitempty"`
	Fee         string                `json:"fee"`
}

type transferResponse struct {
	RequestID uint64 `json:"requestId"`
}

func (s *httpServer) handleTransferCrossChain(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := parseBigs(req.IDs)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amounts, err := parseBigs(req.Amounts)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	fee := new(big.Int)
	if req.Fee != "" {
		if fee, err = parseBig(req.Fee); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	metadata := codec.RequestMetadata(req.Metadata)
	if req.Params != nil {
		if metadata, err = req.Params.build(); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	id, err := c.TransferCrossChain(r.Context(), caller, req.DestChainID, codec.TransferRequest{
		TokenIDs:  ids,
		Amounts:   amounts,
		Data:      req.Data,
		Recipient: codec.EncodeAddress(recipient),
	}, metadata, fee)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, &transferResponse{RequestID: id})
}

func (s *httpServer) handleTransfers(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	records, err := c.Transfers()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if records == nil {
		records = []*db.TransferRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *httpServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	c := s.contract(w, r)
	if c == nil {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request id: %w", err))
		return
	}
	record, err := c.Transfer(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

type addressUpdateRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *httpServer) decodeAddressUpdate(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, bool) {
	var req addressUpdateRequest
	if !s.decode(w, r, &req) {
		return common.Address{}, common.Address{}, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return common.Address{}, common.Address{}, false
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return common.Address{}, common.Address{}, false
	}
	return caller, addr, true
}

func (s *httpServer) handleSetGateway(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	caller, addr, ok := s.decodeAddressUpdate(w, r)
	if !ok {
		return
	}
	if err := c.SetGateway(r.Context(), caller, addr); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	caller, addr, ok := s.decodeAddressUpdate(w, r)
	if !ok {
		return
	}
	if err := c.TransferOwnership(r.Context(), caller, addr); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dappMetadataRequest struct {
	Caller   string `json:"caller"`
	FeePayer string `json:"feePayer"`
}

func (s *httpServer) handleSetDappMetadata(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	c := s.contract(w, r)
	if c == nil {
		return
	}
	var req dappMetadataRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.SetDappMetadata(r.Context(), caller, req.FeePayer); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Recent())
}
