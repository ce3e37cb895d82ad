package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func nonceVar(r *http.Request) (uint64, error) {
	n, err := strconv.ParseUint(mux.Vars(r)["nonce"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid nonce: %w", err)
	}
	return n, nil
}

func (s *httpServer) handlePending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gw.Pending())
}

func (s *httpServer) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	nonce, err := nonceVar(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.gw.Deliver(r.Context(), nonce)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleRedeliver executes an already delivered request a second time. It exists to exercise duplicate delivery on
// devnets.
func (s *httpServer) handleRedeliver(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	nonce, err := nonceVar(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Warn("redelivering request on operator request", zap.Uint64("nonce", nonce))
	res, err := s.gw.Redeliver(r.Context(), nonce)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *httpServer) handleDrop(w http.ResponseWriter, r *http.Request) {
	if !s.writable(w) {
		return
	}
	nonce, err := nonceVar(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gw.Drop(nonce); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feesResponse struct {
	ChainID string `json:"chainId"`
	Fees    string `json:"fees"`
}

func (s *httpServer) handleFees(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	fees, err := s.gw.FeesCollected(chain)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, &feesResponse{ChainID: chain, Fees: fees.String()})
}
