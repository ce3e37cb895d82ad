package api

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/xerc1155/xchain/pkg/codec"
)

// metadataParamsFields is the JSON form of codec.RequestMetadataParams. Integers that may exceed 53 bits travel as
// decimal strings.
type metadataParamsFields struct {
	DestGasLimit uint64        `json:"destGasLimit"`
	DestGasPrice uint64        `json:"destGasPrice"`
	AckGasLimit  uint64        `json:"ackGasLimit"`
	AckGasPrice  uint64        `json:"ackGasPrice"`
	RelayerFee   string        `json:"relayerFee"`
	AckType      codec.AckType `json:"ackType"`
	IsReadCall   bool          `json:"isReadCall"`
	AsmAddress   string        `json:"asmAddress"`
}

func (f *metadataParamsFields) build() (codec.RequestMetadata, error) {
	fee, err := parseBig(f.RelayerFee)
	if err != nil {
		return nil, fmt.Errorf("relayerFee: %w", err)
	}
	return codec.BuildRequestMetadata(f.DestGasLimit, f.DestGasPrice, f.AckGasLimit, f.AckGasPrice, fee, f.AckType, f.IsReadCall, f.AsmAddress)
}

type metadataResponse struct {
	Metadata hexutil.Bytes         `json:"metadata"`
	Params   *metadataParamsFields `json:"params"`
}

func (s *httpServer) handleBuildMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataParamsFields
	if !s.decode(w, r, &req) {
		return
	}
	m, err := req.build()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &metadataResponse{Metadata: hexutil.Bytes(m), Params: &req})
}

func (s *httpServer) handleParseMetadata(w http.ResponseWriter, r *http.Request) {
	raw, err := hexutil.Decode(mux.Vars(r)["metadata"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("metadata: %w", err))
		return
	}
	p, err := codec.ParseRequestMetadata(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &metadataResponse{
		Metadata: raw,
		Params: &metadataParamsFields{
			DestGasLimit: p.DestGasLimit,
			DestGasPrice: p.DestGasPrice,
			AckGasLimit:  p.AckGasLimit,
			AckGasPrice:  p.AckGasPrice,
			RelayerFee:   p.RelayerFee.String(),
			AckType:      p.AckType,
			IsReadCall:   p.IsReadCall,
			AsmAddress:   p.AsmAddress,
		},
	})
}
