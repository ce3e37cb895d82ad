package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// RequestMetadata is the opaque execution descriptor handed to the gateway alongside a request packet.
// The contract never inspects it.
type RequestMetadata []byte

func (m RequestMetadata) String() string {
	return "0x" + hex.EncodeToString(m)
}

// AckType selects when the gateway reports the destination outcome back to the source.
type AckType uint8

const (
	AckNone      AckType = 0
	AckOnSuccess AckType = 1
	AckOnError   AckType = 2
	AckAlways    AckType = 3
)

// WantsAck reports whether an acknowledgment must be delivered for the given execution outcome.
func (a AckType) WantsAck(success bool) bool {
	if success {
		return a == AckOnSuccess || a == AckAlways
	}
	return a == AckOnError || a == AckAlways
}

// metadataFixedLen is the packed size of everything but the asm address:
// 4 * uint64 gas fields, uint128 relayer fee, uint8 ack type, bool read-call flag.
const metadataFixedLen = 4*8 + 16 + 1 + 1

// RequestMetadataParams is the decoded form of RequestMetadata.
type RequestMetadataParams struct {
	DestGasLimit uint64
	DestGasPrice uint64
	AckGasLimit  uint64
	AckGasPrice  uint64
	RelayerFee   *big.Int
	AckType      AckType
	IsReadCall   bool
	AsmAddress   string
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func mustWrite(w io.Writer, data interface{}) {
	if err := binary.Write(w, binary.BigEndian, data); err != nil {
		panic(fmt.Errorf("failed to write binary data: %v", data).Error())
	}
}

// BuildRequestMetadata packs the gateway execution parameters:
//
//	destGasLimit(8) destGasPrice(8) ackGasLimit(8) ackGasPrice(8) relayerFee(16) ackType(1) isReadCall(1) asmAddress(n)
//
// The gateway is responsible for rejecting values that make no sense; only the relayer fee range is checked here.
func BuildRequestMetadata(
	destGasLimit uint64,
	destGasPrice uint64,
	ackGasLimit uint64,
	ackGasPrice uint64,
	relayerFee *big.Int,
	ackType AckType,
	isReadCall bool,
	asmAddress string,
) (RequestMetadata, error) {
	if relayerFee == nil {
		return nil, fmt.Errorf("relayer fee must be set")
	}
	if relayerFee.Sign() < 0 || relayerFee.Cmp(maxUint128) > 0 {
		return nil, fmt.Errorf("relayer fee %s out of uint128 range", relayerFee)
	}

	buf := new(bytes.Buffer)
	buf.Grow(metadataFixedLen + len(asmAddress))
	mustWrite(buf, destGasLimit)
	mustWrite(buf, destGasPrice)
	mustWrite(buf, ackGasLimit)
	mustWrite(buf, ackGasPrice)
	buf.Write(relayerFee.FillBytes(make([]byte, 16)))
	mustWrite(buf, uint8(ackType))
	mustWrite(buf, isReadCall)
	buf.WriteString(asmAddress)

	return buf.Bytes(), nil
}

// Build is BuildRequestMetadata over a params struct.
func (p RequestMetadataParams) Build() (RequestMetadata, error) {
	return BuildRequestMetadata(p.DestGasLimit, p.DestGasPrice, p.AckGasLimit, p.AckGasPrice, p.RelayerFee, p.AckType, p.IsReadCall, p.AsmAddress)
}

// ParseRequestMetadata decodes metadata produced by BuildRequestMetadata.
func ParseRequestMetadata(m RequestMetadata) (*RequestMetadataParams, error) {
	if len(m) < metadataFixedLen {
		return nil, fmt.Errorf("request metadata too short: %d < %d", len(m), metadataFixedLen)
	}

	p := &RequestMetadataParams{}
	p.DestGasLimit = binary.BigEndian.Uint64(m[0:8])
	p.DestGasPrice = binary.BigEndian.Uint64(m[8:16])
	p.AckGasLimit = binary.BigEndian.Uint64(m[16:24])
	p.AckGasPrice = binary.BigEndian.Uint64(m[24:32])
	p.RelayerFee = new(big.Int).SetBytes(m[32:48])
	p.AckType = AckType(m[48])
	if p.AckType > AckAlways {
		return nil, fmt.Errorf("invalid ack type %d", m[48])
	}
	switch m[49] {
	case 0:
		p.IsReadCall = false
	case 1:
		p.IsReadCall = true
	default:
		return nil, fmt.Errorf("invalid read call flag %d", m[49])
	}
	p.AsmAddress = string(m[metadataFixedLen:])

	return p, nil
}
