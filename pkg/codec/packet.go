package codec

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	xcommon "github.com/xerc1155/xchain/pkg/common"
)

// TransferRequest is the body of a cross-chain transfer. TokenIDs and Amounts are parallel; both may be empty.
// Recipient is an encoded address (see EncodeAddress) interpreted only by the destination instance.
type TransferRequest struct {
	TokenIDs  []*big.Int
	Amounts   []*big.Int
	Data      []byte
	Recipient []byte
}

// packetTuple mirrors the abi tuple (uint256[] nftIds, uint256[] nftAmounts, bytes nftData, bytes recipient).
// Field names must stay the camel-cased component names for the abi package to map them.
type packetTuple struct {
	NftIds     []*big.Int
	NftAmounts []*big.Int
	NftData    []byte
	Recipient  []byte
}

// Validate checks the invariants the encoder relies on: parallel arrays and every integer fitting in a uint256.
func (r *TransferRequest) Validate() error {
	if len(r.TokenIDs) != len(r.Amounts) {
		return xcommon.NewError(xcommon.KindInvalidRequest, xcommon.ReasonLengthMismatch)
	}
	for i := range r.TokenIDs {
		if err := checkUint256(r.TokenIDs[i]); err != nil {
			return xcommon.WrapError(xcommon.KindInvalidRequest, fmt.Sprintf("invalid token id at index %d", i), err)
		}
		if err := checkUint256(r.Amounts[i]); err != nil {
			return xcommon.WrapError(xcommon.KindInvalidRequest, fmt.Sprintf("invalid amount at index %d", i), err)
		}
	}
	return nil
}

// IsNoop reports whether the request moves no tokens at all: it is empty or every amount is zero.
func (r *TransferRequest) IsNoop() bool {
	for _, a := range r.Amounts {
		if a != nil && a.Sign() != 0 {
			return false
		}
	}
	return true
}

// Equal compares two requests by value. Nil and empty slices are considered equal.
func (r *TransferRequest) Equal(o *TransferRequest) bool {
	if r == nil || o == nil {
		return r == o
	}
	return bigsEqual(r.TokenIDs, o.TokenIDs) &&
		bigsEqual(r.Amounts, o.Amounts) &&
		bytes.Equal(r.Data, o.Data) &&
		bytes.Equal(r.Recipient, o.Recipient)
}

func bigsEqual(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil || b[i] == nil {
			if a[i] != b[i] {
				return false
			}
			continue
		}
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

func checkUint256(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("nil value")
	}
	if v.Sign() < 0 {
		return fmt.Errorf("negative value %s", v)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("value exceeds 256 bits")
	}
	return nil
}

// EncodePacket returns abi.encode(tuple(uint256[],uint256[],bytes,bytes)) of the request.
func EncodePacket(r TransferRequest) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return packPacket(r)
}

func packPacket(r TransferRequest) ([]byte, error) {
	t := packetTuple{
		NftIds:     nonNilBigs(r.TokenIDs),
		NftAmounts: nonNilBigs(r.Amounts),
		NftData:    nonNilBytes(r.Data),
		Recipient:  nonNilBytes(r.Recipient),
	}
	b, err := packetArgs.Pack(t)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer packet: %w", err)
	}
	return b, nil
}

// DecodePacket is the inverse of EncodePacket. Packet bytes arrive from another chain and are treated as hostile:
// besides abi structure, the decoder re-checks the parallel array invariant and refuses any encoding that the
// encoder would not have produced (trailing bytes, dirty padding, non-standard offsets).
func DecodePacket(b []byte) (TransferRequest, error) {
	out, err := unpack(packetArgs, b)
	if err != nil {
		return TransferRequest{}, xcommon.WrapError(xcommon.KindDecode, "malformed transfer packet", err)
	}
	if len(out) != 1 {
		return TransferRequest{}, xcommon.NewError(xcommon.KindDecode, fmt.Sprintf("malformed transfer packet: %d fields", len(out)))
	}

	t, err := toPacketTuple(out[0])
	if err != nil {
		return TransferRequest{}, xcommon.WrapError(xcommon.KindDecode, "malformed transfer packet", err)
	}

	r := TransferRequest{
		TokenIDs:  t.NftIds,
		Amounts:   t.NftAmounts,
		Data:      t.NftData,
		Recipient: t.Recipient,
	}
	if len(r.TokenIDs) != len(r.Amounts) {
		return TransferRequest{}, xcommon.NewError(xcommon.KindDecode, xcommon.ReasonLengthMismatch)
	}

	canonical, err := packPacket(r)
	if err != nil {
		return TransferRequest{}, xcommon.WrapError(xcommon.KindDecode, "malformed transfer packet", err)
	}
	if !bytes.Equal(canonical, b) {
		return TransferRequest{}, xcommon.NewError(xcommon.KindDecode, "non-canonical transfer packet encoding")
	}

	return r, nil
}

func toPacketTuple(v interface{}) (t packetTuple, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected tuple layout: %v", r)
		}
	}()
	return *abi.ConvertType(v, new(packetTuple)).(*packetTuple), nil
}

// EncodeRequestPacket wraps a transfer packet with the destination handler address, the layout gateways expect:
// abi.encode(string destContract, bytes packet).
func EncodeRequestPacket(destContract string, packet []byte) ([]byte, error) {
	b, err := requestPacketArgs.Pack(destContract, nonNilBytes(packet))
	if err != nil {
		return nil, fmt.Errorf("failed to pack request packet: %w", err)
	}
	return b, nil
}

// DecodeRequestPacket splits a gateway request packet into its destination handler and transfer packet.
func DecodeRequestPacket(b []byte) (string, []byte, error) {
	out, err := unpack(requestPacketArgs, b)
	if err != nil {
		return "", nil, xcommon.WrapError(xcommon.KindDecode, "malformed request packet", err)
	}
	dest, ok := out[0].(string)
	if !ok {
		return "", nil, xcommon.NewError(xcommon.KindDecode, fmt.Sprintf("malformed request packet: destination is %T", out[0]))
	}
	packet, ok := out[1].([]byte)
	if !ok {
		return "", nil, xcommon.NewError(xcommon.KindDecode, fmt.Sprintf("malformed request packet: payload is %T", out[1]))
	}
	return dest, packet, nil
}

// EncodeAck returns the acknowledgment payload of a successful receive: abi.encode(string srcChainID).
func EncodeAck(srcChainID string) []byte {
	b, err := ackArgs.Pack(srcChainID)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to pack ack: %v", err))
	}
	return b
}

// DecodeAck returns the origin chain id carried by an acknowledgment.
func DecodeAck(b []byte) (string, error) {
	out, err := unpack(ackArgs, b)
	if err != nil {
		return "", xcommon.WrapError(xcommon.KindDecode, "malformed acknowledgment", err)
	}
	s, ok := out[0].(string)
	if !ok {
		return "", xcommon.NewError(xcommon.KindDecode, fmt.Sprintf("malformed acknowledgment: %T", out[0]))
	}
	return s, nil
}

func nonNilBigs(v []*big.Int) []*big.Int {
	if v == nil {
		return []*big.Int{}
	}
	return v
}

func nonNilBytes(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}
