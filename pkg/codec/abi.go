// Package codec holds the pure encoders used on both legs of a cross-chain transfer: the ABI address word carried as
// the packet recipient, the transfer packet itself, and the packed request metadata handed to the gateway.
package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("codec: invalid abi type %q: %v", t, err))
	}
	return typ
}

var (
	addressType = mustNewType("address", nil)
	stringType  = mustNewType("string", nil)
	bytesType   = mustNewType("bytes", nil)

	packetType = mustNewType("tuple", []abi.ArgumentMarshaling{
		{Name: "nftIds", Type: "uint256[]"},
		{Name: "nftAmounts", Type: "uint256[]"},
		{Name: "nftData", Type: "bytes"},
		{Name: "recipient", Type: "bytes"},
	})

	addressArgs       = abi.Arguments{{Type: addressType}}
	packetArgs        = abi.Arguments{{Type: packetType}}
	ackArgs           = abi.Arguments{{Type: stringType}}
	requestPacketArgs = abi.Arguments{{Type: stringType}, {Type: bytesType}}
)

// unpack runs the abi decoder and turns a decoder panic on hostile input into an error.
func unpack(args abi.Arguments, data []byte) (out []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("abi decoder panic: %v", r)
		}
	}()
	return args.Unpack(data)
}
