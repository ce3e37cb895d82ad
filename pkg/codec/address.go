package codec

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	xcommon "github.com/xerc1155/xchain/pkg/common"
)

// AddressWidth is the width of an encoded recipient: one ABI word holding a left-padded 20 byte address.
const AddressWidth = 32

var zeroPadding = make([]byte, AddressWidth-common.AddressLength)

// EncodeAddress returns abi.encode(address). It never fails.
func EncodeAddress(addr common.Address) []byte {
	b, err := addressArgs.Pack(addr)
	if err != nil {
		// Packing a common.Address into an address argument cannot fail.
		panic(fmt.Sprintf("codec: failed to pack address: %v", err))
	}
	return b
}

// DecodeAddress is the inverse of EncodeAddress. Anything other than a single clean ABI address word is rejected.
func DecodeAddress(b []byte) (common.Address, error) {
	if len(b) != AddressWidth {
		return common.Address{}, xcommon.NewError(xcommon.KindDecode,
			fmt.Sprintf("invalid address length: got %d bytes, want %d", len(b), AddressWidth))
	}
	if !bytes.Equal(b[:AddressWidth-common.AddressLength], zeroPadding) {
		return common.Address{}, xcommon.NewError(xcommon.KindDecode, "invalid address: dirty high bytes")
	}

	out, err := unpack(addressArgs, b)
	if err != nil {
		return common.Address{}, xcommon.WrapError(xcommon.KindDecode, "invalid address encoding", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, xcommon.NewError(xcommon.KindDecode, fmt.Sprintf("invalid address type %T", out[0]))
	}
	return addr, nil
}
