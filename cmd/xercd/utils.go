package xercd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// parseBigs parses decimal or 0x-prefixed integers.
func parseBigs(vs []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(vs))
	for _, v := range vs {
		n, ok := new(big.Int).SetString(strings.TrimSpace(v), 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseAddress(name string, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

// parseHex decodes hex with or without the 0x prefix. The empty string decodes to nil.
func parseHex(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
		v = "0x" + v
	}
	return hexutil.Decode(v)
}
