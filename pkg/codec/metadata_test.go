package codec

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 0.01 ether in wei
func centiEther() *big.Int {
	return big.NewInt(10_000_000_000_000_000)
}

func TestBuildRequestMetadataNeverEmpty(t *testing.T) {
	m, err := BuildRequestMetadata(0, 0, 0, 0, big.NewInt(0), AckNone, false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, m)
	assert.Len(t, m, metadataFixedLen)
	assert.NotEqual(t, "0x", m.String())
}

func TestBuildRequestMetadataLayout(t *testing.T) {
	m, err := BuildRequestMetadata(1000000, 20000000000, 500000, 15000000000, centiEther(), AckOnSuccess, false, "")
	require.NoError(t, err)

	assert.Equal(t,
		"00000000000f4240"+ // destGasLimit
			"00000004a817c800"+ // destGasPrice
			"000000000007a120"+ // ackGasLimit
			"000000037e11d600"+ // ackGasPrice
			"0000000000000000002386f26fc10000"+ // relayerFee 0.01 ether
			"01"+ // ackType
			"00", // isReadCall
		hex.EncodeToString(m))
}

func TestRequestMetadataRoundTrip(t *testing.T) {
	params := RequestMetadataParams{
		DestGasLimit: 1000000,
		DestGasPrice: 20000000000,
		AckGasLimit:  500000,
		AckGasPrice:  15000000000,
		RelayerFee:   centiEther(),
		AckType:      AckAlways,
		IsReadCall:   true,
		AsmAddress:   "0x0000000000000000000000000000000000000abc",
	}

	m, err := params.Build()
	require.NoError(t, err)

	parsed, err := ParseRequestMetadata(m)
	require.NoError(t, err)
	assert.Equal(t, params.DestGasLimit, parsed.DestGasLimit)
	assert.Equal(t, params.DestGasPrice, parsed.DestGasPrice)
	assert.Equal(t, params.AckGasLimit, parsed.AckGasLimit)
	assert.Equal(t, params.AckGasPrice, parsed.AckGasPrice)
	assert.Equal(t, 0, params.RelayerFee.Cmp(parsed.RelayerFee))
	assert.Equal(t, params.AckType, parsed.AckType)
	assert.Equal(t, params.IsReadCall, parsed.IsReadCall)
	assert.Equal(t, params.AsmAddress, parsed.AsmAddress)
}

func TestBuildRequestMetadataFeeRange(t *testing.T) {
	maxFee := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	_, err := BuildRequestMetadata(1, 1, 1, 1, maxFee, AckNone, false, "")
	assert.NoError(t, err)

	_, err = BuildRequestMetadata(1, 1, 1, 1, new(big.Int).Add(maxFee, big.NewInt(1)), AckNone, false, "")
	assert.Error(t, err)

	_, err = BuildRequestMetadata(1, 1, 1, 1, big.NewInt(-1), AckNone, false, "")
	assert.Error(t, err)

	_, err = BuildRequestMetadata(1, 1, 1, 1, nil, AckNone, false, "")
	assert.Error(t, err)
}

func TestParseRequestMetadataRejectsBadInput(t *testing.T) {
	_, err := ParseRequestMetadata(nil)
	assert.Error(t, err)

	_, err = ParseRequestMetadata(make([]byte, metadataFixedLen-1))
	assert.Error(t, err)

	m, err := BuildRequestMetadata(1, 1, 1, 1, big.NewInt(1), AckNone, false, "")
	require.NoError(t, err)

	badAck := append(RequestMetadata{}, m...)
	badAck[48] = 9
	_, err = ParseRequestMetadata(badAck)
	assert.Error(t, err)

	badBool := append(RequestMetadata{}, m...)
	badBool[49] = 2
	_, err = ParseRequestMetadata(badBool)
	assert.Error(t, err)
}

func TestAckTypeWantsAck(t *testing.T) {
	assert.False(t, AckNone.WantsAck(true))
	assert.False(t, AckNone.WantsAck(false))
	assert.True(t, AckOnSuccess.WantsAck(true))
	assert.False(t, AckOnSuccess.WantsAck(false))
	assert.False(t, AckOnError.WantsAck(true))
	assert.True(t, AckOnError.WantsAck(false))
	assert.True(t, AckAlways.WantsAck(true))
	assert.True(t, AckAlways.WantsAck(false))
}
