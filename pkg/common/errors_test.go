package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorReasonsAreVerbatim(t *testing.T) {
	assert.Equal(t, "only owner", ErrOnlyOwner.Error())
	assert.Equal(t, "only gateway", ErrOnlyGateway.Error())
	assert.Equal(t, "contract on dest not set", ErrDestNotSet.Error())
	assert.Equal(t, "ERC1155: burn amount exceeds balance", NewError(KindInsufficientBalance, ReasonBurnExceedsBalance).Error())
}

func TestIsKindThroughWrapping(t *testing.T) {
	base := WrapError(KindDecode, "malformed packet", errors.New("abi: cannot marshal"))
	wrapped := fmt.Errorf("receive on chain 137: %w", base)

	assert.True(t, IsKind(wrapped, KindDecode))
	assert.False(t, IsKind(wrapped, KindAuthorization))
	assert.Equal(t, KindDecode, KindOf(wrapped))

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, "abi: cannot marshal", errors.Unwrap(e).Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindDecode))
}

func TestSentinelsMatchWithErrorsIs(t *testing.T) {
	err := fmt.Errorf("setContractOnChain: %w", ErrOnlyOwner)
	assert.ErrorIs(t, err, ErrOnlyOwner)
	assert.NotErrorIs(t, err, ErrOnlyGateway)
}

func TestNilError(t *testing.T) {
	var e *Error
	assert.Equal(t, "<nil>", e.Error())
	assert.Nil(t, e.Unwrap())
}
