package common

import "errors"

// Kind is a stable category for programmatic error handling. Callers should branch on Kind rather than on the
// reason text, although the reason text of the first four kinds is part of the external contract and never changes.
type Kind string

const (
	KindAuthorization            Kind = "Authorization"
	KindDestinationNotConfigured Kind = "DestinationNotConfigured"
	KindInsufficientBalance      Kind = "InsufficientBalance"
	KindDecode                   Kind = "Decode"
	KindInvalidRequest           Kind = "InvalidRequest"
	KindSupplyOverflow           Kind = "SupplyOverflow"
	KindDuplicateDelivery        Kind = "DuplicateDelivery"
	KindGateway                  Kind = "Gateway"
)

// Reason strings that existing integrations match on verbatim.
const (
	ReasonOnlyOwner          = "only owner"
	ReasonOnlyGateway        = "only gateway"
	ReasonDestNotSet         = "contract on dest not set"
	ReasonBurnExceedsBalance = "ERC1155: burn amount exceeds balance"
	ReasonLengthMismatch     = "ERC1155: ids and amounts length mismatch"
	ReasonMintToZeroAddress  = "ERC1155: mint to the zero address"
	ReasonMintOverflow       = "ERC1155: mint amount overflows supply"
	ReasonUnknownOrigin      = "origin contract not registered"
	ReasonAlreadyProcessed   = "packet already processed"
	ReasonGatewayRejected    = "gateway rejected request"
)

// Error is the structured error returned by every contract entry point. A call that returns an *Error has not
// changed any state.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func WrapError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// ErrOnlyOwner, ErrOnlyGateway and ErrDestNotSet are returned as-is by the contract; compare with errors.Is or IsKind.
var (
	ErrOnlyOwner   = NewError(KindAuthorization, ReasonOnlyOwner)
	ErrOnlyGateway = NewError(KindAuthorization, ReasonOnlyGateway)
	ErrDestNotSet  = NewError(KindDestinationNotConfigured, ReasonDestNotSet)
)

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of a structured error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
