package domain

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientInventory
	KindInvalidVoucher
	KindMinOrderNotMet
	KindInvalidAddress
	KindUnauthorized
	KindInvalidOrderState
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientInventory:
		return "insufficient_inventory"
	case KindInvalidVoucher:
		return "invalid_voucher"
	case KindMinOrderNotMet:
		return "min_order_not_met"
	case KindInvalidAddress:
		return "invalid_address"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidOrderState:
		return "invalid_order_state"
	case KindExternalService:
		return "external_service"
	}
	return "internal"
}

// Error is a classified business error. errors.Is matches on Kind, so
// errors.Is(err, ErrNotFound) holds for any not-found error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrInvalidVoucher        = &Error{Kind: KindInvalidVoucher}
	ErrMinOrderNotMet        = &Error{Kind: KindMinOrderNotMet}
	ErrInvalidAddress        = &Error{Kind: KindInvalidAddress}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInvalidOrderState     = &Error{Kind: KindInvalidOrderState}
	ErrExternalService       = &Error{Kind: KindExternalService}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
