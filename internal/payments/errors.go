package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
)

// ErrorKind classifies a gateway failure for HTTP mapping and retry policy.
type ErrorKind string

const (
	// ErrorKindCard covers declines and other customer-correctable failures.
	ErrorKindCard ErrorKind = "card_error"
	// ErrorKindConfiguration covers bad credentials and malformed requests on
	// our side. Retrying without an operator fix is pointless.
	ErrorKindConfiguration ErrorKind = "configuration_error"
	// ErrorKindNetwork covers transport failures and gateway outages.
	ErrorKindNetwork ErrorKind = "network_error"
)

// Error is the normalised gateway failure surfaced to callers.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "payments: <nil>"
	}
	if e.Code != "" {
		return fmt.Sprintf("payments: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("payments: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a normalised gateway error.
func NewError(kind ErrorKind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// classifyStripeError maps a stripe-go error onto the normalised taxonomy.
// Anything that is not recognisably a Stripe API error is treated as a
// transport failure.
func classifyStripeError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return NewError(ErrorKindNetwork, "", fmt.Sprintf("%s: gateway unreachable", op), err)
	}

	code := string(serr.Code)
	msg := serr.Msg
	if msg == "" {
		msg = op + " failed"
	}

	switch serr.Type {
	case stripe.ErrorTypeCard:
		return NewError(ErrorKindCard, code, msg, err)
	case stripe.ErrorTypeInvalidRequest:
		return NewError(ErrorKindConfiguration, code, msg, err)
	case stripe.ErrorTypeAPI:
		return NewError(ErrorKindNetwork, code, msg, err)
	default:
		return NewError(ErrorKindNetwork, code, msg, err)
	}
}
