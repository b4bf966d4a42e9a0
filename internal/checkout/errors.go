package checkout

import (
	"errors"
	"fmt"

	"github.com/fjod/qrorder/internal/domain"
)

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition    = errors.New("illegal transition of checkout state")
	ErrCheckoutInProgress   = errors.New("a checkout is already in progress")
	ErrCustomerNameRequired = errors.New("customer name is required")
	ErrTableNumberRequired  = errors.New("table number is required")
	ErrAttemptAbandoned     = errors.New("checkout attempt was abandoned")
	ErrPaymentNotVerified   = errors.New("payment was not verified by the server")
)

// User-facing failure reasons.
const (
	ReasonSDKUnavailable     = "SDK unavailable"
	ReasonOrderFailed        = "Could not create the order. Please try again."
	ReasonWidgetUnavailable  = "Payment window could not be opened. Please try again."
	ReasonVerifyUnavailable  = "Could not verify the payment. Please try again."
	ReasonPaymentNotVerified = "Payment verification failed."
)

// Failure is a checkout attempt that ended in the FAILED state.
type Failure struct {
	Stage  domain.CheckoutState
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("checkout failed while %s: %s", f.Stage, f.Reason)
	}
	return fmt.Sprintf("checkout failed while %s: %s: %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type transitionError struct {
	from, to domain.CheckoutState
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrIllegalTransition, e.from, e.to)
}

func (e *transitionError) Unwrap() error {
	return ErrIllegalTransition
}
