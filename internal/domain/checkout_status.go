package domain

type CheckoutState string

const (
	CheckoutStateIdle            CheckoutState = "IDLE"
	CheckoutStateScriptLoading   CheckoutState = "SCRIPT_LOADING"
	CheckoutStateOrderCreating   CheckoutState = "ORDER_CREATING"
	CheckoutStateAwaitingPayment CheckoutState = "AWAITING_PAYMENT"
	CheckoutStateVerifying       CheckoutState = "VERIFYING"
	CheckoutStateSuccess         CheckoutState = "SUCCESS"
	CheckoutStateFailed          CheckoutState = "FAILED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:            {CheckoutStateScriptLoading},
	CheckoutStateScriptLoading:   {CheckoutStateOrderCreating, CheckoutStateFailed, CheckoutStateIdle},
	CheckoutStateOrderCreating:   {CheckoutStateAwaitingPayment, CheckoutStateFailed, CheckoutStateIdle},
	CheckoutStateAwaitingPayment: {CheckoutStateVerifying, CheckoutStateIdle},
	CheckoutStateVerifying:       {CheckoutStateSuccess, CheckoutStateFailed, CheckoutStateIdle},
	CheckoutStateSuccess:         {CheckoutStateIdle},
	CheckoutStateFailed:          {CheckoutStateIdle},
}

// CanTransitionTo reports whether the checkout state machine allows from -> to.
func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InProgress is true while an attempt owns the flow and a new one must not start.
func (s CheckoutState) InProgress() bool {
	switch s {
	case CheckoutStateScriptLoading, CheckoutStateOrderCreating,
		CheckoutStateAwaitingPayment, CheckoutStateVerifying:
		return true
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateSuccess || s == CheckoutStateFailed
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
