// Package checkout drives one session's payment attempt through
// IDLE -> SCRIPT_LOADING -> ORDER_CREATING -> AWAITING_PAYMENT -> VERIFYING -> SUCCESS | FAILED.
//
// Every attempt carries a token. Results of network calls and widget events are
// applied only while their token is current, so Cancel makes late answers inert.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/qrorder/internal/backend"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/fjod/qrorder/internal/gateway"
	"github.com/fjod/qrorder/pkg/logger"
	"github.com/rs/zerolog"
)

type Backend interface {
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (domain.PaymentSession, error)
	VerifyPayment(ctx context.Context, session domain.PaymentSession, completion domain.PaymentCompletion) (bool, error)
}

// Cart is held for the length of an attempt so the lines paid for are the
// lines cleared on success.
type Cart interface {
	Hold() []domain.CartItem
	Release()
	Clear()
}

// ReceiptStore persists verified orders. Errors are logged, never surfaced.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, receipt domain.Receipt) error
}

// Details is what the customer types before pressing "Proceed to Pay".
type Details struct {
	CustomerName string `json:"customerName"`
	TableNumber  string `json:"tableNumber"`
}

func (d Details) normalized() Details {
	return Details{
		CustomerName: strings.TrimSpace(d.CustomerName),
		TableNumber:  strings.TrimSpace(d.TableNumber),
	}
}

// Status is a point-in-time view of the flow.
type Status struct {
	State   domain.CheckoutState `json:"state"`
	Attempt uint64               `json:"attempt"`
	Reason  string               `json:"reason,omitempty"`
	Details Details              `json:"details"`
	Options *gateway.Options     `json:"options,omitempty"`
	Receipt *domain.Receipt      `json:"receipt,omitempty"`
}

type Option func(*Flow)

func WithReceiptStore(s ReceiptStore) Option {
	return func(f *Flow) { f.receipts = s }
}

func WithWidgetConfig(cfg gateway.Config) Option {
	return func(f *Flow) { f.widgetCfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

type Flow struct {
	cart      Cart
	backend   Backend
	loader    gateway.ScriptLoader
	widget    gateway.Widget
	receipts  ReceiptStore
	widgetCfg gateway.Config
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   domain.CheckoutState
	token   uint64
	cancel  context.CancelFunc
	done    chan struct{}
	details Details
	session *domain.PaymentSession
	options *gateway.Options
	failure *Failure
	receipt *domain.Receipt
}

func NewFlow(cart Cart, backend Backend, loader gateway.ScriptLoader, widget gateway.Widget, opts ...Option) *Flow {
	f := &Flow{
		cart:    cart,
		backend: backend,
		loader:  loader,
		widget:  widget,
		logger:  zerolog.Nop(),
		now:     time.Now,
		state:   domain.CheckoutStateIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start runs a new attempt up to AWAITING_PAYMENT and returns the options the
// browser needs to open the hosted widget. The rest of the attempt continues in
// the background once the widget reports an outcome.
func (f *Flow) Start(ctx context.Context, details Details) (gateway.Options, error) {
	details = details.normalized()

	f.mu.Lock()
	if f.state.InProgress() {
		f.mu.Unlock()
		return gateway.Options{}, ErrCheckoutInProgress
	}
	items := f.cart.Hold()
	var guardErr error
	switch {
	case len(items) == 0:
		guardErr = ErrEmptyCart
	case details.TableNumber == "":
		guardErr = ErrTableNumberRequired
	case details.CustomerName == "":
		guardErr = ErrCustomerNameRequired
	}
	if guardErr != nil {
		f.cart.Release()
		f.mu.Unlock()
		return gateway.Options{}, guardErr
	}

	if f.state != domain.CheckoutStateIdle {
		if err := f.transitionLocked(domain.CheckoutStateIdle); err != nil {
			f.cart.Release()
			f.mu.Unlock()
			return gateway.Options{}, err
		}
	}
	if err := f.transitionLocked(domain.CheckoutStateScriptLoading); err != nil {
		f.cart.Release()
		f.mu.Unlock()
		return gateway.Options{}, err
	}
	f.token++
	token := f.token
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.done = make(chan struct{})
	f.details = details
	f.failure, f.session, f.options, f.receipt = nil, nil, nil, nil
	f.mu.Unlock()

	log := logger.WithTrace(ctx, f.logger).With().Uint64("attempt", token).Logger()
	log.Info().Int("items", len(items)).Str("table", details.TableNumber).Msg("checkout started")

	if err := f.loader.Load(attemptCtx); err != nil {
		log.Warn().Err(err).Msg("payment SDK failed to load")
		return gateway.Options{}, f.fail(token, domain.CheckoutStateScriptLoading, ReasonSDKUnavailable, err)
	}
	if err := f.advance(token, domain.CheckoutStateOrderCreating); err != nil {
		return gateway.Options{}, err
	}

	draft := domain.NewOrderDraft(details.CustomerName, details.TableNumber, items)
	session, err := f.backend.CreateOrder(attemptCtx, draft)
	if err != nil {
		log.Error().Err(err).Msg("order creation failed")
		return gateway.Options{}, f.fail(token, domain.CheckoutStateOrderCreating, ReasonOrderFailed, err)
	}
	if !session.Charges(draft.TotalPrice) {
		err := fmt.Errorf("%w: gateway amount %d %s for order total %s",
			backend.ErrMalformedResponse, session.Amount, session.Currency, draft.TotalPrice)
		log.Error().Err(err).Str("gateway_order_id", session.GatewayOrderID).Msg("order amount mismatch")
		return gateway.Options{}, f.fail(token, domain.CheckoutStateOrderCreating, ReasonOrderFailed, err)
	}

	opts := gateway.NewOptions(f.widgetCfg, session, details.CustomerName)
	events, err := f.widget.Open(attemptCtx, opts)
	if err != nil {
		log.Error().Err(err).Msg("payment widget failed to open")
		return gateway.Options{}, f.fail(token, domain.CheckoutStateOrderCreating, ReasonWidgetUnavailable, err)
	}

	f.mu.Lock()
	if f.token != token {
		f.mu.Unlock()
		f.widget.Close(session.GatewayOrderID)
		return gateway.Options{}, ErrAttemptAbandoned
	}
	if err := f.transitionLocked(domain.CheckoutStateAwaitingPayment); err != nil {
		f.mu.Unlock()
		return gateway.Options{}, err
	}
	f.session = &session
	f.options = &opts
	f.mu.Unlock()

	log.Info().Str("gateway_order_id", session.GatewayOrderID).Str("local_order_id", session.LocalOrderID).
		Msg("awaiting payment")
	go f.await(attemptCtx, token, draft, session, events, log)
	return opts, nil
}

func (f *Flow) await(ctx context.Context, token uint64, draft domain.OrderDraft, session domain.PaymentSession,
	events <-chan gateway.Event, log zerolog.Logger) {
	var ev gateway.Event
	select {
	case <-ctx.Done():
		f.widget.Close(session.GatewayOrderID)
		return
	case ev = <-events:
	}

	if ev.Kind != gateway.EventCompleted {
		f.mu.Lock()
		if f.token == token && f.transitionLocked(domain.CheckoutStateIdle) == nil {
			f.session, f.options = nil, nil
			f.settleLocked()
			log.Info().Msg("payment widget dismissed")
		}
		f.mu.Unlock()
		return
	}

	if err := f.advance(token, domain.CheckoutStateVerifying); err != nil {
		log.Debug().Err(err).Msg("dropping payment completion")
		return
	}

	verified, err := f.backend.VerifyPayment(ctx, session, ev.Completion)
	if err != nil {
		log.Error().Err(err).Msg("payment verification call failed")
		_ = f.fail(token, domain.CheckoutStateVerifying, ReasonVerifyUnavailable, err)
		return
	}
	if !verified {
		log.Warn().Str("payment_id", ev.Completion.GatewayPaymentID).Msg("payment rejected by server verification")
		_ = f.fail(token, domain.CheckoutStateVerifying, ReasonPaymentNotVerified, ErrPaymentNotVerified)
		return
	}

	receipt, ok := f.succeed(token, draft, session, ev.Completion)
	if !ok {
		log.Debug().Msg("dropping stale verification result")
		return
	}
	log.Info().Str("payment_id", receipt.PaymentID).Str("total", receipt.Total.String()).Msg("payment verified")
	f.persist(ctx, receipt, log)
}

// succeed is the only place the cart is cleared.
func (f *Flow) succeed(token uint64, draft domain.OrderDraft, session domain.PaymentSession,
	completion domain.PaymentCompletion) (domain.Receipt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != token {
		return domain.Receipt{}, false
	}
	if err := f.transitionLocked(domain.CheckoutStateSuccess); err != nil {
		return domain.Receipt{}, false
	}

	f.cart.Clear()
	receipt := domain.Receipt{
		PaymentID:      completion.GatewayPaymentID,
		GatewayOrderID: session.GatewayOrderID,
		LocalOrderID:   session.LocalOrderID,
		CustomerName:   draft.CustomerName,
		TableNumber:    draft.TableNumber,
		Items:          draft.Items,
		Total:          draft.TotalPrice,
		PaidAt:         f.now().UTC(),
	}
	f.receipt = &receipt
	f.session, f.options = nil, nil
	f.settleLocked()
	return receipt, true
}

func (f *Flow) persist(ctx context.Context, receipt domain.Receipt, log zerolog.Logger) {
	if f.receipts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := f.receipts.SaveReceipt(ctx, receipt); err != nil {
		log.Error().Err(err).Str("payment_id", receipt.PaymentID).Msg("failed to persist receipt")
	}
}

func (f *Flow) fail(token uint64, stage domain.CheckoutState, reason string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != token {
		return ErrAttemptAbandoned
	}
	if terr := f.transitionLocked(domain.CheckoutStateFailed); terr != nil {
		return terr
	}
	f.failure = &Failure{Stage: stage, Reason: reason, Err: err}
	f.session, f.options = nil, nil
	f.settleLocked()
	return f.failure
}

func (f *Flow) advance(token uint64, to domain.CheckoutState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != token {
		return ErrAttemptAbandoned
	}
	return f.transitionLocked(to)
}

func (f *Flow) transitionLocked(to domain.CheckoutState) error {
	if !domain.CanTransitionTo(f.state, to) {
		return &transitionError{from: f.state, to: to}
	}
	f.logger.Debug().Stringer("from", f.state).Stringer("to", to).Uint64("attempt", f.token).Msg("checkout transition")
	f.state = to
	return nil
}

// settleLocked ends the current attempt: the cart is released, waiters are
// unblocked and in-flight calls are cancelled.
func (f *Flow) settleLocked() {
	f.cart.Release()
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Cancel abandons the current attempt (navigation away) and returns to IDLE
// with the cart untouched. Responses still in flight are ignored.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == domain.CheckoutStateIdle {
		return
	}
	f.token++
	if err := f.transitionLocked(domain.CheckoutStateIdle); err != nil {
		f.logger.Error().Err(err).Msg("cancel checkout")
		return
	}
	if f.session != nil {
		f.widget.Close(f.session.GatewayOrderID)
	}
	f.failure, f.session, f.options = nil, nil, nil
	f.settleLocked()
}

// Wait blocks until the current attempt leaves the in-progress states or ctx
// is done.
func (f *Flow) Wait(ctx context.Context) (Status, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return f.Status(), ctx.Err()
		}
	}
	return f.Status(), nil
}

func (f *Flow) State() domain.CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session is the gateway session of the attempt waiting on the widget.
func (f *Flow) Session() (domain.PaymentSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return domain.PaymentSession{}, false
	}
	return *f.session, true
}

// Receipt returns the confirmation record of the last verified payment.
func (f *Flow) Receipt() (domain.Receipt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return domain.Receipt{}, false
	}
	return *f.receipt, true
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := Status{State: f.state, Attempt: f.token, Details: f.details}
	if f.failure != nil {
		st.Reason = f.failure.Reason
	}
	if f.options != nil {
		opts := *f.options
		st.Options = &opts
	}
	if f.receipt != nil {
		r := *f.receipt
		st.Receipt = &r
	}
	return st
}
