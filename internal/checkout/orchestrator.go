// Package checkout orchestrates order submission for the storefront: form
// validation, courier risk verification, remote cart synchronisation, order
// placement, and the post-success bookkeeping that feeds the receipt page.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/commerce"
	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/risk"
)

// State is the submission lifecycle phase for one storefront session.
type State string

const (
	StateIdle         State = "idle"
	StateProcessing   State = "processing"
	StatePlacingOrder State = "placing_order"
	StateSuccess      State = "success"
	StateError        State = "error"
)

// Commerce is the slice of the commerce client the orchestrator drives.
type Commerce interface {
	EnsureSession(ctx context.Context) (string, error)
	AddCartLine(ctx context.Context, token string, line domain.CartLine) (string, error)
	GetCart(ctx context.Context, token string) (domain.RemoteCart, string, error)
	PlaceOrder(ctx context.Context, token string, input commerce.OrderInput) (domain.PlacedOrder, string, error)
}

// Verifier decides whether a phone identifier may place a cash-on-delivery
// order.
type Verifier interface {
	Verify(ctx context.Context, phone string) risk.Verdict
}

// ValueTracker accumulates lifetime order value per customer.
type ValueTracker interface {
	UpdateCustomerValue(ctx context.Context, customerID string, orderValue domain.Amount) error
}

// EventQueue enqueues tracking events for asynchronous dispatch.
type EventQueue interface {
	Add(event analytics.Event, priority analytics.Priority)
}

// SnapshotStore persists the customer profile and last-order snapshot.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SubmitRequest is one order submission from a storefront session.
type SubmitRequest struct {
	SessionID    string
	Form         SubmitInput
	Lines        []domain.CartLine
	CustomerNote string

	// PriorVerdict carries an allowed verdict from an earlier verification
	// call on the same request path. It is never client-supplied.
	PriorVerdict *risk.Verdict
}

// Receipt summarises a placed order for the confirmation page.
type Receipt struct {
	OrderNumber  string                     `json:"orderNumber"`
	Subtotal     domain.Amount              `json:"subtotal"`
	Shipping     domain.Amount              `json:"shipping"`
	Total        domain.Amount              `json:"total"`
	DisplayTotal string                     `json:"displayTotal"`
	Lines        []domain.OrderLineSnapshot `json:"lines"`
	RedirectURL  string                     `json:"redirectUrl"`
}

// OrchestratorDeps wires the dependencies and tunables for the orchestrator.
type OrchestratorDeps struct {
	Commerce Commerce
	Risk     Verifier
	Values   ValueTracker
	Events   EventQueue
	Store    SnapshotStore

	CartBatchSize     int
	CartBatchDelay    time.Duration
	OrderTimeout      time.Duration
	SubmitWindow      time.Duration
	SubmitMaxAttempts int
	ShippingInside    domain.Amount
	ShippingOutside   domain.Amount

	Logger *zap.Logger
	Clock  func() time.Time
}

// Orchestrator runs the submission pipeline. One submission per session runs
// at a time; repeated submissions inside the trailing window are rejected
// before any remote call.
type Orchestrator struct {
	commerce Commerce
	risk     Verifier
	values   ValueTracker
	events   EventQueue
	store    SnapshotStore

	batchSize       int
	batchDelay      time.Duration
	orderTimeout    time.Duration
	submitWindow    time.Duration
	maxAttempts     int
	shippingInside  domain.Amount
	shippingOutside domain.Amount

	logger *zap.Logger
	clock  func() time.Time

	mu          sync.Mutex
	states      map[string]State
	inflight    map[string]bool
	submissions map[string][]time.Time
}

// NewOrchestrator constructs an Orchestrator validating required dependencies.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Commerce == nil {
		return nil, errors.New("checkout orchestrator: commerce client is required")
	}
	if deps.Risk == nil {
		return nil, errors.New("checkout orchestrator: risk verifier is required")
	}
	if deps.Store == nil {
		return nil, errors.New("checkout orchestrator: snapshot store is required")
	}
	if deps.CartBatchSize <= 0 {
		deps.CartBatchSize = 3
	}
	if deps.CartBatchDelay < 0 {
		deps.CartBatchDelay = 0
	}
	if deps.OrderTimeout <= 0 {
		deps.OrderTimeout = 10 * time.Second
	}
	if deps.SubmitWindow <= 0 {
		deps.SubmitWindow = 10 * time.Minute
	}
	if deps.SubmitMaxAttempts <= 0 {
		deps.SubmitMaxAttempts = 3
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{
		commerce:        deps.Commerce,
		risk:            deps.Risk,
		values:          deps.Values,
		events:          deps.Events,
		store:           deps.Store,
		batchSize:       deps.CartBatchSize,
		batchDelay:      deps.CartBatchDelay,
		orderTimeout:    deps.OrderTimeout,
		submitWindow:    deps.SubmitWindow,
		maxAttempts:     deps.SubmitMaxAttempts,
		shippingInside:  deps.ShippingInside,
		shippingOutside: deps.ShippingOutside,
		logger:          deps.Logger,
		clock:           deps.Clock,
	}, nil
}

// State reports the current lifecycle phase for a session.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[sessionID]; ok {
		return state
	}
	return StateIdle
}

// Submit runs the full submission pipeline and returns the receipt. Validation
// and risk rejection happen before the first commerce call; a risk rejection
// causes no remote mutation.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	if err := o.acquire(req.SessionID); err != nil {
		return Receipt{}, err
	}
	defer o.release(req.SessionID)

	receipt, err := o.submit(ctx, req)
	if err != nil {
		o.setState(req.SessionID, StateError)
		return Receipt{}, err
	}
	o.setState(req.SessionID, StateSuccess)
	return receipt, nil
}

func (o *Orchestrator) submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	o.setState(req.SessionID, StateProcessing)
	logger := o.logger.With(zap.String("session_id", req.SessionID))

	form, err := ValidateForm(req.Form)
	if err != nil {
		return Receipt{}, err
	}
	if err := ValidateLines(req.Lines); err != nil {
		return Receipt{}, err
	}

	verdict := o.verdictFor(ctx, req, form.Phone)
	if !verdict.Allowed {
		logger.Info("submission blocked by risk verification",
			zap.String("reason", verdict.Reason),
			zap.Float64("success_rate", verdict.SuccessRate),
		)
		return Receipt{}, fmt.Errorf("%w: %s", ErrRiskRejected, verdict.Reason)
	}

	token, err := o.commerce.EnsureSession(ctx)
	if err != nil {
		return Receipt{}, err
	}

	token, err = o.syncCart(ctx, token, req.Lines)
	if err != nil {
		return Receipt{}, err
	}
	token = o.verifyCart(ctx, logger, token, req.Lines)

	o.setState(req.SessionID, StatePlacingOrder)
	order, err := o.placeOrder(ctx, logger, token, form, req.CustomerNote)
	if err != nil {
		return Receipt{}, err
	}
	if !orderComplete(order) {
		logger.Error("order response failed logical validation",
			zap.String("order_number", order.OrderNumber),
			zap.Int64("total_poisha", int64(order.Total)),
		)
		return Receipt{}, ErrOrderIncomplete
	}

	receipt := o.buildReceipt(order, form, req.Lines)
	o.afterSuccess(ctx, logger, req, form, receipt)
	logger.Info("order placed",
		zap.String("order_number", receipt.OrderNumber),
		zap.Int64("total_poisha", int64(receipt.Total)),
	)
	return receipt, nil
}

// verdictFor reuses an allowed verdict obtained earlier on the same request,
// otherwise asks the risk service. The service caches computed verdicts, so
// the second path is cheap for repeat phones.
func (o *Orchestrator) verdictFor(ctx context.Context, req SubmitRequest, phone string) risk.Verdict {
	if req.PriorVerdict != nil && req.PriorVerdict.Allowed {
		return *req.PriorVerdict
	}
	return o.risk.Verify(ctx, phone)
}

// syncCart pushes the local cart into the remote session in concurrent
// batches. Session tokens rotate on any call; the freshest token wins.
func (o *Orchestrator) syncCart(ctx context.Context, token string, lines []domain.CartLine) (string, error) {
	var tokenMu sync.Mutex
	current := token

	for start := 0; start < len(lines); start += o.batchSize {
		end := start + o.batchSize
		if end > len(lines) {
			end = len(lines)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, line := range lines[start:end] {
			line := line
			group.Go(func() error {
				tokenMu.Lock()
				snapshot := current
				tokenMu.Unlock()

				rotated, err := o.commerce.AddCartLine(groupCtx, snapshot, line)
				if rotated != "" {
					tokenMu.Lock()
					current = rotated
					tokenMu.Unlock()
				}
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return current, err
		}

		if end < len(lines) && o.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return current, ctx.Err()
			case <-time.After(o.batchDelay):
			}
		}
	}
	return current, nil
}

// verifyCart reads the remote cart back and logs mismatches. A verification
// failure never aborts a submission; the checkout mutation operates on the
// server-side cart either way.
func (o *Orchestrator) verifyCart(ctx context.Context, logger *zap.Logger, token string, lines []domain.CartLine) string {
	remote, rotated, err := o.commerce.GetCart(ctx, token)
	if rotated != "" {
		token = rotated
	}
	if err != nil {
		logger.Warn("cart verification failed", zap.Error(err))
		return token
	}

	wantQty := 0
	for _, line := range lines {
		wantQty += line.Quantity
	}
	gotQty := 0
	for _, line := range remote.Lines {
		gotQty += line.Quantity
	}
	if len(remote.Lines) != len(lines) || gotQty != wantQty {
		logger.Warn("remote cart diverges from submission",
			zap.Int("local_lines", len(lines)),
			zap.Int("remote_lines", len(remote.Lines)),
			zap.Int("local_quantity", wantQty),
			zap.Int("remote_quantity", gotQty),
		)
	}
	return token
}

// placeOrder submits the checkout mutation under the configured timeout and
// retries exactly once when the first attempt times out. Other failures
// surface immediately; a duplicate-order risk only exists for timeouts, where
// the first attempt is presumed dead.
func (o *Orchestrator) placeOrder(ctx context.Context, logger *zap.Logger, token string, form domain.CheckoutForm, note string) (domain.PlacedOrder, error) {
	input := commerce.OrderInput{
		FullName:       form.FullName,
		Phone:          form.Phone,
		Address:        form.Address,
		City:           cityFor(form.DeliveryZone),
		PaymentMethod:  string(form.PaymentMethod),
		ShippingMethod: "flat_rate",
		CustomerNote:   note,
		Metadata: map[string]string{
			"delivery_zone":     string(form.DeliveryZone),
			"delivery_estimate": deliveryLabelFor(form.DeliveryZone),
		},
	}

	attempt := func() (domain.PlacedOrder, string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, o.orderTimeout)
		defer cancel()
		return o.commerce.PlaceOrder(attemptCtx, token, input)
	}

	order, rotated, err := attempt()
	if err == nil {
		return order, nil
	}
	if rotated != "" {
		token = rotated
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return domain.PlacedOrder{}, err
	}

	logger.Warn("order placement timed out, retrying once", zap.Error(err))
	order, _, err = attempt()
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("%w: %w", ErrPlacementFailed, err)
	}
	return order, nil
}

// orderComplete rejects placeholder confirmations the upstream is known to
// emit when the order did not actually persist.
func orderComplete(order domain.PlacedOrder) bool {
	switch order.OrderNumber {
	case "", "0", "null", "undefined":
		return false
	}
	return order.Total > 0
}

func (o *Orchestrator) buildReceipt(order domain.PlacedOrder, form domain.CheckoutForm, lines []domain.CartLine) Receipt {
	subtotal := domain.Subtotal(lines)
	shipping := o.shippingFor(form.DeliveryZone)
	label := deliveryLabelFor(form.DeliveryZone)

	snapshots := make([]domain.OrderLineSnapshot, 0, len(lines))
	for _, line := range lines {
		snapshots = append(snapshots, domain.OrderLineSnapshot{
			ProductID:     line.ProductID,
			VariationID:   line.VariationID,
			Quantity:      line.Quantity,
			LineTotal:     line.LineTotal,
			DeliveryLabel: label,
		})
	}
	return Receipt{
		OrderNumber:  order.OrderNumber,
		Subtotal:     subtotal,
		Shipping:     shipping,
		Total:        order.Total,
		DisplayTotal: order.Total.DisplayBDT(),
		Lines:        snapshots,
		RedirectURL:  "/order-received/" + order.OrderNumber,
	}
}

// afterSuccess runs the post-placement bookkeeping. Every step is best-effort:
// the order already exists upstream, so failures here degrade the next visit
// rather than the current one.
func (o *Orchestrator) afterSuccess(ctx context.Context, logger *zap.Logger, req SubmitRequest, form domain.CheckoutForm, receipt Receipt) {
	profile := domain.CustomerProfile{
		FullName:     form.FullName,
		Phone:        form.Phone,
		Address:      form.Address,
		DeliveryZone: form.DeliveryZone,
	}
	if raw, err := json.Marshal(profile); err == nil {
		if err := o.store.Set(ctx, profileKey(form.Phone), raw); err != nil {
			logger.Warn("profile persistence degraded", zap.Error(err))
		}
	}

	snapshot := domain.OrderSnapshot{
		OrderNumber: receipt.OrderNumber,
		Total:       receipt.Total,
		Subtotal:    receipt.Subtotal,
		Shipping:    receipt.Shipping,
		Lines:       receipt.Lines,
		PlacedAt:    o.clock(),
	}
	if raw, err := json.Marshal(snapshot); err == nil {
		if err := o.store.Set(ctx, snapshotKey(req.SessionID), raw); err != nil {
			logger.Warn("order snapshot persistence degraded", zap.Error(err))
		}
	}

	if o.values != nil {
		if err := o.values.UpdateCustomerValue(ctx, form.Phone, receipt.Subtotal); err != nil {
			logger.Warn("customer value update failed", zap.Error(err))
		}
	}
	if o.events != nil {
		o.events.Add(purchaseEvent(form.Phone, receipt, req.Lines), analytics.PriorityHigh)
	}
	if err := o.store.Delete(ctx, cartKey(req.SessionID)); err != nil {
		logger.Warn("cart record cleanup failed", zap.Error(err))
	}
}

// purchaseEvent builds the Purchase tracking event. The event value excludes
// shipping so reported revenue matches product sales.
func purchaseEvent(phone string, receipt Receipt, lines []domain.CartLine) analytics.Event {
	ids := make([]string, 0, len(lines))
	contents := make([]analytics.ContentItem, 0, len(lines))
	numItems := 0
	for _, line := range lines {
		id := fmt.Sprintf("%d", line.ProductID)
		ids = append(ids, id)
		contents = append(contents, analytics.ContentItem{
			ID:        id,
			Quantity:  line.Quantity,
			ItemPrice: line.UnitPrice.Taka(),
		})
		numItems += line.Quantity
	}

	event := analytics.NewEvent(analytics.KindPurchase)
	event.CustomerID = phone
	event.Commerce = &analytics.CommercePayload{
		IDs:         ids,
		ContentType: "product",
		Contents:    contents,
		Currency:    "BDT",
		Value:       receipt.Subtotal.Taka(),
		NumItems:    numItems,
	}
	event.Extra = map[string]any{"order_number": receipt.OrderNumber}
	return event
}

func (o *Orchestrator) shippingFor(zone domain.DeliveryZone) domain.Amount {
	if zone == domain.ZoneInsideDhaka {
		return o.shippingInside
	}
	return o.shippingOutside
}

func deliveryLabelFor(zone domain.DeliveryZone) string {
	if zone == domain.ZoneInsideDhaka {
		return "1-2 days"
	}
	return "3-5 days"
}

func cityFor(zone domain.DeliveryZone) string {
	if zone == domain.ZoneInsideDhaka {
		return "Dhaka"
	}
	return ""
}

// acquire reserves the session's submission slot and records the attempt
// against the trailing window. Attempts are counted even when the submission
// later fails; only the slot itself is released.
func (o *Orchestrator) acquire(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inflight == nil {
		o.inflight = make(map[string]bool)
		o.submissions = make(map[string][]time.Time)
		o.states = make(map[string]State)
	}
	if o.inflight[sessionID] {
		return ErrSubmitInProgress
	}

	now := o.clock()
	cutoff := now.Add(-o.submitWindow)
	o.pruneLocked(cutoff)

	recent := o.submissions[sessionID][:0]
	for _, at := range o.submissions[sessionID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= o.maxAttempts {
		o.submissions[sessionID] = recent
		return ErrSubmitRateLimited
	}
	o.submissions[sessionID] = append(recent, now)
	o.inflight[sessionID] = true
	return nil
}

// pruneLocked drops sessions whose newest attempt fell out of the trailing
// window. Their state resets to idle; in-flight sessions are kept.
func (o *Orchestrator) pruneLocked(cutoff time.Time) {
	for session, attempts := range o.submissions {
		if o.inflight[session] {
			continue
		}
		if len(attempts) > 0 && attempts[len(attempts)-1].After(cutoff) {
			continue
		}
		delete(o.submissions, session)
		delete(o.states, session)
	}
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, sessionID)
}

func (o *Orchestrator) setState(sessionID string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.states == nil {
		o.states = make(map[string]State)
	}
	o.states[sessionID] = state
}

func profileKey(phone string) string    { return "profile:" + phone }
func snapshotKey(session string) string { return "order:last:" + session }
func cartKey(session string) string     { return "cart:" + session }

// Profile returns the persisted profile for a phone identifier, if any.
func (o *Orchestrator) Profile(ctx context.Context, phone string) (domain.CustomerProfile, bool) {
	raw, err := o.store.Get(ctx, profileKey(phone))
	if err != nil {
		return domain.CustomerProfile{}, false
	}
	var profile domain.CustomerProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.CustomerProfile{}, false
	}
	return profile, true
}

// LastOrder returns the most recent order snapshot for a session, if any.
func (o *Orchestrator) LastOrder(ctx context.Context, sessionID string) (domain.OrderSnapshot, bool) {
	raw, err := o.store.Get(ctx, snapshotKey(sessionID))
	if err != nil {
		return domain.OrderSnapshot{}, false
	}
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.OrderSnapshot{}, false
	}
	return snapshot, true
}
