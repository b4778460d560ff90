// Package payments drives the checkout flow against the payment processor
// and reconciles payment state into the order ledger. Reconciliation runs
// from two racing sources, the client status poll and the processor webhook,
// and guarantees at most one completed order per checkout session.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/notifications"
	"go.vocdoni.io/dvote/log"
)

const (
	// checkoutSuccessPath is appended to the origin URL; the processor
	// substitutes the session ID placeholder on redirect.
	checkoutSuccessPath = "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	checkoutCancelPath  = "/checkout/cancel"

	receiptTimeout = 10 * time.Second

	// maintenanceInterval is how often idle per-session locks are released.
	maintenanceInterval = time.Hour
)

// Service provides the main business logic for payment operations
type Service struct {
	client          Processor
	db              *db.MongoStorage
	catalog         *catalog.Catalog
	mail            notifications.NotificationService
	processedEvents *MemoryEventStore
	lockManager     *LockManager
	stop            chan struct{}
}

// New creates a new payment service. The processor may be nil, in which case
// the service reports unconfigured and every payment operation fails with
// ErrNotConfigured; the mail service may be nil to disable order receipts.
func New(
	processor Processor, database *db.MongoStorage,
	plans *catalog.Catalog, mail notifications.NotificationService,
) (*Service, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if plans == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	svc := &Service{
		client:          processor,
		db:              database,
		catalog:         plans,
		mail:            mail,
		processedEvents: NewMemoryEventStore(0),
		lockManager:     NewLockManager(),
		stop:            make(chan struct{}),
	}
	go svc.maintenance()
	return svc, nil
}

// maintenance drops session locks no goroutine holds, so memory stays bounded
// over a long run with many sessions.
func (s *Service) maintenance() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.lockManager.CleanupLocks()
		}
	}
}

// Close stops the background goroutines of the service.
func (s *Service) Close() {
	close(s.stop)
	s.processedEvents.Close()
}

// Configured reports whether a payment processor is wired in.
func (s *Service) Configured() bool {
	return s.client != nil
}

// OpenSession creates a checkout session for the given plan and records a
// pending payment transaction for it. The charged amount and currency come
// from the catalog, never from the caller. It returns the stored transaction
// and the hosted payment page URL.
func (s *Service) OpenSession(planID, userEmail, originURL string) (*db.PaymentTransaction, string, error) {
	if s.client == nil {
		return nil, "", ErrNotConfigured
	}
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return nil, "", err
	}
	amountCents := int64(math.Round(plan.Price * 100))
	session, err := s.client.CreateCheckoutSession(&CheckoutParams{
		ProductName:   fmt.Sprintf("%s - %s", plan.ServiceName, plan.PlanName),
		CustomerEmail: userEmail,
		AmountCents:   amountCents,
		Currency:      plan.Currency,
		SuccessURL:    originURL + checkoutSuccessPath,
		CancelURL:     originURL + checkoutCancelPath,
		Metadata: map[string]string{
			"plan_id":    plan.ID,
			"user_email": userEmail,
		},
	})
	if err != nil {
		return nil, "", err
	}

	tx := &db.PaymentTransaction{
		SessionID:     session.ID,
		UserEmail:     userEmail,
		PlanID:        plan.ID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		Status:        db.TransactionStatusPending,
		PaymentStatus: db.PaymentStatusPending,
		Metadata:      map[string]string{"plan_id": plan.ID},
	}
	if err := s.db.SetTransaction(tx); err != nil {
		return nil, "", fmt.Errorf("cannot store payment transaction: %w", err)
	}
	log.Infow("checkout session opened",
		"sessionID", session.ID, "planID", plan.ID, "amount", plan.Price, "currency", plan.Currency)
	return tx, session.URL, nil
}

// SessionStatus fetches the remote state of the checkout session, reconciles
// the stored transaction with it and returns the transaction. The stored
// record is only written when the remote state differs from it, and a
// transition to paid that was not yet recorded as completed creates the
// completed order. The per-session lock serializes this with the webhook
// handler, so a poll racing a webhook settles the session exactly once.
func (s *Service) SessionStatus(sessionID string) (*db.PaymentTransaction, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	unlock := s.lockManager.LockSession(sessionID)
	defer unlock()

	tx, err := s.db.TransactionBySession(sessionID)
	if err != nil {
		return nil, err
	}
	remote, err := s.client.CheckoutSessionStatus(sessionID)
	if err != nil {
		return nil, err
	}
	if remote.Status == tx.Status && remote.PaymentStatus == tx.PaymentStatus {
		// nothing changed since the last reconciliation
		return tx, nil
	}

	// The order is created before the transaction is recorded as completed.
	// If the insert fails, the stored pair is left unchanged and the next
	// poll still sees a difference and retries; the inverse partial state,
	// an order without a completed transaction, is healed by the existence
	// check in completeOrder.
	if remote.PaymentStatus == db.PaymentStatusPaid && tx.Status != db.TransactionStatusCompleted {
		if err := s.completeOrder(tx); err != nil {
			return nil, err
		}
	}
	if err := s.db.UpdateTransactionStatus(sessionID, remote.Status, remote.PaymentStatus); err != nil {
		return nil, err
	}
	tx.Status = remote.Status
	tx.PaymentStatus = remote.PaymentStatus
	tx.UpdatedAt = time.Now().UTC()
	log.Infow("payment transaction reconciled",
		"sessionID", sessionID, "status", tx.Status, "paymentStatus", tx.PaymentStatus)
	return tx, nil
}

// HandleWebhookEvent processes a webhook event with idempotency
func (s *Service) HandleWebhookEvent(payload []byte, signatureHeader string) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	// Validate and parse the event
	event, err := s.client.DecodeWebhookEvent(payload, signatureHeader)
	if err != nil {
		return err
	}

	// Check if event was already processed (idempotency)
	if s.processedEvents.EventExists(event.ID) {
		log.Debugf("payments webhook: event %s already processed, skipping", event.ID)
		return ErrEventAlreadyProcessed
	}

	// Process the event based on its type
	if err := s.handleEvent(event); err != nil {
		return err
	}

	// Mark event as processed if successful
	s.processedEvents.MarkProcessed(event.ID)

	return nil
}

func (s *Service) handleEvent(event *stripeapi.Event) error {
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted,
		stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return s.handleSessionSettled(event)
	case stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed:
		return s.handleSessionFailed(event)
	case stripeapi.EventTypeCheckoutSessionExpired:
		return s.handleSessionExpired(event)
	default:
		log.Debugf("payments webhook: received unhandled event type %s (id %s)", event.Type, event.ID)
		return nil
	}
}

// handleSessionSettled processes a session whose checkout finished. The order
// is only created once the payment is actually paid; a completed session with
// an asynchronous payment still in flight is left pending until the
// async_payment_succeeded event (or a later poll) settles it.
func (s *Service) handleSessionSettled(event *stripeapi.Event) error {
	session, err := parseSessionFromEvent(event)
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockSession(session.ID)
	defer unlock()

	tx, err := s.db.TransactionBySession(session.ID)
	if err != nil {
		if err == db.ErrNotFound {
			log.Warnw("webhook for unknown checkout session",
				"sessionID", session.ID, "event", event.ID)
			return nil
		}
		return err
	}
	if MapPaymentStatus(session.PaymentStatus) != db.PaymentStatusPaid {
		return nil
	}

	if tx.Status != db.TransactionStatusCompleted || tx.PaymentStatus != db.PaymentStatusPaid {
		err := s.db.UpdateTransactionStatus(session.ID, db.TransactionStatusCompleted, db.PaymentStatusPaid)
		if err != nil {
			return err
		}
		tx.Status = db.TransactionStatusCompleted
		tx.PaymentStatus = db.PaymentStatusPaid
		log.Infow("payment transaction reconciled",
			"sessionID", session.ID, "status", tx.Status, "paymentStatus", tx.PaymentStatus)
	}
	return s.completeOrder(tx)
}

// handleSessionFailed marks the transaction as failed unless the session was
// already recorded as completed, in which case the late failure is ignored.
func (s *Service) handleSessionFailed(event *stripeapi.Event) error {
	return s.settleTerminal(event, db.TransactionStatusFailed, db.PaymentStatusFailed)
}

// handleSessionExpired marks the transaction as expired unless the session
// was already recorded as completed.
func (s *Service) handleSessionExpired(event *stripeapi.Event) error {
	return s.settleTerminal(event, db.TransactionStatusExpired, db.PaymentStatusExpired)
}

func (s *Service) settleTerminal(
	event *stripeapi.Event, status db.TransactionStatus, paymentStatus db.PaymentStatus,
) error {
	session, err := parseSessionFromEvent(event)
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockSession(session.ID)
	defer unlock()

	tx, err := s.db.TransactionBySession(session.ID)
	if err != nil {
		if err == db.ErrNotFound {
			log.Warnw("webhook for unknown checkout session",
				"sessionID", session.ID, "event", event.ID)
			return nil
		}
		return err
	}
	if tx.Status == db.TransactionStatusCompleted {
		log.Warnw("ignoring terminal event for completed session",
			"sessionID", session.ID, "event", event.ID, "eventType", event.Type)
		return nil
	}
	if tx.Status == status && tx.PaymentStatus == paymentStatus {
		return nil
	}
	if err := s.db.UpdateTransactionStatus(session.ID, status, paymentStatus); err != nil {
		return err
	}
	log.Infow("payment transaction reconciled",
		"sessionID", session.ID, "status", status, "paymentStatus", paymentStatus)
	return nil
}

// completeOrder records the completed order for a paid session. It is safe to
// call from both reconciliation paths: a session that already has an order is
// a no-op, and the partial unique index on the order collection catches the
// remaining race, turning a concurrent duplicate insert into a no-op too.
func (s *Service) completeOrder(tx *db.PaymentTransaction) error {
	if _, err := s.db.OrderByPaymentSession(tx.SessionID); err == nil {
		log.Debugf("order for session %s already exists, skipping", tx.SessionID)
		return nil
	} else if err != db.ErrNotFound {
		return err
	}

	order := &db.Order{
		UserEmail:        tx.UserEmail,
		PlanID:           tx.PlanID,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		Status:           db.OrderStatusCompleted,
		PaymentSessionID: tx.SessionID,
	}
	if err := s.db.SetOrder(order); err != nil {
		if err == db.ErrAlreadyExists {
			log.Debugf("order for session %s completed by a concurrent writer", tx.SessionID)
			return nil
		}
		return err
	}
	log.Infow("order completed",
		"orderID", order.ID, "sessionID", tx.SessionID, "planID", tx.PlanID, "amount", tx.Amount)
	s.sendReceipt(order)
	return nil
}

// sendReceipt emails the order receipt. Delivery is best effort and never
// fails the order.
func (s *Service) sendReceipt(order *db.Order) {
	if s.mail == nil || order.UserEmail == "" {
		return
	}
	plan, err := s.catalog.Plan(order.PlanID)
	if err != nil {
		log.Warnw("cannot resolve plan for order receipt", "orderID", order.ID, "planID", order.PlanID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), receiptTimeout)
	defer cancel()
	notification := &notifications.Notification{
		ToAddress: order.UserEmail,
		Subject:   fmt.Sprintf("Your %s order receipt", plan.ServiceName),
		PlainBody: fmt.Sprintf("Your order for %s (%s) is confirmed. Amount charged: %.2f %s. Order ID: %s.",
			plan.ServiceName, plan.PlanName, order.Amount, order.Currency, order.ID),
		Body: fmt.Sprintf("<p>Your order for <b>%s</b> (%s) is confirmed.</p><p>Amount charged: %.2f %s</p><p>Order ID: %s</p>",
			plan.ServiceName, plan.PlanName, order.Amount, order.Currency, order.ID),
	}
	if err := s.mail.SendNotification(ctx, notification); err != nil {
		log.Warnw("failed to send order receipt", "orderID", order.ID, "error", err)
	}
}

func parseSessionFromEvent(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session from event %s: %w", event.ID, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("event %s carries no checkout session ID", event.ID)
	}
	return &session, nil
}
