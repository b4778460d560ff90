package payments

import (
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
)

func TestOpenSession(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, _ := newTestService(t)

	// unknown plan
	_, _, err := service.OpenSession("no-such-plan", testUserEmail, testOriginURL)
	c.Assert(err, qt.Equals, catalog.ErrPlanNotFound)

	// open a session for a known plan
	tx, checkoutURL, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	c.Assert(checkoutURL, qt.Not(qt.Equals), "")
	c.Assert(tx.SessionID, qt.Not(qt.Equals), "")
	c.Assert(tx.Status, qt.Equals, db.TransactionStatusPending)
	c.Assert(tx.PaymentStatus, qt.Equals, db.PaymentStatusPending)
	// price and currency come from the catalog
	c.Assert(tx.Amount, qt.Equals, testPlanPrice)
	c.Assert(tx.Currency, qt.Equals, "USD")

	// the transaction is persisted
	stored, err := testDB.TransactionBySession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.PlanID, qt.Equals, testPlanID)
	c.Assert(stored.UserEmail, qt.Equals, testUserEmail)
}

func TestSessionStatusPoll(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, processor := newTestService(t)

	// unknown session
	_, err := service.SessionStatus("cs_test_unknown")
	c.Assert(err, qt.Equals, db.ErrNotFound)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)

	// polling an unchanged session writes nothing and creates no order
	polled, err := service.SessionStatus(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(polled.Status, qt.Equals, db.TransactionStatusPending)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 0)

	// the user pays; the next poll settles the session and creates the order
	processor.pay(tx.SessionID)
	polled, err = service.SessionStatus(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(polled.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(polled.PaymentStatus, qt.Equals, db.PaymentStatusPaid)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)

	order, err := testDB.OrderByPaymentSession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(order.Status, qt.Equals, db.OrderStatusCompleted)
	c.Assert(order.PlanID, qt.Equals, testPlanID)
	c.Assert(order.Amount, qt.Equals, testPlanPrice)
	c.Assert(order.UserEmail, qt.Equals, testUserEmail)

	// repeated polls are idempotent: same state, still one order
	polled, err = service.SessionStatus(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(polled.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)
}

// TestSessionStatusPollRecovery checks that a poll interrupted between the
// order insert and the transaction update leaves a state a later poll can
// finish from without duplicating the order.
func TestSessionStatusPollRecovery(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, processor := newTestService(t)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	processor.pay(tx.SessionID)

	// the order exists but the transaction is still pending, as if the
	// previous poll failed right after the insert
	c.Assert(testDB.SetOrder(&db.Order{
		UserEmail:        testUserEmail,
		PlanID:           testPlanID,
		Amount:           testPlanPrice,
		Currency:         "USD",
		Status:           db.OrderStatusCompleted,
		PaymentSessionID: tx.SessionID,
	}), qt.IsNil)

	polled, err := service.SessionStatus(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(polled.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(polled.PaymentStatus, qt.Equals, db.PaymentStatusPaid)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)
}

func TestSessionStatusExpired(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, processor := newTestService(t)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)

	processor.expire(tx.SessionID)
	polled, err := service.SessionStatus(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(polled.Status, qt.Equals, db.TransactionStatusExpired)
	c.Assert(polled.PaymentStatus, qt.Equals, db.PaymentStatusExpired)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 0)
}

func TestWebhookCreatesOrderOnce(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, processor := newTestService(t)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	processor.pay(tx.SessionID)

	payload := sessionEventPayload("evt_001",
		stripeapi.EventTypeCheckoutSessionCompleted, tx.SessionID, "complete", "paid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)

	stored, err := testDB.TransactionBySession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(stored.PaymentStatus, qt.Equals, db.PaymentStatusPaid)

	// a redelivery of the same event is dropped by the event store
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.Equals, ErrEventAlreadyProcessed)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)

	// a distinct event for the same session finds the order and skips it
	payload = sessionEventPayload("evt_002",
		stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded, tx.SessionID, "complete", "paid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)
}

func TestWebhookUnpaidSessionCreatesNoOrder(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, _ := newTestService(t)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)

	// a completed session with the async payment still in flight stays pending
	payload := sessionEventPayload("evt_010",
		stripeapi.EventTypeCheckoutSessionCompleted, tx.SessionID, "complete", "unpaid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 0)
	stored, err := testDB.TransactionBySession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusPending)
}

func TestWebhookTerminalEvents(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, _ := newTestService(t)

	// payment failure marks the transaction failed
	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	payload := sessionEventPayload("evt_020",
		stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed, tx.SessionID, "complete", "unpaid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	stored, err := testDB.TransactionBySession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusFailed)

	// expiry marks the transaction expired
	tx2, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	payload = sessionEventPayload("evt_021",
		stripeapi.EventTypeCheckoutSessionExpired, tx2.SessionID, "expired", "unpaid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	stored, err = testDB.TransactionBySession(tx2.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusExpired)

	// a late terminal event never downgrades a completed session
	tx3, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	payload = sessionEventPayload("evt_022",
		stripeapi.EventTypeCheckoutSessionCompleted, tx3.SessionID, "complete", "paid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	payload = sessionEventPayload("evt_023",
		stripeapi.EventTypeCheckoutSessionExpired, tx3.SessionID, "expired", "unpaid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	stored, err = testDB.TransactionBySession(tx3.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(countOrders(t, tx3.SessionID), qt.Equals, 1)
}

func TestWebhookInvalidSignature(t *testing.T) {
	c := qt.New(t)
	service, _ := newTestService(t)

	payload := sessionEventPayload("evt_030",
		stripeapi.EventTypeCheckoutSessionCompleted, "cs_test_tampered", "complete", "paid")
	err := service.HandleWebhookEvent(payload, "t=1234,v1=forged")
	c.Assert(err, qt.IsNotNil)
	c.Assert(IsSignatureError(err), qt.IsTrue)
}

func TestWebhookUnknownSession(t *testing.T) {
	c := qt.New(t)
	service, _ := newTestService(t)

	// events for sessions this backend never opened are acknowledged
	payload := sessionEventPayload("evt_040",
		stripeapi.EventTypeCheckoutSessionCompleted, "cs_test_foreign", "complete", "paid")
	c.Assert(service.HandleWebhookEvent(payload, fakeSignature), qt.IsNil)
	c.Assert(countOrders(t, "cs_test_foreign"), qt.Equals, 0)
}

// TestConcurrentPollAndWebhook exercises the race the reconciliation is built
// for: many status polls and webhook deliveries for the same paid session
// land at once, and exactly one completed order must come out.
func TestConcurrentPollAndWebhook(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)
	service, processor := newTestService(t)

	tx, _, err := service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.IsNil)
	processor.pay(tx.SessionID)

	const workers = 16
	withDeadline(t, 60*time.Second, func() {
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := service.SessionStatus(tx.SessionID); err != nil {
					t.Errorf("poll failed: %v", err)
				}
			}()
			go func(n int) {
				defer wg.Done()
				// distinct event IDs so the dedup store does not shortcut the race
				payload := sessionEventPayload(fmt.Sprintf("evt_race_%03d", n),
					stripeapi.EventTypeCheckoutSessionCompleted, tx.SessionID, "complete", "paid")
				if err := service.HandleWebhookEvent(payload, fakeSignature); err != nil {
					t.Errorf("webhook failed: %v", err)
				}
			}(i)
		}
		wg.Wait()
	})

	c.Assert(countOrders(t, tx.SessionID), qt.Equals, 1)
	stored, err := testDB.TransactionBySession(tx.SessionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.TransactionStatusCompleted)
	c.Assert(stored.PaymentStatus, qt.Equals, db.PaymentStatusPaid)
}

func TestServiceNotConfigured(t *testing.T) {
	c := qt.New(t)
	service, err := New(nil, testDB, testCatalog, nil)
	c.Assert(err, qt.IsNil)
	defer service.Close()
	c.Assert(service.Configured(), qt.IsFalse)

	_, _, err = service.OpenSession(testPlanID, testUserEmail, testOriginURL)
	c.Assert(err, qt.Equals, ErrNotConfigured)
	_, err = service.SessionStatus("cs_test_001")
	c.Assert(err, qt.Equals, ErrNotConfigured)
	err = service.HandleWebhookEvent([]byte("{}"), fakeSignature)
	c.Assert(err, qt.Equals, ErrNotConfigured)
}
