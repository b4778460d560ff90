package db

import (
	"time"
)

// User is a registered store account. No credential is stored: registration
// discards the password and login only checks that the email exists. Real
// credential verification must be added before this can be treated as
// authentication.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	FirstName string    `json:"first_name" bson:"firstName"`
	LastName  string    `json:"last_name" bson:"lastName"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
	Active    bool      `json:"is_active" bson:"active"`
}

// Order is a purchase record for a subscription plan. Amount and currency are
// always copied from the catalog plan, never from client input. Orders created
// by the payment flow carry the payment session identifier; a partial unique
// index on that field guarantees at most one completed order per session.
type Order struct {
	ID               string      `json:"id" bson:"_id"`
	UserEmail        string      `json:"user_email,omitempty" bson:"userEmail,omitempty"`
	PlanID           string      `json:"subscription_plan_id" bson:"planID"`
	Amount           float64     `json:"amount" bson:"amount"`
	Currency         string      `json:"currency" bson:"currency"`
	Status           OrderStatus `json:"status" bson:"status"`
	PaymentSessionID string      `json:"payment_session_id,omitempty" bson:"paymentSessionID,omitempty"`
	CreatedAt        time.Time   `json:"created_at" bson:"createdAt"`
	UpdatedAt        time.Time   `json:"updated_at" bson:"updatedAt"`
}

// PaymentTransaction tracks a checkout session opened with the payment
// processor. It is created as pending when the session is opened and mutated
// only by the status reconciliation (poll or webhook); it is never deleted.
type PaymentTransaction struct {
	ID            string            `json:"id" bson:"_id"`
	SessionID     string            `json:"session_id" bson:"sessionID"`
	UserEmail     string            `json:"user_email,omitempty" bson:"userEmail,omitempty"`
	PlanID        string            `json:"subscription_plan_id" bson:"planID"`
	Amount        float64           `json:"amount" bson:"amount"`
	Currency      string            `json:"currency" bson:"currency"`
	Status        TransactionStatus `json:"status" bson:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status" bson:"paymentStatus"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"createdAt"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updatedAt"`
}
