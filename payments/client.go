package payments

import (
	stripeapi "github.com/stripe/stripe-go/v81"
	stripecheckoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"

	"github.com/substore/store-backend/db"
)

// CheckoutParams holds parameters for creating a checkout session. The amount
// is expressed in the smallest currency unit, as the processor expects.
type CheckoutParams struct {
	ProductName   string
	CustomerEmail string
	AmountCents   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the subset of a newly created checkout session the
// backend needs: the session identifier to track and the hosted payment page
// URL to redirect the user to.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// SessionStatus represents the remote state of a checkout session, already
// mapped to the backend status vocabulary.
type SessionStatus struct {
	SessionID     string               `json:"session_id"`
	Status        db.TransactionStatus `json:"status"`
	PaymentStatus db.PaymentStatus     `json:"payment_status"`
	CustomerEmail string               `json:"customer_email,omitempty"`
}

// Processor abstracts the remote payment API so the reconciliation logic can
// be exercised without network access. Client implements it against Stripe.
type Processor interface {
	CreateCheckoutSession(params *CheckoutParams) (*CheckoutSession, error)
	CheckoutSessionStatus(sessionID string) (*SessionStatus, error)
	DecodeWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error)
}

// Client wraps the Stripe API client with additional functionality
type Client struct {
	config *Config
}

// NewClient creates a new Stripe client with the given configuration
func NewClient(config *Config) *Client {
	stripeapi.Key = config.APIKey

	return &Client{
		config: config,
	}
}

// CreateCheckoutSession creates a new one-time payment checkout session with
// an inline price, so no product catalog needs to exist on the Stripe side.
// Overview of stripe checkout mechanics: https://docs.stripe.com/payments/checkout
// API description https://docs.stripe.com/api/checkout/sessions
func (*Client) CreateCheckoutSession(params *CheckoutParams) (*CheckoutSession, error) {
	checkoutParams := &stripeapi.CheckoutSessionParams{
		Mode: stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(params.Currency),
					UnitAmount: stripeapi.Int64(params.AmountCents),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(params.ProductName),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(params.SuccessURL),
		CancelURL:  stripeapi.String(params.CancelURL),
	}
	if params.CustomerEmail != "" {
		checkoutParams.CustomerEmail = stripeapi.String(params.CustomerEmail)
	}
	for key, value := range params.Metadata {
		checkoutParams.AddMetadata(key, value)
	}

	session, err := stripecheckoutsession.New(checkoutParams)
	if err != nil {
		return nil, ErrAPICallFailed.WithErr(err)
	}

	return &CheckoutSession{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}

// CheckoutSessionStatus retrieves the current state of a checkout session by
// ID and maps it to the backend status vocabulary.
func (*Client) CheckoutSessionStatus(sessionID string) (*SessionStatus, error) {
	session, err := stripecheckoutsession.Get(sessionID, nil)
	if err != nil {
		return nil, ErrAPICallFailed.WithErr(err)
	}

	status := &SessionStatus{
		SessionID:     session.ID,
		Status:        MapSessionStatus(session.Status),
		PaymentStatus: MapPaymentStatus(session.PaymentStatus),
	}
	if session.CustomerDetails != nil {
		status.CustomerEmail = session.CustomerDetails.Email
	}
	return status, nil
}

// DecodeWebhookEvent validates the payload signature and parses the event
func (c *Client) DecodeWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEvent(payload, signatureHeader, c.config.WebhookSecret)
	if err != nil {
		return nil, ErrWebhookValidation.WithErr(err)
	}
	return &event, nil
}

// MapSessionStatus translates a remote checkout session status into a
// transaction status. Unknown statuses map to pending so that a later poll
// can still settle the session.
func MapSessionStatus(status stripeapi.CheckoutSessionStatus) db.TransactionStatus {
	switch status {
	case stripeapi.CheckoutSessionStatusComplete:
		return db.TransactionStatusCompleted
	case stripeapi.CheckoutSessionStatusExpired:
		return db.TransactionStatusExpired
	case stripeapi.CheckoutSessionStatusOpen:
		return db.TransactionStatusPending
	default:
		return db.TransactionStatusPending
	}
}

// MapPaymentStatus translates a remote payment status into the backend
// vocabulary. A session with no payment required counts as paid.
func MapPaymentStatus(status stripeapi.CheckoutSessionPaymentStatus) db.PaymentStatus {
	switch status {
	case stripeapi.CheckoutSessionPaymentStatusPaid,
		stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired:
		return db.PaymentStatusPaid
	case stripeapi.CheckoutSessionPaymentStatusUnpaid:
		return db.PaymentStatusPending
	default:
		return db.PaymentStatusPending
	}
}
