package payments

// Config holds the payment processor credentials. Both values are required
// to talk to the live Stripe API; when they are absent the service runs in
// unconfigured mode and every payment operation fails with ErrNotConfigured.
type Config struct {
	APIKey        string
	WebhookSecret string
}
