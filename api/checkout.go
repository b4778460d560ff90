package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/errors"
	"github.com/substore/store-backend/payments"
	"go.vocdoni.io/dvote/log"
)

// maxWebhookBodyBytes bounds the webhook payload size, as the processor
// recommends.
const maxWebhookBodyBytes = int64(65536)

// createCheckoutSessionHandler opens a payment checkout session for a
// subscription plan and returns the session ID and the hosted payment page
// URL. The charged amount comes from the catalog, never from the request.
func (a *API) createCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	checkoutInfo := &CheckoutRequest{}
	if err := json.NewDecoder(r.Body).Decode(checkoutInfo); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if checkoutInfo.PlanID == "" {
		errors.ErrMalformedBody.Withf("subscription plan ID is required").Write(w)
		return
	}
	originURL := checkoutInfo.OriginURL
	if originURL == "" {
		originURL = a.webAppURL
	}
	tx, checkoutURL, err := a.payments.OpenSession(checkoutInfo.PlanID, checkoutInfo.UserEmail, originURL)
	if err != nil {
		switch {
		case err == payments.ErrNotConfigured:
			errors.ErrPaymentProcessorUnavailable.Write(w)
		case err == catalog.ErrPlanNotFound:
			errors.ErrPlanNotFound.Write(w)
		default:
			errors.ErrStripeError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteJSON(w, &CheckoutResponse{
		SessionID: tx.SessionID,
		URL:       checkoutURL,
	})
}

// checkoutStatusHandler polls the payment processor for the state of a
// checkout session, reconciles the stored transaction with it and returns the
// transaction.
func (a *API) checkoutStatusHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		errors.ErrMalformedURLParam.Withf("sessionID is required").Write(w)
		return
	}
	tx, err := a.payments.SessionStatus(sessionID)
	if err != nil {
		switch {
		case err == payments.ErrNotConfigured:
			errors.ErrPaymentProcessorUnavailable.Write(w)
		case err == db.ErrNotFound:
			errors.ErrTransactionNotFound.Write(w)
		default:
			errors.ErrStripeError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteJSON(w, tx)
}

// stripeWebhookHandler receives payment processor events. Responses follow
// the processor's retry semantics: a 2xx acknowledges the event, a 4xx
// rejects it without retry and a 5xx asks for a redelivery.
func (a *API) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("stripe webhook: error reading request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		log.Errorf("stripe webhook: missing Stripe-Signature header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = a.payments.HandleWebhookEvent(payload, signatureHeader)
	if err != nil && err != payments.ErrEventAlreadyProcessed {
		log.Errorf("stripe webhook: failed to process event: %v", err)
		switch {
		case payments.IsSignatureError(err):
			w.WriteHeader(http.StatusBadRequest)
		case err == payments.ErrNotConfigured, payments.IsRetryableError(err):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	// redeliveries of an already processed event are acknowledged too
	httpWriteOK(w)
}
