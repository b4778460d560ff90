package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/errors"
	"github.com/substore/store-backend/internal"
	"go.vocdoni.io/dvote/log"
)

// createOrderHandler creates a new pending order for a subscription plan. The
// amount and currency are always copied from the catalog plan, never taken
// from the request.
func (a *API) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderInfo := &OrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(orderInfo); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	// the email is optional, but must be well-formed when present
	if orderInfo.UserEmail != "" && !internal.ValidEmail(orderInfo.UserEmail) {
		errors.ErrEmailMalformed.Write(w)
		return
	}
	// validate the subscription plan exists
	plan, err := a.catalog.Plan(orderInfo.PlanID)
	if err != nil {
		errors.ErrPlanNotFound.Write(w)
		return
	}
	order := &db.Order{
		UserEmail: orderInfo.UserEmail,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Currency:  plan.Currency,
		Status:    db.OrderStatusPending,
	}
	if err := a.db.SetOrder(order); err != nil {
		log.Warnw("could not create order", "error", err)
		errors.ErrInternalStorageError.Write(w)
		return
	}
	httpWriteJSON(w, order)
}

// orderInfoHandler returns a single order by ID.
func (a *API) orderInfoHandler(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		errors.ErrMalformedURLParam.Withf("orderID is required").Write(w)
		return
	}
	order, err := a.db.Order(orderID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrOrderNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.Write(w)
		return
	}
	httpWriteJSON(w, order)
}

// ordersHandler returns all orders, optionally filtered by the user_email
// query parameter.
func (a *API) ordersHandler(w http.ResponseWriter, r *http.Request) {
	userEmail := r.URL.Query().Get("user_email")
	orders, err := a.db.Orders(userEmail)
	if err != nil {
		errors.ErrInternalStorageError.Write(w)
		return
	}
	if orders == nil {
		orders = []*db.Order{}
	}
	httpWriteJSON(w, orders)
}
