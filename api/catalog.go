package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/substore/store-backend/errors"
)

const (
	serverInfoMessage = "Premium Subscription Store API"
	serverVersion     = "1.0.0"
)

// serverInfoHandler returns the service name and version.
func (*API) serverInfoHandler(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, &ServerInfo{
		Message: serverInfoMessage,
		Version: serverVersion,
	})
}

// plansHandler returns all the available subscription plans.
func (a *API) plansHandler(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, a.catalog.Plans())
}

// planInfoHandler returns a single subscription plan by ID.
func (a *API) planInfoHandler(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if planID == "" {
		errors.ErrMalformedURLParam.Withf("planID is required").Write(w)
		return
	}
	plan, err := a.catalog.Plan(planID)
	if err != nil {
		errors.ErrPlanNotFound.Write(w)
		return
	}
	httpWriteJSON(w, plan)
}
