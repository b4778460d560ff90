package api

import (
	"encoding/json"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/substore/store-backend/db"
)

func TestCreateOrder(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)

	// unknown plan
	status, _ := doRequest(t, http.MethodPost, testAPIURL(ordersEndpoint), "", mustMarshal(&OrderRequest{
		UserEmail: testEmail,
		PlanID:    "no-such-plan",
	}))
	c.Assert(status, qt.Equals, http.StatusNotFound)

	// malformed email
	status, _ = doRequest(t, http.MethodPost, testAPIURL(ordersEndpoint), "", mustMarshal(&OrderRequest{
		UserEmail: "not-an-email",
		PlanID:    testPlanID,
	}))
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	// the email is optional, anonymous orders are allowed
	status, body := doRequest(t, http.MethodPost, testAPIURL(ordersEndpoint), "", mustMarshal(&OrderRequest{
		PlanID: testPlanID,
	}))
	c.Assert(status, qt.Equals, http.StatusOK)
	anonOrder := &db.Order{}
	c.Assert(json.Unmarshal(body, anonOrder), qt.IsNil)
	c.Assert(anonOrder.UserEmail, qt.Equals, "")
	c.Assert(anonOrder.Status, qt.Equals, db.OrderStatusPending)

	// the amount in the request body is ignored, the plan price is used
	status, body = doRequest(t, http.MethodPost, testAPIURL(ordersEndpoint), "",
		[]byte(`{"user_email":"user@test.com","subscription_plan_id":"capcut-pro-monthly","amount":0.01}`))
	c.Assert(status, qt.Equals, http.StatusOK)
	order := &db.Order{}
	c.Assert(json.Unmarshal(body, order), qt.IsNil)
	c.Assert(order.ID, qt.Not(qt.Equals), "")
	c.Assert(order.Amount, qt.Equals, testPlanPrice)
	c.Assert(order.Currency, qt.Equals, "USD")
	c.Assert(order.Status, qt.Equals, db.OrderStatusPending)

	// the order can be fetched by ID
	status, body = doRequest(t, http.MethodGet, testAPIURL("/orders/"+order.ID), "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	fetched := &db.Order{}
	c.Assert(json.Unmarshal(body, fetched), qt.IsNil)
	c.Assert(fetched.ID, qt.Equals, order.ID)

	// unknown order
	status, _ = doRequest(t, http.MethodGet, testAPIURL("/orders/no-such-order"), "", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
}

func TestListOrders(t *testing.T) {
	defer func() {
		if err := testDB.Reset(); err != nil {
			t.Error(err)
		}
	}()
	c := qt.New(t)

	// an empty ledger lists as an empty array
	status, body := doRequest(t, http.MethodGet, testAPIURL(ordersEndpoint), "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	var orders []*db.Order
	c.Assert(json.Unmarshal(body, &orders), qt.IsNil)
	c.Assert(orders, qt.HasLen, 0)

	// create orders for two different users
	for _, email := range []string{testEmail, testEmail, "other@test.com"} {
		status, _ := doRequest(t, http.MethodPost, testAPIURL(ordersEndpoint), "", mustMarshal(&OrderRequest{
			UserEmail: email,
			PlanID:    testPlanID,
		}))
		c.Assert(status, qt.Equals, http.StatusOK)
	}

	// list all orders
	status, body = doRequest(t, http.MethodGet, testAPIURL(ordersEndpoint), "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, &orders), qt.IsNil)
	c.Assert(orders, qt.HasLen, 3)

	// filter by user email
	status, body = doRequest(t, http.MethodGet, testAPIURL(ordersEndpoint)+"?user_email="+testEmail, "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, &orders), qt.IsNil)
	c.Assert(orders, qt.HasLen, 2)
	for _, order := range orders {
		c.Assert(order.UserEmail, qt.Equals, testEmail)
	}
}
