package api

import (
	"time"
)

// UserInfo is the request body for user registration and login. The password
// is required on registration but never stored; see db.User.
type UserInfo struct {
	Email     string `json:"email,omitempty"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LoginResponse is the response of the login request which includes the JWT token
type LoginResponse struct {
	Token    string    `json:"token"`
	Expirity time.Time `json:"expirity"`
	UserID   string    `json:"user_id,omitempty"`
}

// OrderRequest is the request body for creating an order.
type OrderRequest struct {
	UserEmail string `json:"user_email"`
	PlanID    string `json:"subscription_plan_id"`
}

// CheckoutRequest is the request body for opening a checkout session. The
// origin URL is where the payment page redirects the user afterwards.
type CheckoutRequest struct {
	PlanID    string `json:"subscription_plan_id"`
	UserEmail string `json:"user_email,omitempty"`
	OriginURL string `json:"origin_url,omitempty"`
}

// CheckoutResponse carries the opened session ID and the hosted payment page
// URL to redirect the user to.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ServerInfo is the response of the API index route.
type ServerInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
}
