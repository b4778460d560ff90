// Package api provides the HTTP API for the subscription store backend. It
// exposes the plan catalog, user accounts, the order ledger and the payment
// checkout flow, with JWT authentication for user-scoped routes.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/payments"
	"go.vocdoni.io/dvote/log"
)

const jwtExpiration = 360 * time.Hour // 15 days

type Config struct {
	Host     string
	Port     int
	Secret   string
	DB       *db.MongoStorage
	Catalog  *catalog.Catalog
	Payments *payments.Service
	// WebAppURL is the default checkout redirect origin when the client
	// does not provide one.
	WebAppURL string
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db        *db.MongoStorage
	auth      *jwtauth.JWTAuth
	host      string
	port      int
	router    *chi.Mux
	catalog   *catalog.Catalog
	payments  *payments.Service
	secret    string
	webAppURL string
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	return &API{
		db:        conf.DB,
		auth:      jwtauth.New("HS256", []byte(conf.Secret), nil),
		host:      conf.Host,
		port:      conf.Port,
		catalog:   conf.Catalog,
		payments:  conf.Payments,
		secret:    conf.Secret,
		webAppURL: conf.WebAppURL,
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.initRouter()); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() http.Handler {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))

	r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(".")); err != nil {
			log.Warnw("failed to write ping response", "error", err)
		}
	})

	r.Route(apiBasePath, func(r chi.Router) {
		// protected routes
		r.Group(func(r chi.Router) {
			// seek, verify and validate JWT tokens
			r.Use(jwtauth.Verifier(a.auth))
			// handle valid JWT tokens
			r.Use(a.authenticator)
			// get the authenticated user information
			log.Infow("new route", "method", "GET", "path", apiBasePath+usersMeEndpoint)
			r.Get(usersMeEndpoint, a.userInfoHandler)
			// refresh the token
			log.Infow("new route", "method", "POST", "path", apiBasePath+authRefreshTokenEndpoint)
			r.Post(authRefreshTokenEndpoint, a.refreshTokenHandler)
		})

		// public routes
		r.Group(func(r chi.Router) {
			// service name and version
			log.Infow("new route", "method", "GET", "path", apiBasePath+indexEndpoint)
			r.Get(indexEndpoint, a.serverInfoHandler)
			// list the available subscription plans
			log.Infow("new route", "method", "GET", "path", apiBasePath+subscriptionsEndpoint)
			r.Get(subscriptionsEndpoint, a.plansHandler)
			// get a single subscription plan
			log.Infow("new route", "method", "GET", "path", apiBasePath+subscriptionInfoEndpoint)
			r.Get(subscriptionInfoEndpoint, a.planInfoHandler)
			// register a new user
			log.Infow("new route", "method", "POST", "path", apiBasePath+usersEndpoint)
			r.Post(usersEndpoint, a.registerHandler)
			// login
			log.Infow("new route", "method", "POST", "path", apiBasePath+authLoginEndpoint)
			r.Post(authLoginEndpoint, a.authLoginHandler)
			// create an order
			log.Infow("new route", "method", "POST", "path", apiBasePath+ordersEndpoint)
			r.Post(ordersEndpoint, a.createOrderHandler)
			// list orders, optionally filtered by user email
			log.Infow("new route", "method", "GET", "path", apiBasePath+ordersEndpoint)
			r.Get(ordersEndpoint, a.ordersHandler)
			// get a single order
			log.Infow("new route", "method", "GET", "path", apiBasePath+orderInfoEndpoint)
			r.Get(orderInfoEndpoint, a.orderInfoHandler)
			// open a payment checkout session
			log.Infow("new route", "method", "POST", "path", apiBasePath+checkoutSessionEndpoint)
			r.Post(checkoutSessionEndpoint, a.createCheckoutSessionHandler)
			// poll and reconcile a checkout session status
			log.Infow("new route", "method", "GET", "path", apiBasePath+checkoutStatusEndpoint)
			r.Get(checkoutStatusEndpoint, a.checkoutStatusHandler)
			// receive payment processor webhook events
			log.Infow("new route", "method", "POST", "path", apiBasePath+stripeWebhookEndpoint)
			r.Post(stripeWebhookEndpoint, a.stripeWebhookHandler)
		})
	})

	a.router = r
	return r
}
