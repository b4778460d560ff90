package api

const (
	// GET /ping liveness check
	pingEndpoint = "/ping"

	// apiBasePath is the prefix all API routes are mounted under
	apiBasePath = "/api"

	// GET / to get the service name and version
	indexEndpoint = "/"

	// catalog routes

	// GET /subscriptions to list the available subscription plans
	subscriptionsEndpoint = "/subscriptions"
	// GET /subscriptions/{planID} to get a single subscription plan
	subscriptionInfoEndpoint = "/subscriptions/{planID}"

	// user routes

	// POST /users to register a new user
	usersEndpoint = "/users"
	// GET /users/me to get the authenticated user information
	usersMeEndpoint = "/users/me"

	// auth routes

	// POST /auth/login to login and get a JWT token
	authLoginEndpoint = "/auth/login"
	// POST /auth/refresh to refresh the JWT token
	authRefreshTokenEndpoint = "/auth/refresh"

	// order routes

	// POST /orders to create an order, GET /orders to list them
	ordersEndpoint = "/orders"
	// GET /orders/{orderID} to get a single order
	orderInfoEndpoint = "/orders/{orderID}"

	// payment routes

	// POST /checkout/session to open a payment checkout session
	checkoutSessionEndpoint = "/checkout/session"
	// GET /checkout/status/{sessionID} to poll and reconcile a session
	checkoutStatusEndpoint = "/checkout/status/{sessionID}"
	// POST /webhook/stripe to receive payment processor events
	stripeWebhookEndpoint = "/webhook/stripe"
)
