package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/substore/store-backend/catalog"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/payments"
	"github.com/substore/store-backend/test"
	"go.vocdoni.io/dvote/log"
)

const (
	testSecret    = "super-secret"
	testEmail     = "user@test.com"
	testPass      = "password123"
	testFirstName = "test"
	testLastName  = "user"
	testHost      = "0.0.0.0"
	testPort      = 7788
	testPlanID    = "capcut-pro-monthly"
	testPlanPrice = 9.99
	testWebAppURL = "https://store.test"

	// fakeSignature is the only signature the fake processor accepts.
	fakeSignature = "t=1234,v1=valid"
)

// testDB is the MongoDB storage for the tests. Make it global so it can be
// accessed by the tests directly.
var testDB *db.MongoStorage

// testProcessor is the fake payment processor for the tests. Make it global
// so the tests can drive remote session transitions directly.
var testProcessor *fakeProcessor

// fakeProcessor implements payments.Processor in memory so the checkout flow
// can be exercised without network access.
type fakeProcessor struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*payments.SessionStatus
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{sessions: make(map[string]*payments.SessionStatus)}
}

func (f *fakeProcessor) CreateCheckoutSession(params *payments.CheckoutParams) (*payments.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("cs_test_%03d", f.seq)
	f.sessions[id] = &payments.SessionStatus{
		SessionID:     id,
		Status:        db.TransactionStatusPending,
		PaymentStatus: db.PaymentStatusPending,
		CustomerEmail: params.CustomerEmail,
	}
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.test/pay/" + id}, nil
}

func (f *fakeProcessor) CheckoutSessionStatus(sessionID string) (*payments.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.sessions[sessionID]
	if !ok {
		return nil, payments.ErrAPICallFailed.WithErr(fmt.Errorf("unknown checkout session %s", sessionID))
	}
	statusCopy := *status
	return &statusCopy, nil
}

func (f *fakeProcessor) DecodeWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	if signatureHeader != fakeSignature {
		return nil, payments.ErrWebhookValidation
	}
	event := &stripeapi.Event{}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, payments.ErrWebhookValidation.WithErr(err)
	}
	return event, nil
}

// pay marks the remote session as complete and paid.
func (f *fakeProcessor) pay(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID].Status = db.TransactionStatusCompleted
	f.sessions[sessionID].PaymentStatus = db.PaymentStatusPaid
}

// testURL helper function returns the full URL for the given path using the
// test host and port.
func testURL(path string) string {
	return fmt.Sprintf("http://%s:%d%s", testHost, testPort, path)
}

// testAPIURL helper function returns the full URL for the given API path.
func testAPIURL(path string) string {
	return testURL(apiBasePath + path)
}

// mustMarshal helper function marshalls the input interface into a byte slice.
// It panics if the marshalling fails.
func mustMarshal(i any) []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return b
}

// doRequest helper function performs an HTTP request against the test API and
// returns the status code and response body. The token, when not empty, is
// sent as a bearer authorization header.
func doRequest(t *testing.T, method, url, token string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("cannot create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("cannot read response body: %v", err)
	}
	return resp.StatusCode, respBody
}

// pingAPI helper function pings the API endpoint and retries the request
// if it fails until the retries limit is reached. It returns an error if the
// request fails or the status code is not 200 as many times as the retries
// limit.
func pingAPI(endpoint string, retries int) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	var pingErr error
	for i := 0; i < retries; i++ {
		var resp *http.Response
		if resp, pingErr = http.DefaultClient.Do(req); pingErr == nil {
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			pingErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		time.Sleep(time.Second)
	}
	return pingErr
}

// TestMain function starts the MongoDB container and the API server before
// running the tests. It creates a new MongoDB connection with a random
// database name and wires the payment service with a fake processor, then
// waits for the API to start before running the tests.
func TestMain(m *testing.M) {
	log.Init("debug", "stdout", nil)
	ctx := context.Background()
	// start a MongoDB container for testing
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(err)
	}
	// get the MongoDB connection string
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(err)
	}
	// create a new MongoDB connection with the test database
	if testDB, err = db.New(mongoURI, test.RandomDatabaseName()); err != nil {
		panic(err)
	}
	// load the plan catalog
	testCatalog, err := catalog.New()
	if err != nil {
		panic(err)
	}
	// wire the payment service with a fake processor
	testProcessor = newFakeProcessor()
	paymentService, err := payments.New(testProcessor, testDB, testCatalog, nil)
	if err != nil {
		panic(err)
	}
	// start the API
	New(&Config{
		Host:      testHost,
		Port:      testPort,
		Secret:    testSecret,
		DB:        testDB,
		Catalog:   testCatalog,
		Payments:  paymentService,
		WebAppURL: testWebAppURL,
	}).Start()
	// wait for the API to start
	if err := pingAPI(testURL(pingEndpoint), 5); err != nil {
		panic(err)
	}
	// run the tests
	code := m.Run()
	paymentService.Close()
	testDB.Close()
	_ = dbContainer.Terminate(ctx)
	os.Exit(code)
}
