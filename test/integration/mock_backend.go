package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable HTTP test server that simulates one suite
// backend module. Every route is served under a leading /{tenant} segment.
// It allows configuring per-operation responses and records all received
// requests for later assertion.
type MockBackend struct {
	t      *testing.T
	module string
	server *httptest.Server
	issuer *tokenIssuer

	mu           sync.RWMutex
	operations   map[string]*operationConfig
	receivedByOp map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	Tenant      string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

// operationConfig holds the configured responses for a single operation.
type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	rawBody   []byte
	delay     time.Duration
	connError bool
}

// operationRoute maps an operation ID to its HTTP method and path pattern.
// Paths are relative to the tenant segment. fallback is served when no
// response has been configured.
type operationRoute struct {
	method      string
	pathPattern string
	fallback    any
}

// OperationMock is a builder for configuring mock responses for a specific operation.
type OperationMock struct {
	backend *MockBackend
	opID    string
}

// newMockBackend creates a mock backend and starts the HTTP test server.
// When issuer is non-nil every request must carry a bearer token it signed
// for the tenant in the path.
func newMockBackend(t *testing.T, module string, routes map[string]operationRoute, issuer *tokenIssuer) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:            t,
		module:       module,
		issuer:       issuer,
		operations:   make(map[string]*operationConfig),
		receivedByOp: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for opID, route := range routes {
		pattern := route.method + " /{tenant}" + route.pathPattern
		mux.HandleFunc(pattern, mb.handleOperation(opID, route))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"detail": fmt.Sprintf("mock %s: no operation registered for %s %s", module, r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the root URL of the mock backend server.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// BaseURLTemplate returns the base URL template configured for this module.
func (mb *MockBackend) BaseURLTemplate() string {
	return mb.server.URL + "/{tenant}"
}

// OnOperation returns a builder for configuring responses for the named operation.
func (mb *MockBackend) OnOperation(operationID string) *OperationMock {
	return &OperationMock{
		backend: mb,
		opID:    operationID,
	}
}

// RespondWith configures the operation to respond with the given status and body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body})
	return om
}

// RespondWithRaw configures the operation to respond with an undecoded body.
func (om *OperationMock) RespondWithRaw(status int, body string) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, rawBody: []byte(body)})
	return om
}

// RespondWithDelay configures a delayed response to simulate slow backends.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body, delay: delay})
	return om
}

// RespondWithConnectionError configures the operation to close the connection
// to simulate a backend failure.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{connError: true})
	return om
}

func (mb *MockBackend) addResponse(opID string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[opID]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[opID] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handleOperation(opID string, route operationRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Tenant:      r.PathValue("tenant"),
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.receivedByOp[opID] = append(mb.receivedByOp[opID], rec)
		mb.mu.Unlock()

		if !mb.authorize(w, r) {
			return
		}

		resp := mb.getNextResponse(opID)
		if resp == nil {
			status := http.StatusOK
			if r.Method == http.MethodPost {
				status = http.StatusCreated
			}
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, status, route.fallback)
			return
		}

		if resp.connError {
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}

		if resp.rawBody != nil {
			w.WriteHeader(resp.status)
			_, _ = w.Write(resp.rawBody)
			return
		}
		writeJSON(w, resp.status, resp.body)
	}
}

// authorize enforces the bearer token the way the suite backends do.
func (mb *MockBackend) authorize(w http.ResponseWriter, r *http.Request) bool {
	if mb.issuer == nil {
		return true
	}
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return false
	}
	tenant, err := mb.issuer.verify(raw)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return false
	}
	if tenant != r.PathValue("tenant") {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (mb *MockBackend) getNextResponse(opID string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[opID]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}

	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// CallCount returns how many times the operation was called.
func (mb *MockBackend) CallCount(operationID string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.receivedByOp[operationID])
}

// AssertCalled verifies that the operation was called the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, operationID string, expectedCount int) {
	t.Helper()
	if actual := mb.CallCount(operationID); actual != expectedCount {
		t.Errorf("mock %s: operation %q called %d times, want %d", mb.module, operationID, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the operation was never called.
func (mb *MockBackend) AssertNotCalled(t *testing.T, operationID string) {
	t.Helper()
	mb.AssertCalled(t, operationID, 0)
}

// LastRequest returns the last request received for the given operation.
// Returns nil if no requests were recorded.
func (mb *MockBackend) LastRequest(operationID string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Reset clears all recorded requests and configured responses for the backend.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.operations = make(map[string]*operationConfig)
	mb.receivedByOp = make(map[string][]*RecordedRequest)
}

func emptyPage() map[string]any {
	return map[string]any{"count": 0, "next": nil, "previous": nil, "results": []any{}}
}

// FinanceRoutes returns the operations of the finance backend.
func FinanceRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"listBankAccounts":  {method: "GET", pathPattern: "/bank-accounts/{$}", fallback: emptyPage()},
		"listTransactions":  {method: "GET", pathPattern: "/bank-accounts/{id}/transactions/{$}", fallback: emptyPage()},
		"createTransaction": {method: "POST", pathPattern: "/bank-accounts/{id}/transactions/{$}", fallback: map[string]any{"id": 1, "status": "pending"}},
		"getTransaction":    {method: "GET", pathPattern: "/transactions/{id}/{$}", fallback: map[string]any{"id": 1}},
	}
}

// CRMRoutes returns the operations of the CRM backend.
func CRMRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"listContacts":  {method: "GET", pathPattern: "/contacts/{$}", fallback: emptyPage()},
		"createContact": {method: "POST", pathPattern: "/contacts/{$}", fallback: map[string]any{"id": 1}},
		"getContact":    {method: "GET", pathPattern: "/contacts/{id}/{$}", fallback: map[string]any{"id": 1}},
		"updateContact": {method: "PATCH", pathPattern: "/contacts/{id}/{$}", fallback: map[string]any{"id": 1}},
		"deleteContact": {method: "DELETE", pathPattern: "/contacts/{id}/{$}"},
	}
}

// InventoryRoutes returns the operations of the inventory backend.
func InventoryRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"listItems":   {method: "GET", pathPattern: "/warehouses/{id}/items/{$}", fallback: emptyPage()},
		"adjustStock": {method: "POST", pathPattern: "/items/{id}/adjust-stock/{$}", fallback: map[string]any{"id": 1}},
	}
}

// InboxRoutes returns the operations of the inbox backend.
func InboxRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"listConversations":   {method: "GET", pathPattern: "/inboxes/{id}/conversations/{$}", fallback: emptyPage()},
		"replyToConversation": {method: "POST", pathPattern: "/conversations/{id}/messages/{$}", fallback: map[string]any{"id": 1}},
	}
}
