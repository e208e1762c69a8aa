// Package integration provides a reusable test harness for end-to-end
// testing of the suitekit request pipeline. It wires the real session,
// middleware, resolver, query cache and feature modules against mock
// backends that verify signed access tokens.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/suitekit/internal/api/crm"
	"github.com/pitabwire/suitekit/internal/api/finance"
	"github.com/pitabwire/suitekit/internal/api/inbox"
	"github.com/pitabwire/suitekit/internal/api/inventory"
	"github.com/pitabwire/suitekit/internal/auth"
	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/session"
	"github.com/pitabwire/suitekit/internal/storage"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// DefaultTenant is the tenant every harness acts for unless overridden.
const DefaultTenant = "acme"

// TestHarness encapsulates a fully wired client pipeline with mock backends
// for integration testing.
type TestHarness struct {
	t      *testing.T
	issuer *tokenIssuer
	clock  *manualClock

	Store     *storage.MemoryStore
	Session   *session.Session
	Bus       *auth.Bus
	Navigator *auth.HistoryNavigator
	Client    *httpclient.Client
	Cache     *query.Cache
	Metrics   *observability.Metrics
	Logs      *observer.ObservedLogs
	Logger    *zap.Logger
	Context   *model.RequestContext

	Finance   *finance.Service
	CRM       *crm.Service
	Inventory *inventory.Service
	Inbox     *inbox.Service

	backends map[string]*MockBackend

	mu     sync.Mutex
	events []model.AuthExpired
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	tenant    string
	startPath string
	timeout   time.Duration
	staleTime time.Duration
	anonymous bool
}

// WithTenant sets the tenant of the harness RequestContext.
func WithTenant(id string) HarnessOption {
	return func(c *harnessConfig) {
		c.tenant = id
	}
}

// WithStartPath sets the path the navigator starts on.
func WithStartPath(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.startPath = path
	}
}

// WithClientTimeout overrides the client request timeout.
func WithClientTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.timeout = d
	}
}

// WithStaleTime overrides the query cache staleness window.
func WithStaleTime(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.staleTime = d
	}
}

// WithoutAuth makes the mock backends accept requests without a token.
func WithoutAuth() HarnessOption {
	return func(c *harnessConfig) {
		c.anonymous = true
	}
}

// NewTestHarness builds the pipeline the way suitectl does, on an
// in-memory store and a manual clock for the query cache.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		tenant:    DefaultTenant,
		startPath: "/dashboard",
		timeout:   httpclient.DefaultTimeout,
		staleTime: query.DefaultStaleTime,
	}
	for _, opt := range opts {
		opt(hc)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &TestHarness{
		t:        t,
		issuer:   newTokenIssuer(t),
		clock:    &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		Store:    storage.NewMemoryStore(),
		Bus:      auth.NewBus(),
		Metrics:  observability.InitMetrics(prometheus.NewRegistry()),
		Logs:     logs,
		Logger:   logger,
		Context:  &model.RequestContext{TenantID: hc.tenant, CorrelationID: "corr-" + hc.tenant},
		backends: make(map[string]*MockBackend),
	}

	issuer := h.issuer
	if hc.anonymous {
		issuer = nil
	}
	services := make(map[string]config.ServiceConfig)
	for module, routes := range map[string]map[string]operationRoute{
		finance.ModuleName:   FinanceRoutes(),
		crm.ModuleName:       CRMRoutes(),
		inventory.ModuleName: InventoryRoutes(),
		inbox.ModuleName:     InboxRoutes(),
	} {
		mb := newMockBackend(t, module, routes, issuer)
		h.backends[module] = mb
		services[module] = config.ServiceConfig{BaseURL: mb.BaseURLTemplate()}
	}

	h.Session = session.New(h.Store)
	h.Navigator = auth.NewHistoryNavigator(h.Session, hc.startPath, logger)
	h.Bus.Subscribe(auth.LoginRedirect(h.Navigator, auth.DefaultLoginRoute))
	h.Bus.Subscribe(func(_ context.Context, ev model.AuthExpired) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	})

	h.Client = httpclient.New(
		httpclient.WithTimeout(hc.timeout),
		httpclient.WithLogger(logger),
		httpclient.WithMetrics(h.Metrics),
		httpclient.WithRequestMiddleware(
			httpclient.CorrelationID(),
			httpclient.TenantHeaders(),
			auth.BearerToken(h.Session, logger),
			httpclient.RequestLogging(logger),
			httpclient.TraceInjection(),
		),
		httpclient.WithResponseMiddleware(
			auth.AuthExpiry(h.Session, h.Bus, logger, h.Metrics),
		),
	)

	h.Cache = query.New(
		query.WithStaleTime(hc.staleTime),
		query.WithClock(h.clock.Now),
		query.WithMetrics(h.Metrics),
		query.WithLogger(logger),
	)
	t.Cleanup(h.Cache.Close)

	resolver := tenant.NewTemplateResolver(services)
	h.Finance = finance.New(resolver, h.Client, h.Cache)
	h.CRM = crm.New(resolver, h.Client, h.Cache)
	h.Inventory = inventory.New(resolver, h.Client, h.Cache)
	h.Inbox = inbox.New(resolver, h.Client, h.Cache)

	return h
}

// MockBackend returns the mock server of module.
func (h *TestHarness) MockBackend(module string) *MockBackend {
	h.t.Helper()
	mb, ok := h.backends[module]
	if !ok {
		h.t.Fatalf("no mock backend for module %q", module)
	}
	return mb
}

// Login persists a fresh access token for the harness tenant and returns it.
func (h *TestHarness) Login() string {
	h.t.Helper()
	token := h.issuer.GenerateToken(UserClaims(h.Context.TenantID))
	h.SaveToken(token)
	return token
}

// SaveToken persists token as the active credential.
func (h *TestHarness) SaveToken(token string) {
	h.t.Helper()
	if err := h.Session.SaveCredential(context.Background(), model.Credential{AccessToken: token}); err != nil {
		h.t.Fatalf("save credential: %v", err)
	}
}

// GenerateToken signs an access token with the harness issuer.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken signs an expired access token with the harness issuer.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// HasCredential reports whether a credential is persisted.
func (h *TestHarness) HasCredential() bool {
	h.t.Helper()
	_, found, err := h.Store.Get(context.Background(), model.AuthTokensKey)
	if err != nil {
		h.t.Fatalf("read credential: %v", err)
	}
	return found
}

// AuthEvents returns the authentication-expired events published so far.
func (h *TestHarness) AuthEvents() []model.AuthExpired {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.AuthExpired, len(h.events))
	copy(out, h.events)
	return out
}

// Advance moves the query cache clock forward.
func (h *TestHarness) Advance(d time.Duration) {
	h.clock.Advance(d)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
