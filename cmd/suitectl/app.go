package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/api/crm"
	"github.com/pitabwire/suitekit/internal/api/finance"
	"github.com/pitabwire/suitekit/internal/api/inbox"
	"github.com/pitabwire/suitekit/internal/api/inventory"
	"github.com/pitabwire/suitekit/internal/auth"
	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/internal/errmsg"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/session"
	"github.com/pitabwire/suitekit/internal/storage"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// app holds everything one command invocation needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics

	store    storage.Store
	session  *session.Session
	bus      *auth.Bus
	nav      *cliNavigator
	resolver *tenant.TemplateResolver
	client   *httpclient.Client
	cache    *query.Cache
	rctx     *model.RequestContext
	alerter  errmsg.Alerter
	out      io.Writer

	finance   *finance.Service
	crm       *crm.Service
	inventory *inventory.Service
	inbox     *inbox.Service

	checks  map[string]observability.HealthChecker
	closers []func()
}

// buildApp loads configuration and wires the pipeline in dependency order.
func buildApp(ctx context.Context, opts *globalOptions, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.tenant != "" {
		cfg.Tenant.ID = opts.tenant
	}

	observability.Version = version
	observability.Commit = commit

	logger := opts.logger
	if logger == nil {
		logger, err = observability.NewLogger(cfg.Observability)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		alerter:  errmsg.WriterAlerter{W: errOut},
		out:      out,
		checks:   make(map[string]observability.HealthChecker),
	}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "suitectl", version)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = tracingShutdown(context.Background()) })

	if cfg.Observability.Metrics.Enabled {
		a.metrics = observability.InitMetrics(a.registry)
	}

	store, closeStore, err := buildStore(ctx, cfg.Storage, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	if hc, ok := store.(observability.HealthChecker); ok {
		a.checks["storage"] = hc
	}

	a.session = session.New(store)
	a.bus = auth.NewBus()
	a.nav = newCLINavigator(a.session, cfg.Client.LoginRoute, errOut, logger)
	a.bus.Subscribe(auth.LoginRedirect(a.nav, cfg.Client.LoginRoute))

	a.rctx = &model.RequestContext{
		TenantID:    cfg.Tenant.ID,
		PartitionID: cfg.Tenant.PartitionID,
	}

	a.client = httpclient.New(
		httpclient.WithTimeout(cfg.Client.Timeout),
		httpclient.WithDefaultHeader("User-Agent", cfg.Client.UserAgent),
		httpclient.WithLogger(logger),
		httpclient.WithMetrics(a.metrics),
		httpclient.WithRequestMiddleware(
			httpclient.CorrelationID(),
			httpclient.TenantHeaders(),
			auth.BearerToken(a.session, logger),
			httpclient.RequestLogging(logger),
			httpclient.TraceInjection(),
		),
		httpclient.WithResponseMiddleware(
			auth.AuthExpiry(a.session, a.bus, logger, a.metrics),
		),
	)

	a.resolver = tenant.NewTemplateResolver(cfg.Services)
	a.cache = query.New(
		query.WithStaleTime(cfg.Query.StaleTime),
		query.WithGCTime(cfg.Query.GCTime),
		query.WithMaxEntries(cfg.Query.MaxEntries),
		query.WithMetrics(a.metrics),
		query.WithLogger(logger),
	)
	a.closers = append(a.closers, a.cache.Close)

	a.finance = finance.New(a.resolver, a.client, a.cache)
	a.crm = crm.New(a.resolver, a.client, a.cache)
	a.inventory = inventory.New(a.resolver, a.client, a.cache)
	a.inbox = inbox.New(a.resolver, a.client, a.cache)

	a.addReachabilityChecks()

	logger.Debug("suitectl configured",
		zap.String("version", version),
		zap.String("tenant", cfg.Tenant.ID),
		zap.String("storage", cfg.Storage.Driver),
		zap.Strings("modules", a.resolver.Modules()),
	)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	if a.cache != nil {
		a.cache.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// report presents err to the user and marks it as already shown.
func (a *app) report(ctx context.Context, action string, err error) error {
	errmsg.Report(ctx, a.logger, a.alerter, action, err)
	return &reportedError{err: err}
}

// writeMetrics dumps the registry in the Prometheus text format.
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// addReachabilityChecks registers one check per configured module. Any
// HTTP response counts as reachable. The probe client carries no auth
// middleware so a 401 never clears the session.
func (a *app) addReachabilityChecks() {
	probe := httpclient.New(
		httpclient.WithTimeout(a.cfg.Client.Timeout),
		httpclient.WithDefaultHeader("User-Agent", a.cfg.Client.UserAgent),
		httpclient.WithLogger(a.logger),
	)
	for _, module := range a.resolver.Modules() {
		a.checks["service:"+module] = observability.HealthCheckFunc(func(ctx context.Context) error {
			base, err := a.resolver.BaseURL(a.rctx, module)
			if err != nil {
				return err
			}
			_, err = probe.Do(ctx, &httpclient.Request{Method: http.MethodHead, URL: base + "/"})
			if err != nil && model.StatusCode(err) == 0 {
				return err
			}
			return nil
		})
	}
}

// buildStore creates the client-local store for cfg.Driver. The returned
// closer may be nil.
func buildStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.Driver {
	case config.StorageMemory:
		logger.Debug("using in-memory storage")
		return storage.NewMemoryStore(), nil, nil
	case config.StorageFile, "":
		return storage.NewFileStore(cfg.Path, storage.WithFileLogger(logger)), nil, nil
	case config.StorageRedis:
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("storage: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("storage: redis ping: %w", err)
		}
		return storage.NewRedisStore(client, cfg.Profile), func() { _ = client.Close() }, nil
	case config.StoragePostgres:
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("storage: %s environment variable not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: parse DSN: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("storage: ping: %w", err)
		}
		store := storage.NewPgStore(pool, cfg.Profile)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}

// cliNavigator is a HistoryNavigator that prints a sign-in hint when sent
// to the login route.
type cliNavigator struct {
	*auth.HistoryNavigator
	loginRoute string
	out        io.Writer
}

func newCLINavigator(sess *session.Session, loginRoute string, out io.Writer, logger *zap.Logger) *cliNavigator {
	if loginRoute == "" {
		loginRoute = auth.DefaultLoginRoute
	}
	return &cliNavigator{
		HistoryNavigator: auth.NewHistoryNavigator(sess, "/", logger, auth.WithLoginRoute(loginRoute)),
		loginRoute:       loginRoute,
		out:              out,
	}
}

func (n *cliNavigator) Navigate(ctx context.Context, path string) {
	n.HistoryNavigator.Navigate(ctx, path)
	if path == n.loginRoute {
		fmt.Fprintln(n.out, `Session expired. Run "suitectl login --token <token>" to sign in again.`)
	}
}

// reportedError marks an error whose message was already shown.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }
