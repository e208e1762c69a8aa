// Package api holds the pattern shared by the feature API modules: resolve
// the tenant base URL, append a resource path, call the shared client and
// decode the result, optionally through the query cache.
package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// Module is one backend module as seen by its feature package.
type Module struct {
	name      string
	resolver  tenant.Resolver
	client    *httpclient.Client
	cache     *query.Cache
	staleTime time.Duration
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithStaleTime overrides the staleness window of the module's queries.
func WithStaleTime(d time.Duration) ModuleOption {
	return func(m *Module) {
		m.staleTime = d
	}
}

// NewModule creates the module called name. cache may be nil, in which
// case queries always fetch.
func NewModule(name string, resolver tenant.Resolver, client *httpclient.Client, cache *query.Cache, opts ...ModuleOption) *Module {
	m := &Module{
		name:      name,
		resolver:  resolver,
		client:    client,
		cache:     cache,
		staleTime: query.DefaultStaleTime,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the module name used for base URL resolution.
func (m *Module) Name() string {
	return m.name
}

// URL resolves the base URL for rctx and appends path and q.
func (m *Module) URL(rctx *model.RequestContext, path string, q url.Values) (string, error) {
	base, err := m.resolver.BaseURL(rctx, m.name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.name, err)
	}
	return tenant.JoinURL(base, path, q), nil
}

// withTenant makes rctx visible to request middleware unless ctx already
// carries a RequestContext.
func withTenant(ctx context.Context, rctx *model.RequestContext) context.Context {
	if rctx == nil || model.RequestContextFrom(ctx) != nil {
		return ctx
	}
	return model.WithRequestContext(ctx, rctx)
}

// List fetches one page of the list at path.
func List[T any](ctx context.Context, m *Module, rctx *model.RequestContext, path string, params model.PageParams) (*model.Page[T], error) {
	params = params.Normalize()
	u, err := m.URL(rctx, path, params.Values())
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Get(withTenant(ctx, rctx), u)
	if err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", m.name, path, err)
	}
	var page model.Page[T]
	if err := resp.Decode(&page); err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", m.name, path, err)
	}
	return &page, nil
}

// Get fetches the single resource at path.
func Get[T any](ctx context.Context, m *Module, rctx *model.RequestContext, path string) (*T, error) {
	u, err := m.URL(rctx, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Get(withTenant(ctx, rctx), u)
	if err != nil {
		return nil, fmt.Errorf("%s: get %s: %w", m.name, path, err)
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: get %s: %w", m.name, path, err)
	}
	return &out, nil
}

// Create POSTs body to path and decodes the created resource.
func Create[T any](ctx context.Context, m *Module, rctx *model.RequestContext, path string, body any) (*T, error) {
	return send[T](ctx, m, rctx, "create", path, body, m.client.Post)
}

// Update PATCHes body to path and decodes the updated resource.
func Update[T any](ctx context.Context, m *Module, rctx *model.RequestContext, path string, body any) (*T, error) {
	return send[T](ctx, m, rctx, "update", path, body, m.client.Patch)
}

type sendFunc func(ctx context.Context, rawURL string, body any, opts ...httpclient.CallOption) (*httpclient.Response, error)

func send[T any](ctx context.Context, m *Module, rctx *model.RequestContext, verb, path string, body any, do sendFunc) (*T, error) {
	u, err := m.URL(rctx, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := do(withTenant(ctx, rctx), u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", m.name, verb, path, err)
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", m.name, verb, path, err)
	}
	return &out, nil
}

// Delete removes the resource at path.
func Delete(ctx context.Context, m *Module, rctx *model.RequestContext, path string) error {
	u, err := m.URL(rctx, path, nil)
	if err != nil {
		return err
	}
	if _, err := m.client.Delete(withTenant(ctx, rctx), u); err != nil {
		return fmt.Errorf("%s: delete %s: %w", m.name, path, err)
	}
	return nil
}

// Query describes a cached list query.
type Query struct {
	// Resource names the list, e.g. "transactions".
	Resource string
	// Enabled gates the fetch.
	Enabled bool
	// Path is the resource path requested when the query runs.
	Path string
	// Scope holds the parameters besides tenant and page that select the
	// result, e.g. the bank account id.
	Scope []any
}

// ListQuery serves List through the module's cache. The key covers the
// module, resource, tenant, scope and page parameters.
func ListQuery[T any](ctx context.Context, m *Module, rctx *model.RequestContext, q Query, params model.PageParams) (*model.Page[T], query.Status, error) {
	params = params.Normalize()
	fetch := func(ctx context.Context) (*model.Page[T], error) {
		return List[T](ctx, m, rctx, q.Path, params)
	}

	if m.cache == nil {
		if !q.Enabled {
			return nil, query.StatusDisabled, query.ErrDisabled
		}
		page, err := fetch(ctx)
		return page, query.StatusFetched, err
	}

	parts := append([]any{m.name + "." + q.Resource, tenantID(rctx)}, q.Scope...)
	parts = append(parts, params.Page, params.PageSize)
	return query.Fetch[*model.Page[T]](ctx, m.cache, query.Options{
		Key:       query.Key(parts...),
		Enabled:   q.Enabled,
		StaleTime: m.staleTime,
		Name:      m.name + "." + q.Resource,
	}, fetch)
}

// Invalidate drops every cached list of resource for the tenant in rctx.
func (m *Module) Invalidate(rctx *model.RequestContext, resource string) {
	if m.cache == nil {
		return
	}
	m.cache.InvalidatePrefix(query.Prefix(m.name+"."+resource, tenantID(rctx)))
}

func tenantID(rctx *model.RequestContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.TenantID
}
