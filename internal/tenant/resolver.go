// Package tenant resolves the per-tenant base URL of each backend module.
package tenant

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/model"
)

// Placeholder is replaced by the tenant identifier in base URL templates.
const Placeholder = "{tenant}"

// Resolver produces the base URL a module's requests are sent to.
type Resolver interface {
	BaseURL(rctx *model.RequestContext, module string) (string, error)
}

// TemplateResolver resolves base URLs from configured templates.
type TemplateResolver struct {
	templates map[string]string
}

// NewTemplateResolver builds a resolver from the configured services.
func NewTemplateResolver(services map[string]config.ServiceConfig) *TemplateResolver {
	templates := make(map[string]string, len(services))
	for name, svc := range services {
		templates[name] = svc.BaseURL
	}
	return &TemplateResolver{templates: templates}
}

// Modules returns the configured module names, sorted.
func (r *TemplateResolver) Modules() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseURL returns the base URL of module for the tenant in rctx, without a
// trailing slash.
func (r *TemplateResolver) BaseURL(rctx *model.RequestContext, module string) (string, error) {
	tmpl, ok := r.templates[module]
	if !ok {
		return "", model.NewNotFoundError(fmt.Sprintf("module %q has no base_url configured", module))
	}

	base := tmpl
	if strings.Contains(tmpl, Placeholder) {
		if err := rctx.Validate(); err != nil {
			return "", fmt.Errorf("tenant: resolve %s: %w", module, err)
		}
		base = strings.ReplaceAll(tmpl, Placeholder, url.PathEscape(rctx.TenantID))
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", model.NewInvalidConfigError(fmt.Sprintf("module %q resolved to invalid base URL %q", module, base))
	}
	return strings.TrimRight(base, "/"), nil
}

// JoinURL appends path and the encoded query to base.
func JoinURL(base, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			b.WriteByte('/')
		}
		b.WriteString(path)
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}
