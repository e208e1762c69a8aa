package auth

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/session"
	"github.com/pitabwire/suitekit/model"
)

// DefaultLoginRoute is where an expired session is sent.
const DefaultLoginRoute = "/login"

// Navigator is the routing surface the login redirect drives.
type Navigator interface {
	CurrentPath() string
	Navigate(ctx context.Context, path string)
}

// LoginRedirect returns a Handler that navigates to loginRoute unless the
// navigator is already there.
func LoginRedirect(nav Navigator, loginRoute string) Handler {
	if loginRoute == "" {
		loginRoute = DefaultLoginRoute
	}
	return func(ctx context.Context, _ model.AuthExpired) {
		if nav.CurrentPath() == loginRoute {
			return
		}
		nav.Navigate(ctx, loginRoute)
	}
}

// HistoryNavigator is an in-memory Navigator that records every visited
// path and remembers the last non-settings page in the session. The login
// route is never remembered.
type HistoryNavigator struct {
	mu         sync.Mutex
	sess       *session.Session
	logger     *zap.Logger
	loginRoute string
	current    string
	history    []string
}

// NavigatorOption configures a HistoryNavigator.
type NavigatorOption func(*HistoryNavigator)

// WithLoginRoute sets the route that is not remembered as a page.
func WithLoginRoute(route string) NavigatorOption {
	return func(n *HistoryNavigator) {
		n.loginRoute = route
	}
}

// NewHistoryNavigator creates a navigator positioned at start.
func NewHistoryNavigator(sess *session.Session, start string, logger *zap.Logger, opts ...NavigatorOption) *HistoryNavigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &HistoryNavigator{sess: sess, logger: logger, loginRoute: DefaultLoginRoute, current: start}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CurrentPath returns the path last navigated to.
func (n *HistoryNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Navigate moves to path.
func (n *HistoryNavigator) Navigate(ctx context.Context, path string) {
	n.mu.Lock()
	n.current = path
	n.history = append(n.history, path)
	n.mu.Unlock()

	if n.sess == nil || path == n.loginRoute {
		return
	}
	if _, err := n.sess.RememberPage(ctx, path); err != nil {
		n.logger.Warn("auth: failed to remember page", zap.String("path", path), zap.Error(err))
	}
}

// History returns a copy of the navigated paths in order.
func (n *HistoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}
