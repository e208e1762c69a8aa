package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/suitekit/internal/config"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

func newTestService(t *testing.T) (*Service, *atomic.Int32) {
	t.Helper()
	var lists atomic.Int32
	contacts := map[string]Contact{"1": {ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.test"}}

	r := chi.NewRouter()
	r.Route("/t/{tenant}/contacts", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			lists.Add(1)
			_ = json.NewEncoder(w).Encode(model.Page[Contact]{Count: 1, Results: []Contact{contacts["1"]}})
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var in ContactInput
			_ = json.NewDecoder(r.Body).Decode(&in)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Contact{ID: 2, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email})
		})
		r.Get("/{id}/", func(w http.ResponseWriter, r *http.Request) {
			c, ok := contacts[chi.URLParam(r, "id")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":"Not found."}`))
				return
			}
			_ = json.NewEncoder(w).Encode(c)
		})
		r.Patch("/{id}/", func(w http.ResponseWriter, r *http.Request) {
			var patch map[string]string
			_ = json.NewDecoder(r.Body).Decode(&patch)
			c := contacts[chi.URLParam(r, "id")]
			if v, ok := patch["email"]; ok {
				c.Email = v
			}
			_ = json.NewEncoder(w).Encode(c)
		})
		r.Delete("/{id}/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cache := query.New()
	t.Cleanup(cache.Close)
	resolver := tenant.NewTemplateResolver(map[string]config.ServiceConfig{
		ModuleName: {BaseURL: srv.URL + "/t/{tenant}"},
	})
	return New(resolver, httpclient.New(), cache), &lists
}

func TestContactsCRUD(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rctx := &model.RequestContext{TenantID: "acme"}

	page, err := s.ListContacts(ctx, rctx, model.PageParams{})
	require.NoError(t, err)
	assert.Equal(t, "Ada", page.Results[0].FirstName)

	c, err := s.GetContact(ctx, rctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.test", c.Email)

	_, err = s.GetContact(ctx, rctx, 404)
	assert.Equal(t, http.StatusNotFound, model.StatusCode(err))

	created, err := s.CreateContact(ctx, rctx, ContactInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.test"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.ID)

	email := "ada@lovelace.test"
	updated, err := s.UpdateContact(ctx, rctx, 1, ContactPatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, "Ada", updated.FirstName)

	require.NoError(t, s.DeleteContact(ctx, rctx, 1))
}

func TestContactsQuery(t *testing.T) {
	s, lists := newTestService(t)
	ctx := context.Background()
	rctx := &model.RequestContext{TenantID: "acme"}

	_, status, err := s.ContactsQuery(ctx, nil, model.PageParams{})
	assert.ErrorIs(t, err, query.ErrDisabled)
	assert.Equal(t, query.StatusDisabled, status)

	_, _, err = s.ContactsQuery(ctx, rctx, model.PageParams{})
	require.NoError(t, err)
	_, status, _ = s.ContactsQuery(ctx, rctx, model.PageParams{})
	assert.Equal(t, query.StatusFresh, status)
	assert.Equal(t, int32(1), lists.Load())

	require.NoError(t, s.DeleteContact(ctx, rctx, 1))
	_, status, _ = s.ContactsQuery(ctx, rctx, model.PageParams{})
	assert.Equal(t, query.StatusFetched, status, "delete drops cached lists")
}
