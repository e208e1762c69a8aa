// Package crm is the client for the CRM backend's contacts.
package crm

import (
	"context"
	"fmt"

	"github.com/pitabwire/suitekit/internal/api"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// ModuleName is the services key the CRM base URL is configured under.
const ModuleName = "crm"

const resourceContacts = "contacts"

// Contact is a CRM contact.
type Contact struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

// ContactInput is the payload for CreateContact.
type ContactInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

// ContactPatch holds the fields UpdateContact changes. Nil fields are left
// alone.
type ContactPatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Company   *string `json:"company,omitempty"`
}

// Service calls the CRM backend.
type Service struct {
	m *api.Module
}

// New creates a CRM Service.
func New(resolver tenant.Resolver, client *httpclient.Client, cache *query.Cache, opts ...api.ModuleOption) *Service {
	return &Service{m: api.NewModule(ModuleName, resolver, client, cache, opts...)}
}

func contactPath(id int64) string {
	return fmt.Sprintf("/contacts/%d/", id)
}

// ListContacts returns one page of contacts.
func (s *Service) ListContacts(ctx context.Context, rctx *model.RequestContext, params model.PageParams) (*model.Page[Contact], error) {
	return api.List[Contact](ctx, s.m, rctx, "/contacts/", params)
}

// ContactsQuery is ListContacts through the query cache. It is enabled
// whenever a tenant is known.
func (s *Service) ContactsQuery(ctx context.Context, rctx *model.RequestContext, params model.PageParams) (*model.Page[Contact], query.Status, error) {
	return api.ListQuery[Contact](ctx, s.m, rctx, api.Query{
		Resource: resourceContacts,
		Enabled:  rctx.Validate() == nil,
		Path:     "/contacts/",
	}, params)
}

// GetContact returns one contact.
func (s *Service) GetContact(ctx context.Context, rctx *model.RequestContext, id int64) (*Contact, error) {
	return api.Get[Contact](ctx, s.m, rctx, contactPath(id))
}

// CreateContact creates a contact.
func (s *Service) CreateContact(ctx context.Context, rctx *model.RequestContext, in ContactInput) (*Contact, error) {
	c, err := api.Create[Contact](ctx, s.m, rctx, "/contacts/", in)
	if err != nil {
		return nil, err
	}
	s.m.Invalidate(rctx, resourceContacts)
	return c, nil
}

// UpdateContact applies patch to a contact.
func (s *Service) UpdateContact(ctx context.Context, rctx *model.RequestContext, id int64, patch ContactPatch) (*Contact, error) {
	c, err := api.Update[Contact](ctx, s.m, rctx, contactPath(id), patch)
	if err != nil {
		return nil, err
	}
	s.m.Invalidate(rctx, resourceContacts)
	return c, nil
}

// DeleteContact deletes a contact.
func (s *Service) DeleteContact(ctx context.Context, rctx *model.RequestContext, id int64) error {
	if err := api.Delete(ctx, s.m, rctx, contactPath(id)); err != nil {
		return err
	}
	s.m.Invalidate(rctx, resourceContacts)
	return nil
}
