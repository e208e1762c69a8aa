// Package inbox is the client for the team inbox.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/suitekit/internal/api"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// ModuleName is the services key the inbox base URL is configured under.
const ModuleName = "inbox"

const resourceConversations = "conversations"

// Conversation is a thread in a shared inbox.
type Conversation struct {
	ID            int64     `json:"id"`
	InboxID       int64     `json:"inbox"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	AssigneeID    *int64    `json:"assignee,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Message is one message in a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// Reply is the payload for ReplyToConversation.
type Reply struct {
	Body string `json:"body"`
}

// Service calls the inbox backend.
type Service struct {
	m *api.Module
}

// New creates an inbox Service.
func New(resolver tenant.Resolver, client *httpclient.Client, cache *query.Cache, opts ...api.ModuleOption) *Service {
	return &Service{m: api.NewModule(ModuleName, resolver, client, cache, opts...)}
}

func conversationsPath(inboxID int64) string {
	return fmt.Sprintf("/inboxes/%d/conversations/", inboxID)
}

// ListConversations returns one page of the conversations in an inbox.
func (s *Service) ListConversations(ctx context.Context, rctx *model.RequestContext, inboxID int64, params model.PageParams) (*model.Page[Conversation], error) {
	if inboxID <= 0 {
		return nil, model.NewBadRequestError("inbox id must be positive")
	}
	return api.List[Conversation](ctx, s.m, rctx, conversationsPath(inboxID), params)
}

// ConversationsQuery is ListConversations through the query cache, enabled
// only for a positive inbox id.
func (s *Service) ConversationsQuery(ctx context.Context, rctx *model.RequestContext, inboxID int64, params model.PageParams) (*model.Page[Conversation], query.Status, error) {
	return api.ListQuery[Conversation](ctx, s.m, rctx, api.Query{
		Resource: resourceConversations,
		Enabled:  inboxID > 0,
		Path:     conversationsPath(inboxID),
		Scope:    []any{inboxID},
	}, params)
}

// ReplyToConversation posts a reply and returns the created message.
func (s *Service) ReplyToConversation(ctx context.Context, rctx *model.RequestContext, conversationID int64, reply Reply) (*Message, error) {
	if reply.Body == "" {
		return nil, model.NewBadRequestError("reply body is required")
	}
	msg, err := api.Create[Message](ctx, s.m, rctx, fmt.Sprintf("/conversations/%d/messages/", conversationID), reply)
	if err != nil {
		return nil, err
	}
	s.m.Invalidate(rctx, resourceConversations)
	return msg, nil
}
