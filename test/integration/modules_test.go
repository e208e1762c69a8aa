package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/pitabwire/suitekit/internal/api/crm"
	"github.com/pitabwire/suitekit/internal/errmsg"
	"github.com/pitabwire/suitekit/model"
)

func TestModules_EveryOperationReachesItsBackend(t *testing.T) {
	h := NewTestHarness(t)
	h.Login()
	ctx := context.Background()
	rctx := h.Context

	steps := []struct {
		module string
		op     string
		call   func() error
	}{
		{"finance", "listBankAccounts", func() error { _, err := h.Finance.ListBankAccounts(ctx, rctx, firstPage()); return err }},
		{"finance", "getTransaction", func() error { _, err := h.Finance.GetTransaction(ctx, rctx, 3); return err }},
		{"finance", "createTransaction", func() error { _, err := h.Finance.CreateTransaction(ctx, rctx, 7, financeTx()); return err }},
		{"crm", "getContact", func() error { _, err := h.CRM.GetContact(ctx, rctx, 4); return err }},
		{"crm", "updateContact", func() error {
			email := "new@acme.test"
			_, err := h.CRM.UpdateContact(ctx, rctx, 4, crm.ContactPatch{Email: &email})
			return err
		}},
		{"crm", "deleteContact", func() error { return h.CRM.DeleteContact(ctx, rctx, 4) }},
		{"inventory", "adjustStock", func() error { _, err := h.Inventory.AdjustStock(ctx, rctx, 5, stockDelta(-2)); return err }},
		{"inbox", "replyToConversation", func() error { _, err := h.Inbox.ReplyToConversation(ctx, rctx, 9, inboxReply("Thanks")); return err }},
	}
	for _, s := range steps {
		t.Run(s.op, func(t *testing.T) {
			if err := s.call(); err != nil {
				t.Fatalf("%s: %v", s.op, err)
			}
			req := h.MockBackend(s.module).LastRequest(s.op)
			if req == nil {
				t.Fatalf("%s: backend not called", s.op)
			}
			if req.Tenant != DefaultTenant {
				t.Errorf("%s: tenant = %q", s.op, req.Tenant)
			}
		})
	}

	patch := h.MockBackend("crm").LastRequest("updateContact")
	if patch.Method != http.MethodPatch || len(patch.Body) != 1 || patch.Body["email"] != "new@acme.test" {
		t.Errorf("patch = %s %v, want only the changed field", patch.Method, patch.Body)
	}
}

func TestModules_InvalidInputNeverReachesBackend(t *testing.T) {
	h := NewTestHarness(t)
	h.Login()
	ctx := context.Background()

	if _, err := h.Inventory.AdjustStock(ctx, h.Context, 5, stockDelta(0)); err == nil {
		t.Error("zero delta accepted")
	}
	if _, err := h.Inbox.ReplyToConversation(ctx, h.Context, 9, inboxReply("")); err == nil {
		t.Error("empty reply accepted")
	}
	if _, err := h.Finance.ListTransactions(ctx, h.Context, 0, firstPage()); err == nil {
		t.Error("non-positive account accepted")
	}
	h.MockBackend("inventory").AssertNotCalled(t, "adjustStock")
	h.MockBackend("inbox").AssertNotCalled(t, "replyToConversation")
	h.MockBackend("finance").AssertNotCalled(t, "listTransactions")
}

func TestModules_MissingTenantFailsBeforeSending(t *testing.T) {
	h := NewTestHarness(t, WithTenant(""))

	_, err := h.Finance.ListBankAccounts(context.Background(), h.Context, firstPage())
	if err == nil || !strings.Contains(err.Error(), "TenantID is required") {
		t.Fatalf("error = %v, want a tenant error", err)
	}
	h.MockBackend("finance").AssertNotCalled(t, "listBankAccounts")
}

func TestModules_PaginationEnvelope(t *testing.T) {
	h := NewTestHarness(t)
	h.Login()
	next := "https://finance.test/acme/bank-accounts/?page=2"
	h.MockBackend("finance").OnOperation("listBankAccounts").RespondWith(200, map[string]any{
		"count":    41,
		"next":     next,
		"previous": nil,
		"results": []map[string]any{
			{"id": 1, "name": "Operating", "currency": "EUR", "balance": "10.00"},
			{"id": 2, "name": "Payroll", "currency": "EUR", "balance": "20.00"},
		},
	})

	page, err := h.Finance.ListBankAccounts(context.Background(), h.Context, model.PageParams{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 41 || !page.HasNext() || page.HasPrevious() {
		t.Errorf("page = %+v", page)
	}
	if len(page.Results) != 2 || page.Results[0].Name != "Operating" || page.Results[1].Name != "Payroll" {
		t.Errorf("results out of order: %+v", page.Results)
	}
	req := h.MockBackend("finance").LastRequest("listBankAccounts")
	if req.QueryParams["page"] != "1" || req.QueryParams["page_size"] != "20" {
		t.Errorf("default pagination = %v", req.QueryParams)
	}
}

func TestModules_UnstructuredErrorBody(t *testing.T) {
	h := NewTestHarness(t)
	h.Login()
	h.MockBackend("finance").OnOperation("getTransaction").RespondWithRaw(http.StatusBadGateway, "<html>Bad Gateway</html>")

	_, err := h.Finance.GetTransaction(context.Background(), h.Context, 3)
	if model.StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("error = %v, want 502", err)
	}
	msg := errmsg.Present(context.Background(), h.Logger, "load transaction", err)
	if !strings.HasPrefix(msg, "Failed to load transaction: ") || !strings.HasSuffix(msg, "(status 502)") {
		t.Errorf("Present() = %q", msg)
	}
	if n := h.Logs.FilterMessage(msg).Len(); n != 1 {
		t.Errorf("presented error logged %d times, want 1", n)
	}
}
