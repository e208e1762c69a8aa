// Package finance is the client for the finance backend: bank accounts and
// their transactions.
package finance

import (
	"context"
	"fmt"

	"github.com/pitabwire/suitekit/internal/api"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// ModuleName is the services key the finance base URL is configured under.
const ModuleName = "finance"

const resourceTransactions = "transactions"

// BankAccount is a tenant bank account.
type BankAccount struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	Currency      string `json:"currency"`
	Balance       string `json:"balance"`
}

// Transaction is one booked movement on a bank account. Amounts are kept
// as the decimal strings the backend sends.
type Transaction struct {
	ID            int64  `json:"id"`
	BankAccountID int64  `json:"bank_account"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference,omitempty"`
	Status        string `json:"status"`
}

// NewTransaction is the payload for CreateTransaction.
type NewTransaction struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference,omitempty"`
}

// Service calls the finance backend.
type Service struct {
	m *api.Module
}

// New creates a finance Service.
func New(resolver tenant.Resolver, client *httpclient.Client, cache *query.Cache, opts ...api.ModuleOption) *Service {
	return &Service{m: api.NewModule(ModuleName, resolver, client, cache, opts...)}
}

func transactionsPath(bankAccountID int64) string {
	return fmt.Sprintf("/bank-accounts/%d/transactions/", bankAccountID)
}

// ListTransactions returns one page of the transactions of a bank account.
func (s *Service) ListTransactions(ctx context.Context, rctx *model.RequestContext, bankAccountID int64, params model.PageParams) (*model.Page[Transaction], error) {
	if bankAccountID <= 0 {
		return nil, model.NewBadRequestError("bank account id must be positive")
	}
	return api.List[Transaction](ctx, s.m, rctx, transactionsPath(bankAccountID), params)
}

// TransactionsQuery is ListTransactions through the query cache. It is
// only enabled for a positive bank account id.
func (s *Service) TransactionsQuery(ctx context.Context, rctx *model.RequestContext, bankAccountID int64, params model.PageParams) (*model.Page[Transaction], query.Status, error) {
	return api.ListQuery[Transaction](ctx, s.m, rctx, api.Query{
		Resource: resourceTransactions,
		Enabled:  bankAccountID > 0,
		Path:     transactionsPath(bankAccountID),
		Scope:    []any{bankAccountID},
	}, params)
}

// GetTransaction returns a single transaction.
func (s *Service) GetTransaction(ctx context.Context, rctx *model.RequestContext, id int64) (*Transaction, error) {
	return api.Get[Transaction](ctx, s.m, rctx, fmt.Sprintf("/transactions/%d/", id))
}

// ListBankAccounts returns one page of the tenant's bank accounts.
func (s *Service) ListBankAccounts(ctx context.Context, rctx *model.RequestContext, params model.PageParams) (*model.Page[BankAccount], error) {
	return api.List[BankAccount](ctx, s.m, rctx, "/bank-accounts/", params)
}

// CreateTransaction books a transaction on a bank account and drops the
// tenant's cached transaction lists.
func (s *Service) CreateTransaction(ctx context.Context, rctx *model.RequestContext, bankAccountID int64, tx NewTransaction) (*Transaction, error) {
	if bankAccountID <= 0 {
		return nil, model.NewBadRequestError("bank account id must be positive")
	}
	created, err := api.Create[Transaction](ctx, s.m, rctx, transactionsPath(bankAccountID), tx)
	if err != nil {
		return nil, err
	}
	s.m.Invalidate(rctx, resourceTransactions)
	return created, nil
}
