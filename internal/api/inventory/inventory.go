// Package inventory is the client for warehouse stock.
package inventory

import (
	"context"
	"fmt"

	"github.com/pitabwire/suitekit/internal/api"
	"github.com/pitabwire/suitekit/internal/httpclient"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/internal/tenant"
	"github.com/pitabwire/suitekit/model"
)

// ModuleName is the services key the inventory base URL is configured under.
const ModuleName = "inventory"

const resourceItems = "items"

// Item is a stocked item in a warehouse.
type Item struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	WarehouseID int64  `json:"warehouse"`
}

// StockAdjustment changes an item's quantity by Delta.
type StockAdjustment struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// Service calls the inventory backend.
type Service struct {
	m *api.Module
}

// New creates an inventory Service.
func New(resolver tenant.Resolver, client *httpclient.Client, cache *query.Cache, opts ...api.ModuleOption) *Service {
	return &Service{m: api.NewModule(ModuleName, resolver, client, cache, opts...)}
}

func itemsPath(warehouseID int64) string {
	return fmt.Sprintf("/warehouses/%d/items/", warehouseID)
}

// ListItems returns one page of the items in a warehouse.
func (s *Service) ListItems(ctx context.Context, rctx *model.RequestContext, warehouseID int64, params model.PageParams) (*model.Page[Item], error) {
	if warehouseID <= 0 {
		return nil, model.NewBadRequestError("warehouse id must be positive")
	}
	return api.List[Item](ctx, s.m, rctx, itemsPath(warehouseID), params)
}

// ItemsQuery is ListItems through the query cache, enabled only for a
// positive warehouse id.
func (s *Service) ItemsQuery(ctx context.Context, rctx *model.RequestContext, warehouseID int64, params model.PageParams) (*model.Page[Item], query.Status, error) {
	return api.ListQuery[Item](ctx, s.m, rctx, api.Query{
		Resource: resourceItems,
		Enabled:  warehouseID > 0,
		Path:     itemsPath(warehouseID),
		Scope:    []any{warehouseID},
	}, params)
}

// AdjustStock applies adj to an item and returns the updated item.
func (s *Service) AdjustStock(ctx context.Context, rctx *model.RequestContext, itemID int64, adj StockAdjustment) (*Item, error) {
	if adj.Delta == 0 {
		return nil, model.NewBadRequestError("stock adjustment delta must not be zero")
	}
	item, err := api.Create[Item](ctx, s.m, rctx, fmt.Sprintf("/items/%d/adjust-stock/", itemID), adj)
	if err != nil {
		return nil, err
	}
	s.m.Invalidate(rctx, resourceItems)
	return item, nil
}
