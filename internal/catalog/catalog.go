// Package catalog resolves products within a restaurant for order intake:
// channel availability, channel price and the snapshot copied into the
// order line.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/i18n"
)

// Errors returned by ResolvePrice. Each carries its apperr kind.
var (
	ErrProductNotFound    = apperr.New(apperr.KindNotFound, "product not found in restaurant")
	ErrChannelUnavailable = apperr.New(apperr.KindChannelUnavailable, "product not available on channel")
	ErrProductInactive    = apperr.New(apperr.KindBusinessRule, "product is not active")
	ErrOutOfStock         = apperr.New(apperr.KindBusinessRule, "insufficient stock")
)

// ProductGetter is satisfied by *database.Queries.
type ProductGetter interface {
	GetProductForOrder(ctx context.Context, arg database.GetProductForOrderParams) (database.GetProductForOrderRow, error)
}

// Resolved is a product as seen by one order line.
type Resolved struct {
	ProductID int64
	Name      i18n.Text
	Sku       string
	UnitPrice decimal.Decimal
	// PriceMissing is set when neither the channel nor web price exists
	// and UnitPrice fell back to zero.
	PriceMissing  bool
	TrackStock    bool
	StockQuantity *int32
}

type Lookup struct {
	products ProductGetter
	log      *slog.Logger
}

func New(products ProductGetter, log *slog.Logger) *Lookup {
	if log == nil {
		log = slog.Default()
	}
	return &Lookup{products: products, log: log}
}

// ResolvePrice loads the product and resolves its unit price for channel.
// quantity is checked against stock only when the product tracks stock.
func (l *Lookup) ResolvePrice(ctx context.Context, restaurantID, productID int64, channel string, quantity int32) (Resolved, error) {
	row, err := l.products.GetProductForOrder(ctx, database.GetProductForOrderParams{
		ID:           productID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolved{}, ErrProductNotFound
		}
		return Resolved{}, fmt.Errorf("get product: %w", err)
	}

	res, err := FromRow(row, channel)
	if err != nil {
		return Resolved{}, err
	}
	if res.PriceMissing {
		l.log.WarnContext(ctx, "catalog: no price for channel",
			"restaurant_id", restaurantID,
			"product_id", productID,
			"channel", channel,
		)
	}
	if res.TrackStock && (res.StockQuantity == nil || *res.StockQuantity < quantity) {
		return Resolved{}, ErrOutOfStock
	}
	return res, nil
}

// FromRow applies the availability rules to a loaded product row.
func FromRow(row database.GetProductForOrderRow, channel string) (Resolved, error) {
	if !row.IsActive {
		return Resolved{}, ErrProductInactive
	}

	channels, err := parseChannels(row.Channels)
	if err != nil {
		return Resolved{}, fmt.Errorf("product %d channels: %w", row.ID, err)
	}
	if !contains(channels, channel) {
		return Resolved{}, ErrChannelUnavailable
	}

	prices, err := parsePrices(row.Prices)
	if err != nil {
		return Resolved{}, fmt.Errorf("product %d prices: %w", row.ID, err)
	}
	price, ok := PriceFor(prices, channel)

	var name i18n.Text
	if len(row.Name) > 0 {
		if err := json.Unmarshal(row.Name, &name); err != nil {
			return Resolved{}, fmt.Errorf("product %d name: %w", row.ID, err)
		}
	}

	res := Resolved{
		ProductID:    row.ID,
		Name:         name,
		Sku:          row.Sku.String,
		UnitPrice:    price,
		PriceMissing: !ok,
		TrackStock:   row.TrackStock,
	}
	if row.StockQuantity.Valid {
		q := row.StockQuantity.Int32
		res.StockQuantity = &q
	}
	return res, nil
}

// PriceFor returns prices[channel], then prices["web"], then zero. ok is
// false only in the zero case.
func PriceFor(prices map[string]decimal.Decimal, channel string) (decimal.Decimal, bool) {
	if p, ok := prices[channel]; ok {
		return p, true
	}
	if p, ok := prices[enum.ChannelWeb]; ok {
		return p, true
	}
	return decimal.Zero, false
}

func parsePrices(raw []byte) (map[string]decimal.Decimal, error) {
	prices := map[string]decimal.Decimal{}
	if len(raw) == 0 {
		return prices, nil
	}
	if err := json.Unmarshal(raw, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func parseChannels(raw []byte) ([]string, error) {
	var channels []string
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
