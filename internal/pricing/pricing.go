// Package pricing computes order totals from priced lines and restaurant
// settings. All arithmetic is decimal; stored amounts are rounded half away
// from zero to two places and the grand total is summed from the rounded
// components.
package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/enum"
)

const (
	moneyPlaces = 2

	DefaultPrepTime = 30
)

var hundred = decimal.NewFromInt(100)

// Settings is the pricing subset of a restaurant's settings document.
type Settings struct {
	TaxRate           decimal.Decimal // percent
	DeliveryFee       decimal.Decimal
	ServiceFee        decimal.Decimal
	EstimatedPrepTime int32
}

type rawSettings struct {
	TaxRate           decimal.NullDecimal `json:"tax_rate"`
	DeliveryFee       decimal.NullDecimal `json:"delivery_fee"`
	ServiceFee        decimal.NullDecimal `json:"service_fee"`
	EstimatedPrepTime decimal.NullDecimal `json:"estimated_prep_time"`
}

// ParseSettings reads a restaurant settings document. Values may be JSON
// numbers or numeric strings; missing keys are zero, except the prep time
// which defaults to DefaultPrepTime.
func ParseSettings(raw []byte) (Settings, error) {
	s := Settings{EstimatedPrepTime: DefaultPrepTime}
	if len(raw) == 0 {
		return s, nil
	}
	var r rawSettings
	if err := json.Unmarshal(raw, &r); err != nil {
		return Settings{}, fmt.Errorf("parse restaurant settings: %w", err)
	}
	if r.TaxRate.Valid {
		s.TaxRate = r.TaxRate.Decimal
	}
	if r.DeliveryFee.Valid {
		s.DeliveryFee = r.DeliveryFee.Decimal
	}
	if r.ServiceFee.Valid {
		s.ServiceFee = r.ServiceFee.Decimal
	}
	if r.EstimatedPrepTime.Valid {
		s.EstimatedPrepTime = int32(r.EstimatedPrepTime.Decimal.IntPart())
	}
	return s, nil
}

type Modifier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int32
	Modifiers []Modifier
}

// Total is (unit price + modifier prices) x quantity, rounded.
func (l Line) Total() decimal.Decimal {
	each := l.UnitPrice
	for _, m := range l.Modifiers {
		each = each.Add(m.Price)
	}
	return each.Mul(decimal.NewFromInt32(l.Quantity)).Round(moneyPlaces)
}

type Totals struct {
	LineTotals     []decimal.Decimal
	ItemsTotal     decimal.Decimal
	TaxAmount      decimal.Decimal
	DeliveryFee    decimal.Decimal
	ServiceFee     decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Compute prices every line and applies the restaurant's tax and fees.
// The delivery fee only applies to delivery orders; the service fee always
// applies. Discounts are not supported and stay zero.
func Compute(settings Settings, deliveryType string, lines []Line) Totals {
	t := Totals{
		LineTotals:     make([]decimal.Decimal, len(lines)),
		ItemsTotal:     decimal.Zero,
		DeliveryFee:    decimal.Zero,
		DiscountAmount: decimal.Zero,
	}
	for i, l := range lines {
		lt := l.Total()
		t.LineTotals[i] = lt
		t.ItemsTotal = t.ItemsTotal.Add(lt)
	}

	t.TaxAmount = t.ItemsTotal.Mul(settings.TaxRate).Div(hundred).Round(moneyPlaces)
	if deliveryType == enum.DeliveryTypeDelivery {
		t.DeliveryFee = settings.DeliveryFee.Round(moneyPlaces)
	}
	t.ServiceFee = settings.ServiceFee.Round(moneyPlaces)

	t.TotalAmount = t.ItemsTotal.
		Add(t.TaxAmount).
		Add(t.DeliveryFee).
		Add(t.ServiceFee).
		Sub(t.DiscountAmount)
	return t
}
