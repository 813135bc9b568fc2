package model

import (
	"fmt"
	"math"

	"reorder-service/pkg/errors"
)

// StockItem is an immutable snapshot of one catalog product taken at the
// start of an evaluation cycle.
type StockItem struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Amount          float64 `json:"amount"`
	MinAmount       float64 `json:"min_amount"`
	Unit            string  `json:"unit"`
	OrderID         string  `json:"order_id"`          // external catalog order key (ASIN); empty = not eligible
	UnitsPerPackage int     `json:"units_per_package"` // >= 1
}

// ReorderNeed is the computed reorder requirement for one StockItem. It is
// derived per cycle and never persisted.
type ReorderNeed struct {
	Missing  float64
	Packages int
}

// Eligible reports whether the item qualifies for automated ordering: the
// order identifier is present and stock is below the minimum.
func (s StockItem) Eligible(need ReorderNeed) bool {
	return s.OrderID != "" && need.Missing > 0
}

// OrderDescription renders the quantity prefix used in notifications and
// shopping list entries ("Coffee Beans" or "3x Coffee Beans").
func (s StockItem) OrderDescription(packages int) string {
	if packages > 1 {
		return fmt.Sprintf("%dx %s", packages, s.Name)
	}
	return s.Name
}

// ComputeReorderNeed turns a stock record into a reorder quantity.
//
// missing = max(0, min - current); packages = ceil(missing / unitsPerPackage)
// with a floor of 1 as soon as missing > 0, so an item short by a fraction of
// a unit still gets one full package.
func ComputeReorderNeed(item StockItem) (ReorderNeed, error) {
	if item.Amount < 0 {
		return ReorderNeed{}, errors.NewInvalidInput(fmt.Sprintf("product %d: negative stock amount %v", item.ID, item.Amount))
	}
	if item.MinAmount < 0 {
		return ReorderNeed{}, errors.NewInvalidInput(fmt.Sprintf("product %d: negative minimum amount %v", item.ID, item.MinAmount))
	}

	missing := item.MinAmount - item.Amount
	if missing <= 0 {
		return ReorderNeed{Missing: 0, Packages: 0}, nil
	}

	units := item.UnitsPerPackage
	if units < 1 {
		units = 1
	}

	packages := int(math.Ceil(missing / float64(units)))
	if packages < 1 {
		packages = 1
	}

	return ReorderNeed{Missing: missing, Packages: packages}, nil
}
