// Package payroll contains the derived calculators of the back office: the
// commission engine and the payroll engine. Both are layered on top of the
// record store's read operations and never write; the one mutating step,
// processing advance deductions after a payroll run is approved, goes
// through ordinary store updates.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/store"
)

// CommissionSource tags which priority tier produced a resolved commission.
type CommissionSource string

const (
	SourceRule                  CommissionSource = "rule"
	SourceDriverPrimaryClient   CommissionSource = "driver_primary_client"
	SourceDriverSecondaryClient CommissionSource = "driver_secondary_client"
	SourceDriverDefault         CommissionSource = "driver_default"
	SourceClientRate            CommissionSource = "client_rate"
	SourceGlobal                CommissionSource = "global"
)

// ErrDriverNotFound is returned when a calculation references a driver id
// that doesn't exist.
var ErrDriverNotFound = errors.New("driver not found")

// ResolvedCommission is a per-order commission amount together with the
// tier that produced it.
type ResolvedCommission struct {
	PerOrder float64          `json:"per_order"`
	Source   CommissionSource `json:"source"`
	// RuleID is set only when Source is SourceRule.
	RuleID string `json:"rule_id,omitempty"`
}

// CommissionDetail is one client line of a driver's monthly commission.
type CommissionDetail struct {
	ClientID string           `json:"client_id"`
	Orders   int              `json:"orders"`
	PerOrder float64          `json:"per_order"`
	Amount   float64          `json:"amount"`
	Source   CommissionSource `json:"source"`
}

// MonthlyCommission is a driver's commission total for one calendar month.
type MonthlyCommission struct {
	DriverID        string             `json:"driver_id"`
	Year            int                `json:"year"`
	Month           int                `json:"month"`
	TotalCommission float64            `json:"total_commission"`
	OrderCount      int                `json:"order_count"`
	Details         []CommissionDetail `json:"commission_details"`
}

// CommissionCalculator resolves per-order commission amounts with a fixed
// priority order. The order is a documented contract:
//
//	commission rule valid on the date
//	> driver's rate for their primary client
//	> driver's rate for their secondary client
//	> driver default
//	> client rate
//	> global fallback from config
type CommissionCalculator struct {
	store *store.Store
}

// NewCommissionCalculator constructs a calculator over the given store.
func NewCommissionCalculator(s *store.Store) *CommissionCalculator {
	return &CommissionCalculator{store: s}
}

const dateLayout = "2006-01-02"

// Resolve returns the commission per order for (driver, client) on the
// given date, walking the priority tiers top down.
func (c *CommissionCalculator) Resolve(ctx context.Context, driverID, clientID string, date time.Time) (ResolvedCommission, error) {
	driver := c.store.FindByID(ctx, store.Drivers, driverID)
	if driver == nil {
		return ResolvedCommission{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}

	if rule := c.matchRule(ctx, driverID, clientID, date); rule != nil {
		return ResolvedCommission{
			PerOrder: rule.GetFloat("commission_per_order", 0),
			Source:   SourceRule,
			RuleID:   rule.ID(),
		}, nil
	}

	if clientID != "" && clientID == driver.GetString("primary_client_id") {
		if rate := driver.GetFloat("primary_client_commission", 0); rate > 0 {
			return ResolvedCommission{PerOrder: rate, Source: SourceDriverPrimaryClient}, nil
		}
	}

	if clientID != "" && clientID == driver.GetString("secondary_client_id") {
		if rate := driver.GetFloat("secondary_client_commission", 0); rate > 0 {
			return ResolvedCommission{PerOrder: rate, Source: SourceDriverSecondaryClient}, nil
		}
	}

	if rate := driver.GetFloat("default_commission_per_order", 0); rate > 0 {
		return ResolvedCommission{PerOrder: rate, Source: SourceDriverDefault}, nil
	}

	if client := c.store.FindByID(ctx, store.Clients, clientID); client != nil {
		if rate := client.GetFloat("commission_rate", 0); rate > 0 {
			return ResolvedCommission{PerOrder: rate, Source: SourceClientRate}, nil
		}
	}

	cfg := LoadConfig(c.store.DataDir())
	return ResolvedCommission{PerOrder: cfg.GlobalCommissionPerOrder, Source: SourceGlobal}, nil
}

// matchRule returns the commission rule for (driver, client) valid on the
// date, or nil. When several rules overlap the one with the latest
// valid_from wins.
func (c *CommissionCalculator) matchRule(ctx context.Context, driverID, clientID string, date time.Time) backoffice.Record {
	dateKey := date.Format(dateLayout)
	var best backoffice.Record
	rules := c.store.Filter(ctx, store.CommissionRules, map[string]any{
		"driver_id": driverID,
		"client_id": clientID,
	})
	for _, rule := range rules {
		if !rule.GetBool("is_active", true) {
			continue
		}
		from := rule.GetString("valid_from")
		to := rule.GetString("valid_to")
		if from != "" && dateKey < from {
			continue
		}
		if to != "" && dateKey > to {
			continue
		}
		if best == nil || rule.GetString("valid_from") > best.GetString("valid_from") {
			best = rule
		}
	}
	return best
}

// MonthlyTotal computes a driver's commission total for (year, month) from
// the monthly_orders collection. Each monthly-order entry carries its own
// commission_per_order captured at entry time; entries without one fall
// back to the priority resolution for that client.
func (c *CommissionCalculator) MonthlyTotal(ctx context.Context, driverID string, year, month int) (MonthlyCommission, error) {
	result := MonthlyCommission{
		DriverID: driverID,
		Year:     year,
		Month:    month,
		Details:  []CommissionDetail{},
	}
	if driver := c.store.FindByID(ctx, store.Drivers, driverID); driver == nil {
		return result, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}

	monthDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)

	for _, rec := range c.store.Filter(ctx, store.MonthlyOrders, map[string]any{"driver_id": driverID}) {
		if rec.GetInt("year", 0) != year || rec.GetInt("month", 0) != month {
			continue
		}
		entries, _ := rec["entries"].([]any)
		for _, e := range entries {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			entry := backoffice.Record(em)
			orders := entryTotalOrders(entry)
			if orders == 0 {
				continue
			}

			clientID := entry.GetString("client_id")
			perOrder := entry.GetFloat("commission_per_order", 0)
			source := SourceRule
			if perOrder > 0 {
				// Captured on the entry when the monthly order was filed.
				source = entrySource(entry)
			} else {
				resolved, err := c.Resolve(ctx, driverID, clientID, monthDate)
				if err != nil {
					return result, err
				}
				perOrder = resolved.PerOrder
				source = resolved.Source
			}

			amount := Round(perOrder * float64(orders))
			result.OrderCount += orders
			result.TotalCommission += amount
			result.Details = append(result.Details, CommissionDetail{
				ClientID: clientID,
				Orders:   orders,
				PerOrder: perOrder,
				Amount:   amount,
				Source:   source,
			})
		}
	}
	result.TotalCommission = Round(result.TotalCommission)
	return result, nil
}

// entryTotalOrders sums a monthly-order entry's order count across its
// periods, falling back to the flat fields of the older record format.
func entryTotalOrders(entry backoffice.Record) int {
	if n := entry.GetInt("total_orders", 0); n > 0 {
		return n
	}
	periods, _ := entry["periods"].([]any)
	total := 0
	for _, p := range periods {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		total += backoffice.Record(pm).GetInt("num_orders", 0)
	}
	if total == 0 {
		total = entry.GetInt("num_orders", 0)
	}
	return total
}

// entrySource reports where an entry's captured rate originally came from,
// defaulting to driver_default for legacy entries that never recorded it.
func entrySource(entry backoffice.Record) CommissionSource {
	if s := entry.GetString("commission_source"); s != "" {
		return CommissionSource(s)
	}
	return SourceDriverDefault
}
