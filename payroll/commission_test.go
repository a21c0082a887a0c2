package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *store.Store, collection string, rec backoffice.Record) backoffice.Record {
	t.Helper()
	created, err := s.Create(context.Background(), collection, rec)
	if err != nil {
		t.Fatalf("create %s: %v", collection, err)
	}
	return created
}

// TestCommissionPriorityOrder walks the documented resolution contract:
// driver default beats client rate, and a matching rule beats everything.
func TestCommissionPriorityOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewCommissionCalculator(s)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)

	mustCreate(t, s, store.Drivers, backoffice.Record{
		"id": "D1", "full_name": "Driver One", "default_commission_per_order": 0.300,
	})
	mustCreate(t, s, store.Clients, backoffice.Record{
		"id": "C1", "company_name": "Client One", "commission_rate": 0.200,
	})

	resolved, err := c.Resolve(ctx, "D1", "C1", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.300 || resolved.Source != SourceDriverDefault {
		t.Fatalf("driver default must beat client rate, got %+v", resolved)
	}

	// Adding a rule valid on that date flips the result to the rule tier.
	rule := mustCreate(t, s, store.CommissionRules, backoffice.Record{
		"driver_id": "D1", "client_id": "C1",
		"commission_per_order": 0.500,
		"valid_from":           "2026-03-01", "valid_to": "2026-03-31",
	})
	resolved, err = c.Resolve(ctx, "D1", "C1", date)
	if err != nil {
		t.Fatalf("resolve with rule: %v", err)
	}
	if resolved.PerOrder != 0.500 || resolved.Source != SourceRule {
		t.Fatalf("rule must beat everything, got %+v", resolved)
	}
	if resolved.RuleID != rule.ID() {
		t.Fatalf("rule id not reported: %+v", resolved)
	}

	// A rule outside its validity window is ignored again.
	outside := time.Date(2026, 4, 2, 0, 0, 0, 0, time.Local)
	resolved, err = c.Resolve(ctx, "D1", "C1", outside)
	if err != nil {
		t.Fatalf("resolve outside window: %v", err)
	}
	if resolved.Source != SourceDriverDefault {
		t.Fatalf("expired rule must not apply, got %+v", resolved)
	}
}

func TestCommissionFallbackTiers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewCommissionCalculator(s)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)

	mustCreate(t, s, store.Clients, backoffice.Record{
		"id": "C1", "commission_rate": 0.200,
	})
	mustCreate(t, s, store.Drivers, backoffice.Record{
		"id": "D2", "default_commission_per_order": 0.0,
	})

	// No rule, no primary rate, no driver default: client rate applies.
	resolved, err := c.Resolve(ctx, "D2", "C1", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.200 || resolved.Source != SourceClientRate {
		t.Fatalf("expected client rate tier, got %+v", resolved)
	}

	// Unknown client and no rates anywhere: global fallback from config
	// defaults.
	resolved, err = c.Resolve(ctx, "D2", "C9", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.250 || resolved.Source != SourceGlobal {
		t.Fatalf("expected global fallback, got %+v", resolved)
	}

	// A driver-specific rate for their primary client outranks the driver
	// default.
	mustCreate(t, s, store.Drivers, backoffice.Record{
		"id":                           "D3",
		"primary_client_id":            "C1",
		"primary_client_commission":    0.350,
		"default_commission_per_order": 0.300,
	})
	resolved, err = c.Resolve(ctx, "D3", "C1", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.350 || resolved.Source != SourceDriverPrimaryClient {
		t.Fatalf("expected primary-client tier, got %+v", resolved)
	}

	if _, err := c.Resolve(ctx, "missing", "C1", date); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

// TestCommissionSecondaryClientTier covers the driver's rate for their
// secondary client: it outranks the driver default but not the primary
// client's rate.
func TestCommissionSecondaryClientTier(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewCommissionCalculator(s)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)

	mustCreate(t, s, store.Drivers, backoffice.Record{
		"id":                           "D1",
		"primary_client_id":            "C1",
		"primary_client_commission":    0.350,
		"secondary_client_id":          "C2",
		"secondary_client_commission":  0.400,
		"default_commission_per_order": 0.300,
	})
	mustCreate(t, s, store.Clients, backoffice.Record{"id": "C2"})

	resolved, err := c.Resolve(ctx, "D1", "C2", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.400 || resolved.Source != SourceDriverSecondaryClient {
		t.Fatalf("expected secondary-client tier, got %+v", resolved)
	}

	// The primary client still resolves through its own tier.
	resolved, err = c.Resolve(ctx, "D1", "C1", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.350 || resolved.Source != SourceDriverPrimaryClient {
		t.Fatalf("expected primary-client tier, got %+v", resolved)
	}

	// Any other client falls through to the driver default.
	resolved, err = c.Resolve(ctx, "D1", "C3", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.PerOrder != 0.300 || resolved.Source != SourceDriverDefault {
		t.Fatalf("expected driver default, got %+v", resolved)
	}
}

func TestMonthlyTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewCommissionCalculator(s)

	mustCreate(t, s, store.Drivers, backoffice.Record{
		"id": "D1", "default_commission_per_order": 0.300,
	})
	mustCreate(t, s, store.MonthlyOrders, backoffice.Record{
		"driver_id": "D1", "year": 2026, "month": 3,
		"entries": []any{
			map[string]any{
				"client_id":            "C1",
				"commission_per_order": 0.250,
				"total_orders":         100,
			},
			map[string]any{
				"client_id":            "C2",
				"commission_per_order": 0.300,
				"periods": []any{
					map[string]any{"num_orders": 20},
					map[string]any{"num_orders": 30},
				},
			},
		},
	})
	// A different month must not contribute.
	mustCreate(t, s, store.MonthlyOrders, backoffice.Record{
		"driver_id": "D1", "year": 2026, "month": 4,
		"entries": []any{
			map[string]any{"client_id": "C1", "commission_per_order": 1.0, "total_orders": 999},
		},
	})

	total, err := c.MonthlyTotal(ctx, "D1", 2026, 3)
	if err != nil {
		t.Fatalf("monthly total: %v", err)
	}
	if total.OrderCount != 150 {
		t.Fatalf("order count: %d", total.OrderCount)
	}
	// 100*0.250 + 50*0.300 = 25.000 + 15.000
	if total.TotalCommission != 40.000 {
		t.Fatalf("total commission: %v", total.TotalCommission)
	}
	if len(total.Details) != 2 {
		t.Fatalf("details: %+v", total.Details)
	}
}
