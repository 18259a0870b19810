// Package aggregate maintains the two synthetic monthly roll-up rows
// ("Tenant EB bill" and "Tenant EB Used") as a best-effort materialized view
// over the tenant receipts of each calendar month.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"rentbook/internal/core"
)

// Store is the persistence contract the engine needs. The SQLite and memory
// stores both satisfy it.
type Store interface {
	Insert(ctx context.Context, r core.Receipt) (core.Receipt, error)
	Get(ctx context.Context, id string) (core.Receipt, error)
	Query(ctx context.Context, f core.ReceiptFilter) ([]core.Receipt, error)
	Update(ctx context.Context, r core.Receipt) (core.Receipt, error)
	Delete(ctx context.Context, id string) error
}

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// RecomputeMonth rebuilds the synthetic row of the given kind for the
// calendar month anchor falls in. It returns the resulting row, or nil when
// no qualifying tenant receipts remain and the row was removed.
//
// The operation is idempotent: running it twice with no intervening data
// change leaves the same row with the same id. Duplicate synthetic rows left
// behind by racing writers are repaired here by keeping the earliest-created
// row and deleting the rest.
func (e *Engine) RecomputeMonth(ctx context.Context, anchor time.Time, kind core.RowKind) (*core.Receipt, error) {
	if !kind.IsAggregate() {
		return nil, fmt.Errorf("recompute month: %s is not an aggregate kind", kind)
	}
	ym := core.MonthOf(anchor)

	inputs, err := e.qualifyingReceipts(ctx, ym, kind)
	if err != nil {
		return nil, fmt.Errorf("recompute %s %s: %w", kind.SentinelName(), ym, err)
	}

	existing, err := e.existingAggregates(ctx, ym, kind)
	if err != nil {
		return nil, fmt.Errorf("recompute %s %s: %w", kind.SentinelName(), ym, err)
	}

	if len(inputs) == 0 {
		// Collapse on empty: no inputs means no aggregate row at all.
		for _, row := range existing {
			if err := e.store.Delete(ctx, row.ID); err != nil {
				return nil, fmt.Errorf("recompute %s %s: delete empty aggregate: %w", kind.SentinelName(), ym, err)
			}
		}
		if len(existing) > 0 {
			slog.InfoContext(ctx, "Aggregate collapsed, no qualifying receipts left",
				"kind", string(kind), "month", ym.String(), "removed", len(existing))
		}
		return nil, nil
	}

	var totalUnits, totalCharges float64
	for _, r := range inputs {
		totalUnits += r.UnitsConsumed
		totalCharges += r.EBCharges
	}
	rate := 0.0
	if totalUnits > 0 {
		rate = totalCharges / totalUnits
	}

	mode := core.PaymentModeAggregated
	next := core.Receipt{
		ReceiptDate:        ym.First(),
		TenantName:         kind.SentinelName(),
		EBReadingLastMonth: 0,
		EBReadingThisMonth: totalUnits,
		EBRatePerUnit:      rate,
		UnitsConsumed:      totalUnits,
		EBCharges:          totalCharges,
		RentAmount:         0,
		TotalAmount:        totalCharges,
		PaymentMode:        &mode,
	}

	// Self-heal: a historical bug (and racing writers, which the design
	// tolerates) can leave more than one row. Keep the earliest-created one.
	if len(existing) > 1 {
		slog.WarnContext(ctx, "Duplicate aggregate rows found, repairing",
			"kind", string(kind), "month", ym.String(), "count", len(existing))
		for _, dup := range existing[1:] {
			if err := e.store.Delete(ctx, dup.ID); err != nil {
				return nil, fmt.Errorf("recompute %s %s: delete duplicate: %w", kind.SentinelName(), ym, err)
			}
		}
		existing = existing[:1]
	}

	if len(existing) == 1 {
		next.ID = existing[0].ID
		next.CreatedAt = existing[0].CreatedAt
		updated, err := e.store.Update(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("recompute %s %s: update: %w", kind.SentinelName(), ym, err)
		}
		return &updated, nil
	}

	inserted, err := e.store.Insert(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("recompute %s %s: insert: %w", kind.SentinelName(), ym, err)
	}
	slog.InfoContext(ctx, "Aggregate row created",
		"kind", string(kind), "month", ym.String(),
		"units", totalUnits, "charges", totalCharges, "receipts", len(inputs))
	return &inserted, nil
}

// RecomputeBoth recomputes the EB bill and EB used aggregates for the month.
// The first failure wins; the second recompute still runs so one bad kind
// does not leave the other stale.
func (e *Engine) RecomputeBoth(ctx context.Context, anchor time.Time) error {
	var firstErr error
	for _, kind := range []core.RowKind{core.KindAggregateEBBill, core.KindAggregateEBUsed} {
		if _, err := e.RecomputeMonth(ctx, anchor, kind); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureAllMonths recomputes both aggregates for every month that has at
// least one tenant receipt, and collapses aggregates for months that no
// longer have any. Used to self-heal after bulk changes.
func (e *Engine) EnsureAllMonths(ctx context.Context) error {
	months := make(map[core.YearMonth]struct{})

	tenants, err := e.store.Query(ctx, core.ReceiptFilter{TenantNotIn: core.SentinelNames()})
	if err != nil {
		return fmt.Errorf("ensure all months: query tenant receipts: %w", err)
	}
	for _, r := range tenants {
		months[core.MonthOf(r.ReceiptDate.Time)] = struct{}{}
	}

	// Months with an orphaned aggregate but no tenant receipts still need a
	// recompute so the collapse-on-empty rule can delete the orphan.
	orphans, err := e.store.Query(ctx, core.ReceiptFilter{
		TenantIn: []string{core.SentinelTenantEBBill, core.SentinelTenantEBUsed},
	})
	if err != nil {
		return fmt.Errorf("ensure all months: query aggregates: %w", err)
	}
	for _, r := range orphans {
		months[core.MonthOf(r.ReceiptDate.Time)] = struct{}{}
	}

	for ym := range months {
		if err := e.RecomputeBoth(ctx, ym.First().Time); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Aggregate sweep complete", "months", len(months))
	return nil
}

// ReceiptsCountForMonth counts the tenant receipts that feed the aggregate of
// the given kind in anchor's month, for "derived from N receipts" provenance.
func (e *Engine) ReceiptsCountForMonth(ctx context.Context, anchor time.Time, kind core.RowKind) (int, error) {
	if !kind.IsAggregate() {
		return 0, fmt.Errorf("receipts count: %s is not an aggregate kind", kind)
	}
	inputs, err := e.qualifyingReceipts(ctx, core.MonthOf(anchor), kind)
	if err != nil {
		return 0, fmt.Errorf("receipts count for %s: %w", core.MonthOf(anchor), err)
	}
	return len(inputs), nil
}

// qualifyingReceipts returns the tenant receipts of the month that feed the
// aggregate of the given kind. The EB-Used aggregate additionally drops
// receipts whose include_in_eb_used flag is explicitly false; a missing flag
// counts as included, for rows created before the flag existed.
func (e *Engine) qualifyingReceipts(ctx context.Context, ym core.YearMonth, kind core.RowKind) ([]core.Receipt, error) {
	rows, err := e.store.Query(ctx, core.ReceiptFilter{
		TenantNotIn: core.SentinelNames(),
		From:        ym.First(),
		To:          ym.Last(),
	})
	if err != nil {
		return nil, err
	}
	if kind != core.KindAggregateEBUsed {
		return rows, nil
	}
	filtered := rows[:0]
	for _, r := range rows {
		if r.CountsTowardEBUsed() {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// existingAggregates returns the month's synthetic rows of the given kind,
// earliest created first, so the self-heal keeps the original row.
func (e *Engine) existingAggregates(ctx context.Context, ym core.YearMonth, kind core.RowKind) ([]core.Receipt, error) {
	rows, err := e.store.Query(ctx, core.ReceiptFilter{
		TenantIn: []string{kind.SentinelName()},
		From:     ym.First(),
		To:       ym.Last(),
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}
