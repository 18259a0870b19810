package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rentbook/internal/aggregate"
	"rentbook/internal/amqp"
	"rentbook/internal/core"
	"rentbook/internal/sheets"
)

// SweepWorker is the async repair lane. It consumes receipt-changed messages
// and recomputes the affected month's aggregates, runs the periodic full
// sweep, and exports summary snapshots to the backup ledger.
//
// The HTTP server already recomputes synchronously on every mutation; the
// worker exists to repair staleness when that recompute failed or when a
// message arrived from another writer.
type SweepWorker struct {
	engine *aggregate.Engine
	ledger sheets.SummaryWriter
}

func NewSweepWorker(engine *aggregate.Engine, ledger sheets.SummaryWriter) *SweepWorker {
	return &SweepWorker{
		engine: engine,
		ledger: ledger,
	}
}

// HandleReceiptChanged recomputes the month named by the message, plus the
// previous month when an update moved the receipt across a month boundary.
// Returning an error nacks and requeues the message.
func (w *SweepWorker) HandleReceiptChanged(ctx context.Context, msg *amqp.ReceiptChangedMessage) error {
	slog.InfoContext(ctx, "Processing receipt changed message",
		"receipt_id", msg.ReceiptID,
		"action", msg.Action,
		"date", msg.Date.String())

	if err := w.engine.RecomputeBoth(ctx, msg.Date.Time); err != nil {
		return fmt.Errorf("recompute month %s: %w", core.MonthOf(msg.Date.Time), err)
	}
	w.exportMonth(ctx, msg.Date.Time)

	if msg.PreviousDate != nil && core.MonthOf(msg.PreviousDate.Time) != core.MonthOf(msg.Date.Time) {
		if err := w.engine.RecomputeBoth(ctx, msg.PreviousDate.Time); err != nil {
			return fmt.Errorf("recompute previous month %s: %w", core.MonthOf(msg.PreviousDate.Time), err)
		}
		w.exportMonth(ctx, msg.PreviousDate.Time)
	}

	return nil
}

// RunSweep recomputes every month that has receipts or a leftover aggregate.
// Called at startup and on the periodic ticker.
func (w *SweepWorker) RunSweep(ctx context.Context) error {
	start := time.Now()
	if err := w.engine.EnsureAllMonths(ctx); err != nil {
		return fmt.Errorf("ensure all months: %w", err)
	}
	slog.InfoContext(ctx, "Sweep completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// exportMonth appends the month's refreshed aggregate snapshots to the backup
// ledger. Export failures are logged and swallowed; the ledger is advisory.
func (w *SweepWorker) exportMonth(ctx context.Context, anchor time.Time) {
	if w.ledger == nil {
		return
	}

	for _, kind := range []core.RowKind{core.KindAggregateEBBill, core.KindAggregateEBUsed} {
		agg, err := w.engine.RecomputeMonth(ctx, anchor, kind)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read aggregate for export",
				"error", err,
				"month", core.MonthOf(anchor).String(),
				"kind", string(kind))
			continue
		}
		if agg == nil {
			continue
		}

		count, err := w.engine.ReceiptsCountForMonth(ctx, anchor, kind)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to count receipts for export",
				"error", err,
				"month", core.MonthOf(anchor).String(),
				"kind", string(kind))
			continue
		}

		row := sheets.SummaryRow{
			Month:        core.MonthOf(anchor),
			Kind:         kind,
			Units:        agg.UnitsConsumed,
			RatePerUnit:  agg.EBRatePerUnit,
			EBCharges:    agg.EBCharges,
			TotalAmount:  agg.TotalAmount,
			ReceiptCount: count,
		}
		if _, err := w.ledger.Append(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to export summary row",
				"error", err,
				"month", row.Month.String(),
				"kind", string(kind))
		}
	}
}
