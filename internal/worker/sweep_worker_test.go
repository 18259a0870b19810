package worker

import (
	"context"
	"testing"
	"time"

	"rentbook/internal/aggregate"
	"rentbook/internal/amqp"
	"rentbook/internal/core"
	sheetsmem "rentbook/internal/sheets/memory"
	"rentbook/internal/storage/memory"
)

func seedReceipt(t *testing.T, store *memory.Store, date core.Date, units float64) core.Receipt {
	t.Helper()
	r, err := store.Insert(context.Background(), core.Receipt{
		ReceiptDate:        date,
		TenantName:         "Sudhaagar",
		EBReadingThisMonth: units,
		EBRatePerUnit:      5,
		UnitsConsumed:      units,
		EBCharges:          units * 5,
		RentAmount:         2500,
		TotalAmount:        2500 + units*5,
	})
	if err != nil {
		t.Fatalf("seed receipt: %v", err)
	}
	return r
}

func TestHandleReceiptChangedRecomputesMonth(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := sheetsmem.New()
	w := NewSweepWorker(aggregate.New(store), ledger)

	march := core.NewDate(2025, time.March, 10)
	r := seedReceipt(t, store, march, 10)

	msg := amqp.NewReceiptChangedMessage(r.ID, amqp.ActionCreated, march, nil)
	if err := w.HandleReceiptChanged(ctx, msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	rows, err := store.Query(ctx, core.ReceiptFilter{TenantIn: core.SentinelNames()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// "EB bill paid" never appears; both aggregates should.
	if len(rows) != 2 {
		t.Fatalf("expected 2 aggregates after handling, got %d", len(rows))
	}

	exported := ledger.Rows()
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(exported))
	}
	for _, row := range exported {
		if row.Month != (core.YearMonth{Year: 2025, Month: time.March}) {
			t.Fatalf("exported wrong month: %s", row.Month)
		}
		if row.Units != 10 || row.EBCharges != 50 {
			t.Fatalf("exported wrong figures: %+v", row)
		}
		if row.ReceiptCount != 1 {
			t.Fatalf("exported receipt count = %d, want 1", row.ReceiptCount)
		}
	}
}

func TestHandleReceiptChangedAcrossMonths(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewSweepWorker(aggregate.New(store), nil)

	march := core.NewDate(2025, time.March, 10)
	april := core.NewDate(2025, time.April, 2)

	// Receipt already moved to April in the store, but a stale March
	// aggregate is still lying around.
	r := seedReceipt(t, store, april, 10)
	if _, err := store.Insert(ctx, core.Receipt{
		ReceiptDate: march,
		TenantName:  core.SentinelTenantEBBill,
	}); err != nil {
		t.Fatalf("seed stale aggregate: %v", err)
	}

	msg := amqp.NewReceiptChangedMessage(r.ID, amqp.ActionUpdated, april, &march)
	if err := w.HandleReceiptChanged(ctx, msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	rows, err := store.Query(ctx, core.ReceiptFilter{TenantIn: []string{core.SentinelTenantEBBill}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the stale March aggregate collapsed, got %d rows", len(rows))
	}
	if got := core.MonthOf(rows[0].ReceiptDate.Time); got != (core.YearMonth{Year: 2025, Month: time.April}) {
		t.Fatalf("aggregate in month %s, want 2025-04", got)
	}
}

func TestRunSweepRepairsAllMonths(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewSweepWorker(aggregate.New(store), nil)

	seedReceipt(t, store, core.NewDate(2025, time.February, 5), 10)
	seedReceipt(t, store, core.NewDate(2025, time.March, 5), 20)

	if err := w.RunSweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	rows, err := store.Query(ctx, core.ReceiptFilter{TenantIn: core.SentinelNames()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 4 { // 2 months x 2 kinds
		t.Fatalf("expected 4 aggregates after sweep, got %d", len(rows))
	}
}
