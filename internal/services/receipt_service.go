package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rentbook/internal/aggregate"
	"rentbook/internal/amqp"
	"rentbook/internal/core"
)

// EventPublisher publishes receipt mutation events for the worker's async
// recompute lane. The AMQP client implements it; a nil publisher disables the
// lane without changing behavior elsewhere.
type EventPublisher interface {
	PublishReceiptChanged(ctx context.Context, msg *amqp.ReceiptChangedMessage) error
}

// ReceiptService orchestrates receipt mutations: persist first, then trigger
// the aggregation recompute and the change event as best-effort side effects.
// A failed recompute never fails the mutation that triggered it.
type ReceiptService struct {
	store  aggregate.Store
	engine *aggregate.Engine
	events EventPublisher
}

func NewReceiptService(store aggregate.Store, engine *aggregate.Engine, events EventPublisher) *ReceiptService {
	return &ReceiptService{
		store:  store,
		engine: engine,
		events: events,
	}
}

// CreateReceipt validates and stores a receipt. Tenant receipts trigger a
// recompute of their month's aggregates.
func (s *ReceiptService) CreateReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	if err := r.Validate(); err != nil {
		return core.Receipt{}, err
	}

	stored, err := s.store.Insert(ctx, r)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
	}

	if stored.Kind() == core.KindTenantReceipt {
		s.recomputeMonth(ctx, stored.ReceiptDate.Time)
		s.publish(ctx, amqp.NewReceiptChangedMessage(stored.ID, amqp.ActionCreated, stored.ReceiptDate, nil))
	}

	return stored, nil
}

// GetReceipt returns a single receipt by id.
func (s *ReceiptService) GetReceipt(ctx context.Context, id string) (core.Receipt, error) {
	return s.store.Get(ctx, id)
}

// List views over the receipt table. Synthetic rows share the table with
// tenant receipts; each view decides which side it wants.
const (
	ViewAll      = ""
	ViewReceipts = "receipts" // tenant rows only
	ViewEB       = "eb"       // sentinel rows only
)

// ListOptions narrows a receipt listing.
type ListOptions struct {
	Limit      int
	TenantName string
	View       string
}

// ListReceipts returns receipts newest first, filtered per the options.
func (s *ReceiptService) ListReceipts(ctx context.Context, opts ListOptions) ([]core.Receipt, error) {
	f := core.ReceiptFilter{Limit: opts.Limit}
	switch opts.View {
	case ViewReceipts:
		f.TenantNotIn = core.SentinelNames()
	case ViewEB:
		f.TenantIn = core.SentinelNames()
	}
	if opts.TenantName != "" {
		f.TenantIn = []string{opts.TenantName}
	}

	rows, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return rows, nil
}

// UpdateReceipt applies a partial update. Aggregate rows are owned by the
// engine and cannot be edited. When the update moves a tenant receipt across
// months, both the old and the new month are recomputed.
func (s *ReceiptService) UpdateReceipt(ctx context.Context, id string, patch core.ReceiptPatch) (core.Receipt, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Receipt{}, err
	}
	if existing.Kind().IsAggregate() {
		return core.Receipt{}, core.ErrAggregateReadOnly
	}

	next := existing
	patch.Apply(&next)
	if err := next.Validate(); err != nil {
		return core.Receipt{}, err
	}

	updated, err := s.store.Update(ctx, next)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("update receipt %s: %w", id, err)
	}

	if existing.Kind() == core.KindTenantReceipt || updated.Kind() == core.KindTenantReceipt {
		// Post-update date decides the recompute month; the pre-update month
		// is recomputed too when the date moved, so no stale aggregate is
		// left behind.
		s.recomputeMonth(ctx, updated.ReceiptDate.Time)
		var previous *core.Date
		if core.MonthOf(existing.ReceiptDate.Time) != core.MonthOf(updated.ReceiptDate.Time) {
			s.recomputeMonth(ctx, existing.ReceiptDate.Time)
			previous = &existing.ReceiptDate
		}
		s.publish(ctx, amqp.NewReceiptChangedMessage(updated.ID, amqp.ActionUpdated, updated.ReceiptDate, previous))
	}

	return updated, nil
}

// DeleteReceipt removes a receipt. For tenant receipts the month captured
// before removal is recomputed afterwards.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete receipt %s: %w", id, err)
	}

	if existing.Kind() == core.KindTenantReceipt {
		s.recomputeMonth(ctx, existing.ReceiptDate.Time)
		s.publish(ctx, amqp.NewReceiptChangedMessage(id, amqp.ActionDeleted, existing.ReceiptDate, nil))
	}

	return nil
}

// RecordPaymentInput carries the explicit "record payment" action.
type RecordPaymentInput struct {
	ReceiptID   string
	PaymentDate core.Date
	PaymentMode string
}

// RecordPayment transitions a receipt from Unpaid to Paid. There is no
// reverse transition.
func (s *ReceiptService) RecordPayment(ctx context.Context, in RecordPaymentInput) (core.Receipt, error) {
	if in.PaymentDate.IsZero() {
		return core.Receipt{}, core.ErrMissingDate
	}
	if !core.ValidPaymentMode(in.PaymentMode) {
		return core.Receipt{}, core.ErrInvalidPaymentMode
	}

	existing, err := s.store.Get(ctx, in.ReceiptID)
	if err != nil {
		return core.Receipt{}, err
	}
	if existing.Kind().IsAggregate() {
		return core.Receipt{}, core.ErrAggregateReadOnly
	}
	if existing.IsPaid() {
		return core.Receipt{}, core.ErrAlreadyPaid
	}

	next := existing
	next.ReceivedDate = &in.PaymentDate
	next.PaymentMode = &in.PaymentMode

	updated, err := s.store.Update(ctx, next)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("record payment for %s: %w", in.ReceiptID, err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"receipt_id", updated.ID,
		"tenant", updated.TenantName,
		"payment_date", in.PaymentDate.String(),
		"payment_mode", in.PaymentMode)

	if updated.Kind() == core.KindTenantReceipt {
		s.recomputeMonth(ctx, updated.ReceiptDate.Time)
		s.publish(ctx, amqp.NewReceiptChangedMessage(updated.ID, amqp.ActionUpdated, updated.ReceiptDate, nil))
	}

	return updated, nil
}

// EBBillPaymentInput carries the manual bi-monthly utility bill payment.
type EBBillPaymentInput struct {
	UnitsConsumed     float64
	EBAmount          float64
	PaymentDate       core.Date
	UnitsRecordedDate core.Date
}

// RecordEBBillPayment stores a standalone "EB bill paid" row. It is paid
// immediately and never participates in aggregation.
func (s *ReceiptService) RecordEBBillPayment(ctx context.Context, in EBBillPaymentInput) (core.Receipt, error) {
	if in.PaymentDate.IsZero() || in.UnitsRecordedDate.IsZero() {
		return core.Receipt{}, core.ErrMissingDate
	}

	rate := 0.0
	if in.UnitsConsumed > 0 {
		rate = in.EBAmount / in.UnitsConsumed
	}
	mode := core.PaymentModeManual

	row := core.Receipt{
		ReceiptDate:        in.UnitsRecordedDate,
		TenantName:         core.SentinelEBBillPaid,
		EBReadingThisMonth: in.UnitsConsumed,
		EBRatePerUnit:      rate,
		UnitsConsumed:      in.UnitsConsumed,
		EBCharges:          in.EBAmount,
		RentAmount:         0,
		TotalAmount:        in.EBAmount,
		ReceivedDate:       &in.PaymentDate,
		PaymentMode:        &mode,
	}

	stored, err := s.store.Insert(ctx, row)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("record EB bill payment: %w", err)
	}

	slog.InfoContext(ctx, "EB bill payment recorded",
		"receipt_id", stored.ID,
		"units", in.UnitsConsumed,
		"amount", in.EBAmount)

	return stored, nil
}

// MonthSummary is a month's synthetic rows plus the number of receipts each
// one was derived from.
type MonthSummary struct {
	Month          string        `json:"month"`
	EBBill         *core.Receipt `json:"eb_bill"`
	EBUsed         *core.Receipt `json:"eb_used"`
	EBBillReceipts int           `json:"eb_bill_receipts"`
	EBUsedReceipts int           `json:"eb_used_receipts"`
}

// GetMonthSummary returns the month's aggregates and their provenance counts.
// A month with no qualifying receipts returns nil rows and zero counts.
func (s *ReceiptService) GetMonthSummary(ctx context.Context, ym core.YearMonth) (MonthSummary, error) {
	out := MonthSummary{Month: ym.String()}
	anchor := ym.First().Time

	rows, err := s.store.Query(ctx, core.ReceiptFilter{
		TenantIn: []string{core.SentinelTenantEBBill, core.SentinelTenantEBUsed},
		From:     ym.First(),
		To:       ym.Last(),
	})
	if err != nil {
		return MonthSummary{}, fmt.Errorf("month summary %s: %w", ym, err)
	}
	for i := range rows {
		switch rows[i].Kind() {
		case core.KindAggregateEBBill:
			out.EBBill = &rows[i]
		case core.KindAggregateEBUsed:
			out.EBUsed = &rows[i]
		}
	}

	if out.EBBillReceipts, err = s.engine.ReceiptsCountForMonth(ctx, anchor, core.KindAggregateEBBill); err != nil {
		return MonthSummary{}, fmt.Errorf("month summary %s: %w", ym, err)
	}
	if out.EBUsedReceipts, err = s.engine.ReceiptsCountForMonth(ctx, anchor, core.KindAggregateEBUsed); err != nil {
		return MonthSummary{}, fmt.Errorf("month summary %s: %w", ym, err)
	}

	return out, nil
}

// recomputeMonth runs the month's aggregate recompute as a best-effort side
// effect. Failures are logged and swallowed; the store stays authoritative
// and the next write or sweep repairs the staleness.
func (s *ReceiptService) recomputeMonth(ctx context.Context, anchor time.Time) {
	if err := s.engine.RecomputeBoth(ctx, anchor); err != nil {
		slog.ErrorContext(ctx, "Aggregation recompute failed",
			"error", err,
			"month", core.MonthOf(anchor).String())
	}
}

func (s *ReceiptService) publish(ctx context.Context, msg *amqp.ReceiptChangedMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReceiptChanged(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish receipt changed message",
			"error", err,
			"receipt_id", msg.ReceiptID,
			"action", msg.Action)
	}
}
