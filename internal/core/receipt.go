package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Sentinel tenant names marking system rows. Any other tenant_name is a real
// tenant. Kept on the wire for compatibility with rows written before this
// rewrite; code should go through Kind() instead of comparing names.
const (
	SentinelEBBillPaid   = "EB bill paid"
	SentinelTenantEBBill = "Tenant EB bill"
	SentinelTenantEBUsed = "Tenant EB Used"
)

// Payment modes. The first three are the channels offered by the billing UI;
// "manual" tags hand-entered EB bill payments and "aggregated" tags rows the
// aggregation engine owns.
const (
	PaymentModeKVBAmma    = "kvb-amma"
	PaymentModeCash       = "cash"
	PaymentModeJackGPay   = "jack-gpay"
	PaymentModeManual     = "manual"
	PaymentModeAggregated = "aggregated"
)

// unpaidSentinel is the legacy "not yet paid" received_date value. New writes
// use a nil ReceivedDate; the sentinel is only honored on read.
const unpaidSentinel = "1970-01-01"

// totalAmountEpsilon bounds float comparisons when reconstructing whether a
// receipt's total included the EB charge.
const totalAmountEpsilon = 0.01

type RowKind string

const (
	KindTenantReceipt   RowKind = "tenant"
	KindManualEBPayment RowKind = "eb_bill_paid"
	KindAggregateEBBill RowKind = "aggregate_eb_bill"
	KindAggregateEBUsed RowKind = "aggregate_eb_used"
)

// SentinelName returns the tenant_name a system row of this kind carries in
// storage, or "" for tenant receipts.
func (k RowKind) SentinelName() string {
	switch k {
	case KindManualEBPayment:
		return SentinelEBBillPaid
	case KindAggregateEBBill:
		return SentinelTenantEBBill
	case KindAggregateEBUsed:
		return SentinelTenantEBUsed
	}
	return ""
}

// IsAggregate reports whether rows of this kind are owned by the aggregation
// engine.
func (k RowKind) IsAggregate() bool {
	return k == KindAggregateEBBill || k == KindAggregateEBUsed
}

// SentinelNames lists every reserved tenant_name, in the order the engine
// excludes them from aggregation input.
func SentinelNames() []string {
	return []string{SentinelEBBillPaid, SentinelTenantEBBill, SentinelTenantEBUsed}
}

// Receipt is the single persisted entity, polymorphic by tenant_name.
type Receipt struct {
	ID                 string    `json:"id"`
	ReceiptDate        Date      `json:"receipt_date"`
	TenantName         string    `json:"tenant_name"`
	EBReadingLastMonth float64   `json:"eb_reading_last_month"`
	EBReadingThisMonth float64   `json:"eb_reading_this_month"`
	EBRatePerUnit      float64   `json:"eb_rate_per_unit"`
	UnitsConsumed      float64   `json:"units_consumed"`
	EBCharges          float64   `json:"eb_charges"`
	RentAmount         float64   `json:"rent_amount"`
	TotalAmount        float64   `json:"total_amount"`
	ReceivedDate       *Date     `json:"received_date"`
	PaymentMode        *string   `json:"payment_mode"`
	IncludeInEBUsed    *bool     `json:"include_in_eb_used,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

var (
	ErrMissingDate        = errors.New("missing receipt date")
	ErrMissingTenant      = errors.New("missing tenant name")
	ErrNegativeReading    = errors.New("negative meter reading")
	ErrInvalidPaymentMode = errors.New("invalid payment mode")
	ErrAlreadyPaid        = errors.New("receipt already marked paid")
	ErrAggregateReadOnly  = errors.New("aggregate rows cannot be edited")
	ErrNotFound           = errors.New("receipt not found")
)

// Kind classifies the row by its tenant_name.
func (r Receipt) Kind() RowKind {
	switch r.TenantName {
	case SentinelEBBillPaid:
		return KindManualEBPayment
	case SentinelTenantEBBill:
		return KindAggregateEBBill
	case SentinelTenantEBUsed:
		return KindAggregateEBUsed
	}
	return KindTenantReceipt
}

// Validate checks the fields required before persistence: a date, a tenant
// and a non-negative current meter reading.
func (r Receipt) Validate() error {
	if r.ReceiptDate.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(r.TenantName) == "" {
		return ErrMissingTenant
	}
	if r.EBReadingThisMonth < 0 {
		return ErrNegativeReading
	}
	return nil
}

// CountsTowardEBUsed reports whether this row contributes to the
// "Tenant EB Used" aggregate. A missing flag means included, for rows created
// before the column existed; only an explicit false excludes.
func (r Receipt) CountsTowardEBUsed() bool {
	return r.IncludeInEBUsed == nil || *r.IncludeInEBUsed
}

// IsPaid reports whether a payment has been recorded. A nil received_date and
// the legacy 1970-01-01 sentinel both mean unpaid.
func (r Receipt) IsPaid() bool {
	if r.ReceivedDate == nil || r.ReceivedDate.IsZero() {
		return false
	}
	return r.ReceivedDate.String() != unpaidSentinel
}

// EBIncluded reconstructs whether the caller folded the EB charge into
// total_amount at creation time. Exact equality is float-unsafe, so the
// comparison allows a small epsilon.
func (r Receipt) EBIncluded() bool {
	return math.Abs(r.TotalAmount-(r.RentAmount+r.EBCharges)) < totalAmountEpsilon
}

// ValidPaymentMode reports whether mode is one of the enumerated payment
// channels a landlord can record.
func ValidPaymentMode(mode string) bool {
	switch mode {
	case PaymentModeKVBAmma, PaymentModeCash, PaymentModeJackGPay, PaymentModeManual:
		return true
	}
	return false
}

// ReceiptFilter selects receipts by tenant allow/deny lists and an inclusive
// date range. Zero dates leave the corresponding bound open.
type ReceiptFilter struct {
	TenantIn    []string
	TenantNotIn []string
	From        Date
	To          Date
	Limit       int
}

// ReceiptPatch is a partial update; nil fields are left unchanged.
type ReceiptPatch struct {
	ReceiptDate        *Date    `json:"receipt_date"`
	TenantName         *string  `json:"tenant_name"`
	EBReadingLastMonth *float64 `json:"eb_reading_last_month"`
	EBReadingThisMonth *float64 `json:"eb_reading_this_month"`
	EBRatePerUnit      *float64 `json:"eb_rate_per_unit"`
	UnitsConsumed      *float64 `json:"units_consumed"`
	EBCharges          *float64 `json:"eb_charges"`
	RentAmount         *float64 `json:"rent_amount"`
	TotalAmount        *float64 `json:"total_amount"`
	ReceivedDate       *Date    `json:"received_date"`
	PaymentMode        *string  `json:"payment_mode"`
	IncludeInEBUsed    *bool    `json:"include_in_eb_used"`
}

// Apply overlays the patch onto r.
func (p ReceiptPatch) Apply(r *Receipt) {
	if p.ReceiptDate != nil {
		r.ReceiptDate = *p.ReceiptDate
	}
	if p.TenantName != nil {
		r.TenantName = *p.TenantName
	}
	if p.EBReadingLastMonth != nil {
		r.EBReadingLastMonth = *p.EBReadingLastMonth
	}
	if p.EBReadingThisMonth != nil {
		r.EBReadingThisMonth = *p.EBReadingThisMonth
	}
	if p.EBRatePerUnit != nil {
		r.EBRatePerUnit = *p.EBRatePerUnit
	}
	if p.UnitsConsumed != nil {
		r.UnitsConsumed = *p.UnitsConsumed
	}
	if p.EBCharges != nil {
		r.EBCharges = *p.EBCharges
	}
	if p.RentAmount != nil {
		r.RentAmount = *p.RentAmount
	}
	if p.TotalAmount != nil {
		r.TotalAmount = *p.TotalAmount
	}
	if p.ReceivedDate != nil {
		r.ReceivedDate = p.ReceivedDate
	}
	if p.PaymentMode != nil {
		r.PaymentMode = p.PaymentMode
	}
	if p.IncludeInEBUsed != nil {
		r.IncludeInEBUsed = p.IncludeInEBUsed
	}
}
