package core

import (
	"testing"
	"time"
)

func TestReceiptKind(t *testing.T) {
	cases := []struct {
		tenant string
		want   RowKind
	}{
		{"Sudhaagar", KindTenantReceipt},
		{SentinelEBBillPaid, KindManualEBPayment},
		{SentinelTenantEBBill, KindAggregateEBBill},
		{SentinelTenantEBUsed, KindAggregateEBUsed},
	}
	for i, tc := range cases {
		if got := (Receipt{TenantName: tc.tenant}).Kind(); got != tc.want {
			t.Fatalf("case %d: got %s, want %s", i, got, tc.want)
		}
	}
}

func TestReceiptValidate(t *testing.T) {
	good := Receipt{
		ReceiptDate:        NewDate(2025, time.March, 5),
		TenantName:         "Babu",
		EBReadingThisMonth: 120,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		r    Receipt
		want error
	}{
		{Receipt{TenantName: "Babu", EBReadingThisMonth: 1}, ErrMissingDate},
		{Receipt{ReceiptDate: NewDate(2025, time.March, 5), TenantName: "  ", EBReadingThisMonth: 1}, ErrMissingTenant},
		{Receipt{ReceiptDate: NewDate(2025, time.March, 5), TenantName: "Babu", EBReadingThisMonth: -1}, ErrNegativeReading},
	}
	for i, tc := range bads {
		if err := tc.r.Validate(); err != tc.want {
			t.Fatalf("case %d: got %v, want %v", i, err, tc.want)
		}
	}
}

func TestIsPaid(t *testing.T) {
	paid := NewDate(2025, time.April, 2)
	epoch := NewDate(1970, time.January, 1)
	cases := []struct {
		received *Date
		want     bool
	}{
		{nil, false},
		{&Date{}, false},
		{&epoch, false}, // legacy unpaid sentinel
		{&paid, true},
	}
	for i, tc := range cases {
		r := Receipt{ReceivedDate: tc.received}
		if got := r.IsPaid(); got != tc.want {
			t.Fatalf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestEBIncluded(t *testing.T) {
	cases := []struct {
		rent, charges, total float64
		want                 bool
	}{
		{2500, 100, 2600, true},
		{2500, 100, 2500, false},
		{2500, 100, 2600.005, true}, // within epsilon
		{3500, 0, 3500, true},       // zero EB charge is trivially included
	}
	for i, tc := range cases {
		r := Receipt{RentAmount: tc.rent, EBCharges: tc.charges, TotalAmount: tc.total}
		if got := r.EBIncluded(); got != tc.want {
			t.Fatalf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestCountsTowardEBUsed(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		flag *bool
		want bool
	}{
		{nil, true}, // rows older than the column
		{&yes, true},
		{&no, false},
	}
	for i, tc := range cases {
		r := Receipt{IncludeInEBUsed: tc.flag}
		if got := r.CountsTowardEBUsed(); got != tc.want {
			t.Fatalf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestPatchApply(t *testing.T) {
	r := Receipt{
		ReceiptDate: NewDate(2025, time.March, 5),
		TenantName:  "Babu",
		RentAmount:  3500,
		TotalAmount: 3500,
	}
	rent := 3600.0
	date := NewDate(2025, time.April, 1)
	mode := PaymentModeCash
	(ReceiptPatch{RentAmount: &rent, ReceivedDate: &date, PaymentMode: &mode}).Apply(&r)

	if r.RentAmount != 3600 {
		t.Fatalf("rent not patched: %v", r.RentAmount)
	}
	if r.TenantName != "Babu" || r.TotalAmount != 3500 {
		t.Fatalf("untouched fields changed: %+v", r)
	}
	if r.ReceivedDate == nil || r.ReceivedDate.String() != "2025-04-01" {
		t.Fatalf("received date not patched: %v", r.ReceivedDate)
	}
	if r.PaymentMode == nil || *r.PaymentMode != PaymentModeCash {
		t.Fatalf("payment mode not patched: %v", r.PaymentMode)
	}
}
