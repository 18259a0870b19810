package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rentbook/internal/aggregate"
	"rentbook/internal/core"
	"rentbook/internal/services"
	"rentbook/internal/storage/memory"
)

func newTestServer() (*Server, *memory.Store) {
	store := memory.New()
	svc := services.NewReceiptService(store, aggregate.New(store), nil)
	return NewServer(":0", svc, 5.0), store
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
	}
	if envelope.Error != "" {
		t.Fatalf("unexpected error response: %s", envelope.Error)
	}
	if err := json.Unmarshal(envelope.Data, into); err != nil {
		t.Fatalf("decode data: %v (body: %s)", err, rec.Body.String())
	}
}

const createBody = `{
	"receipt_date": "2025-03-10",
	"tenant_name": "Sudhaagar",
	"eb_reading_last_month": 1000,
	"eb_reading_this_month": 1010,
	"rent_amount": 2500
}`

func TestCreateReceiptDerivesDefaults(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stored core.Receipt
	decodeData(t, rec, &stored)
	if stored.ID == "" {
		t.Fatalf("no id assigned")
	}
	if stored.UnitsConsumed != 10 {
		t.Fatalf("units = %v, want meter delta 10", stored.UnitsConsumed)
	}
	if stored.EBRatePerUnit != 5 {
		t.Fatalf("rate = %v, want configured default 5", stored.EBRatePerUnit)
	}
	if stored.EBCharges != 50 {
		t.Fatalf("charges = %v, want 50", stored.EBCharges)
	}
	if stored.TotalAmount != 2550 {
		t.Fatalf("total = %v, want rent+charges 2550", stored.TotalAmount)
	}
}

func TestCreateReceiptExplicitFieldsWin(t *testing.T) {
	s, _ := newTestServer()

	body := `{
		"receipt_date": "2025-03-10",
		"tenant_name": "Babu",
		"eb_reading_last_month": 1000,
		"eb_reading_this_month": 1010,
		"eb_rate_per_unit": 7,
		"rent_amount": 2500,
		"total_amount": 2500
	}`
	rec := doJSON(t, s, http.MethodPost, "/api/receipts", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stored core.Receipt
	decodeData(t, rec, &stored)
	if stored.EBRatePerUnit != 7 || stored.EBCharges != 70 {
		t.Fatalf("rate/charges = %v/%v, want 7/70", stored.EBRatePerUnit, stored.EBCharges)
	}
	// Explicit rent-only total must survive, it encodes the EB-not-included choice.
	if stored.TotalAmount != 2500 {
		t.Fatalf("total = %v, want caller's 2500", stored.TotalAmount)
	}
	if stored.EBIncluded() {
		t.Fatalf("rent-only total misread as EB included")
	}
}

func TestCreateReceiptValidation(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/receipts", `{"tenant_name": "Babu"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/receipts", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d, want 400", rec.Code)
	}
}

func TestListReceiptsViews(t *testing.T) {
	s, _ := newTestServer()

	if rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d %s", rec.Code, rec.Body.String())
	}

	var rows []core.Receipt
	rec := doJSON(t, s, http.MethodGet, "/api/receipts?view=receipts", "")
	decodeData(t, rec, &rows)
	if len(rows) != 1 || rows[0].TenantName != "Sudhaagar" {
		t.Fatalf("receipts view: %+v", rows)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/receipts?view=eb", "")
	decodeData(t, rec, &rows)
	if len(rows) != 2 {
		t.Fatalf("eb view returned %d rows, want the 2 aggregates", len(rows))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/receipts", "")
	decodeData(t, rec, &rows)
	if len(rows) != 3 {
		t.Fatalf("default view returned %d rows, want 3", len(rows))
	}
}

func TestGetReceiptNotFound(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodGet, "/api/receipts/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("404 body missing error envelope: %s", rec.Body.String())
	}
}

func TestUpdateAndDeleteReceipt(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody)
	var stored core.Receipt
	decodeData(t, rec, &stored)

	rec = doJSON(t, s, http.MethodPut, "/api/receipts/"+stored.ID, `{"rent_amount": 2600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated core.Receipt
	decodeData(t, rec, &updated)
	if updated.RentAmount != 2600 {
		t.Fatalf("rent = %v after patch, want 2600", updated.RentAmount)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/receipts/"+stored.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/receipts/"+stored.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestUpdateAggregateRejected(t *testing.T) {
	s, _ := newTestServer()

	if rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d", rec.Code)
	}

	var rows []core.Receipt
	rec := doJSON(t, s, http.MethodGet, "/api/receipts?view=eb", "")
	decodeData(t, rec, &rows)
	if len(rows) == 0 {
		t.Fatalf("no aggregates to test against")
	}

	rec = doJSON(t, s, http.MethodPut, "/api/receipts/"+rows[0].ID, `{"rent_amount": 1}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("update aggregate status = %d, want 409", rec.Code)
	}
}

func TestRecordPaymentFlow(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody)
	var stored core.Receipt
	decodeData(t, rec, &stored)

	payBody := `{"payment_date": "2025-03-20", "payment_mode": "cash"}`
	rec = doJSON(t, s, http.MethodPost, "/api/receipts/"+stored.ID+"/payment", payBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("payment status = %d, body %s", rec.Code, rec.Body.String())
	}
	var paid core.Receipt
	decodeData(t, rec, &paid)
	if !paid.IsPaid() {
		t.Fatalf("receipt not marked paid")
	}

	rec = doJSON(t, s, http.MethodPost, "/api/receipts/"+stored.ID+"/payment", payBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second payment status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/receipts/"+stored.ID+"/payment", `{"payment_date": "2025-03-20", "payment_mode": "iou"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", rec.Code)
	}
}

func TestRecordEBBill(t *testing.T) {
	s, _ := newTestServer()

	body := `{
		"units_consumed": 400,
		"eb_amount": 2000,
		"payment_date": "2025-03-18",
		"units_recorded_date": "2025-03-15"
	}`
	rec := doJSON(t, s, http.MethodPost, "/api/eb-bill", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var stored core.Receipt
	decodeData(t, rec, &stored)
	if stored.TenantName != core.SentinelEBBillPaid {
		t.Fatalf("tenant = %q, want sentinel", stored.TenantName)
	}
	if stored.EBRatePerUnit != 5 {
		t.Fatalf("rate = %v, want 2000/400", stored.EBRatePerUnit)
	}
}

func TestMonthSummary(t *testing.T) {
	s, _ := newTestServer()

	if rec := doJSON(t, s, http.MethodPost, "/api/receipts", createBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/months/summary?year=2025&month=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var summary services.MonthSummary
	decodeData(t, rec, &summary)
	if summary.Month != "2025-03" {
		t.Fatalf("month = %q, want 2025-03", summary.Month)
	}
	if summary.EBBill == nil || summary.EBUsed == nil {
		t.Fatalf("missing aggregates in summary: %+v", summary)
	}
	if summary.EBBillReceipts != 1 || summary.EBUsedReceipts != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", summary.EBBillReceipts, summary.EBUsedReceipts)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/months/summary?year=2025&month=13", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid month status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}
