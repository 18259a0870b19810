package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentbook/internal/core"
	applog "rentbook/internal/log"
	"rentbook/internal/services"
)

// receiptRequest is the create payload. Pointer fields distinguish "omitted"
// from zero so the handler can fill in derived defaults the way the billing
// form does.
type receiptRequest struct {
	ReceiptDate        core.Date  `json:"receipt_date"`
	TenantName         string     `json:"tenant_name"`
	EBReadingLastMonth float64    `json:"eb_reading_last_month"`
	EBReadingThisMonth float64    `json:"eb_reading_this_month"`
	EBRatePerUnit      *float64   `json:"eb_rate_per_unit"`
	UnitsConsumed      *float64   `json:"units_consumed"`
	EBCharges          *float64   `json:"eb_charges"`
	RentAmount         float64    `json:"rent_amount"`
	TotalAmount        *float64   `json:"total_amount"`
	ReceivedDate       *core.Date `json:"received_date"`
	PaymentMode        *string    `json:"payment_mode"`
	IncludeInEBUsed    *bool      `json:"include_in_eb_used"`
}

// toReceipt fills omitted fields from the readings: units from the meter
// delta, rate from the configured default, charges as units*rate, total as
// rent+charges.
func (req receiptRequest) toReceipt(defaultEBRate float64) core.Receipt {
	rate := defaultEBRate
	if req.EBRatePerUnit != nil {
		rate = *req.EBRatePerUnit
	}

	units := req.EBReadingThisMonth - req.EBReadingLastMonth
	if req.UnitsConsumed != nil {
		units = *req.UnitsConsumed
	}
	if units < 0 {
		units = 0
	}

	charges := units * rate
	if req.EBCharges != nil {
		charges = *req.EBCharges
	}

	total := req.RentAmount + charges
	if req.TotalAmount != nil {
		total = *req.TotalAmount
	}

	return core.Receipt{
		ReceiptDate:        req.ReceiptDate,
		TenantName:         strings.TrimSpace(req.TenantName),
		EBReadingLastMonth: req.EBReadingLastMonth,
		EBReadingThisMonth: req.EBReadingThisMonth,
		EBRatePerUnit:      rate,
		UnitsConsumed:      units,
		EBCharges:          charges,
		RentAmount:         req.RentAmount,
		TotalAmount:        total,
		ReceivedDate:       req.ReceivedDate,
		PaymentMode:        req.PaymentMode,
		IncludeInEBUsed:    req.IncludeInEBUsed,
	}
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := services.ListOptions{
		View:       q.Get("view"),
		TenantName: strings.TrimSpace(q.Get("tenant_name")),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}

	rows, err := s.svc.ListReceipts(r.Context(), opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "List receipts failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}
	if rows == nil {
		rows = []core.Receipt{}
	}
	writeData(w, http.StatusOK, rows)
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stored, err := s.svc.CreateReceipt(r.Context(), req.toReceipt(s.defaultEBRate))
	if err != nil {
		writeServiceError(w, r, err, "create receipt")
		return
	}
	writeData(w, http.StatusCreated, stored)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	stored, err := s.svc.GetReceipt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "get receipt")
		return
	}
	writeData(w, http.StatusOK, stored)
}

func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var patch core.ReceiptPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.svc.UpdateReceipt(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, r, err, "update receipt")
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteReceipt(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "delete receipt")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type paymentRequest struct {
	PaymentDate core.Date `json:"payment_date"`
	PaymentMode string    `json:"payment_mode"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.svc.RecordPayment(r.Context(), services.RecordPaymentInput{
		ReceiptID:   r.PathValue("id"),
		PaymentDate: req.PaymentDate,
		PaymentMode: req.PaymentMode,
	})
	if err != nil {
		writeServiceError(w, r, err, "record payment")
		return
	}
	writeData(w, http.StatusOK, updated)
}

type ebBillRequest struct {
	UnitsConsumed     float64   `json:"units_consumed"`
	EBAmount          float64   `json:"eb_amount"`
	PaymentDate       core.Date `json:"payment_date"`
	UnitsRecordedDate core.Date `json:"units_recorded_date"`
}

func (s *Server) handleRecordEBBill(w http.ResponseWriter, r *http.Request) {
	var req ebBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stored, err := s.svc.RecordEBBillPayment(r.Context(), services.EBBillPaymentInput{
		UnitsConsumed:     req.UnitsConsumed,
		EBAmount:          req.EBAmount,
		PaymentDate:       req.PaymentDate,
		UnitsRecordedDate: req.UnitsRecordedDate,
	})
	if err != nil {
		writeServiceError(w, r, err, "record EB bill")
		return
	}
	writeData(w, http.StatusCreated, stored)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now()

	year := now.Year()
	month := int(now.Month())
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = m
	}

	summary, err := s.svc.GetMonthSummary(r.Context(), core.YearMonth{Year: year, Month: time.Month(month)})
	if err != nil {
		slog.ErrorContext(r.Context(), "Month summary failed",
			applog.FieldError, err,
			applog.FieldMonth, core.YearMonth{Year: year, Month: time.Month(month)}.String())
		writeError(w, http.StatusInternalServerError, "failed to build month summary")
		return
	}
	writeData(w, http.StatusOK, summary)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "receipt not found")
	case errors.Is(err, core.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrAggregateReadOnly):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrMissingDate),
		errors.Is(err, core.ErrMissingTenant),
		errors.Is(err, core.ErrNegativeReading),
		errors.Is(err, core.ErrInvalidPaymentMode):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			"operation", op)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
