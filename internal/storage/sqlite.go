package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentbook/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteStore persists receipts in a local SQLite database. The schema is
// owned by the embedded migrations, not by callers.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const receiptColumns = `id, receipt_date, tenant_name, eb_reading_last_month,
	eb_reading_this_month, eb_rate_per_unit, units_consumed, eb_charges,
	rent_amount, total_amount, received_date, payment_mode,
	include_in_eb_used, created_at`

// Insert stores a receipt, assigning an id and created_at when absent, and
// returns the stored row.
func (s *SQLiteStore) Insert(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rent_receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.ReceiptDate.String(),
		r.TenantName,
		r.EBReadingLastMonth,
		r.EBReadingThisMonth,
		r.EBRatePerUnit,
		r.UnitsConsumed,
		r.EBCharges,
		r.RentAmount,
		r.TotalAmount,
		nullDate(r.ReceivedDate),
		nullString(r.PaymentMode),
		nullBool(r.IncludeInEBUsed),
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("insert receipt: %w", err)
	}

	slog.InfoContext(ctx, "Receipt saved",
		"id", r.ID,
		"tenant", r.TenantName,
		"receipt_date", r.ReceiptDate.String(),
		"total_amount", r.TotalAmount)

	return r, nil
}

// Get returns the receipt with the given id, or core.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (core.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+receiptColumns+` FROM rent_receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Receipt{}, core.ErrNotFound
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt %s: %w", id, err)
	}
	return r, nil
}

// Query returns receipts matching the filter, newest receipt_date first with
// created_at as tie-break.
func (s *SQLiteStore) Query(ctx context.Context, f core.ReceiptFilter) ([]core.Receipt, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.TenantIn) > 0 {
		conds = append(conds, "tenant_name IN ("+placeholders(len(f.TenantIn))+")")
		for _, t := range f.TenantIn {
			args = append(args, t)
		}
	}
	if len(f.TenantNotIn) > 0 {
		conds = append(conds, "tenant_name NOT IN ("+placeholders(len(f.TenantNotIn))+")")
		for _, t := range f.TenantNotIn {
			args = append(args, t)
		}
	}
	if !f.From.IsZero() {
		conds = append(conds, "receipt_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		conds = append(conds, "receipt_date <= ?")
		args = append(args, f.To.String())
	}

	query := "SELECT " + receiptColumns + " FROM rent_receipts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY receipt_date DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []core.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// Update replaces the stored row identified by r.ID. The id and created_at
// columns are immutable.
func (s *SQLiteStore) Update(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rent_receipts
		SET receipt_date = ?, tenant_name = ?, eb_reading_last_month = ?,
		    eb_reading_this_month = ?, eb_rate_per_unit = ?, units_consumed = ?,
		    eb_charges = ?, rent_amount = ?, total_amount = ?,
		    received_date = ?, payment_mode = ?, include_in_eb_used = ?
		WHERE id = ?`,
		r.ReceiptDate.String(),
		r.TenantName,
		r.EBReadingLastMonth,
		r.EBReadingThisMonth,
		r.EBRatePerUnit,
		r.UnitsConsumed,
		r.EBCharges,
		r.RentAmount,
		r.TotalAmount,
		nullDate(r.ReceivedDate),
		nullString(r.PaymentMode),
		nullBool(r.IncludeInEBUsed),
		r.ID,
	)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("update receipt %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Receipt{}, fmt.Errorf("update receipt %s: rows affected: %w", r.ID, err)
	}
	if n == 0 {
		return core.Receipt{}, core.ErrNotFound
	}
	return s.Get(ctx, r.ID)
}

// Delete removes the receipt with the given id, or returns core.ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rent_receipts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete receipt %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete receipt %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (core.Receipt, error) {
	var (
		r            core.Receipt
		receiptDate  string
		receivedDate sql.NullString
		paymentMode  sql.NullString
		includeFlag  sql.NullBool
		createdAt    string
	)
	err := row.Scan(
		&r.ID,
		&receiptDate,
		&r.TenantName,
		&r.EBReadingLastMonth,
		&r.EBReadingThisMonth,
		&r.EBRatePerUnit,
		&r.UnitsConsumed,
		&r.EBCharges,
		&r.RentAmount,
		&r.TotalAmount,
		&receivedDate,
		&paymentMode,
		&includeFlag,
		&createdAt,
	)
	if err != nil {
		return core.Receipt{}, err
	}

	if r.ReceiptDate, err = core.ParseDate(receiptDate); err != nil {
		return core.Receipt{}, err
	}
	if receivedDate.Valid && receivedDate.String != "" {
		d, err := core.ParseDate(receivedDate.String)
		if err != nil {
			return core.Receipt{}, err
		}
		r.ReceivedDate = &d
	}
	if paymentMode.Valid {
		r.PaymentMode = &paymentMode.String
	}
	if includeFlag.Valid {
		r.IncludeInEBUsed = &includeFlag.Bool
	}
	if r.CreatedAt, err = parseCreatedAt(createdAt); err != nil {
		return core.Receipt{}, err
	}
	return r, nil
}

// parseCreatedAt accepts both the RFC3339 values this code writes and the
// "YYYY-MM-DD HH:MM:SS" values sqlite's datetime('now') default produced in
// older databases.
func parseCreatedAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullDate(d *core.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
