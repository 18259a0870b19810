package sheets

import (
	"context"

	"rentbook/internal/core"
)

// SummaryRow is one line of the backup ledger: a month's synthetic aggregate
// snapshot plus the number of receipts it was derived from.
type SummaryRow struct {
	Month        core.YearMonth
	Kind         core.RowKind
	Units        float64
	RatePerUnit  float64
	EBCharges    float64
	TotalAmount  float64
	ReceiptCount int
}

// SummaryWriter appends summary rows to a backup ledger.
type SummaryWriter interface {
	Append(ctx context.Context, row SummaryRow) (rowRef string, err error)
}
