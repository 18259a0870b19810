package memory

import (
	"context"
	"fmt"
	"sync"

	ports "rentbook/internal/sheets"
)

// Writer collects summary rows in memory. Used by tests and by deployments
// that run without a spreadsheet configured.
type Writer struct {
	mu   sync.Mutex
	rows []ports.SummaryRow
}

var _ ports.SummaryWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

func (w *Writer) Append(_ context.Context, row ports.SummaryRow) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []ports.SummaryRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ports.SummaryRow, len(w.rows))
	copy(out, w.rows)
	return out
}
