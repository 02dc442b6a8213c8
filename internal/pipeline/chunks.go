package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"sctables/internal/api/google/searchconsole"
	"sctables/internal/api/google/sheets"
)

// MaxRowsPerSheet caps how many data rows go into a single destination
// spreadsheet. Result sets above the cap are split into multiple
// spreadsheets.
const MaxRowsPerSheet = 50000

// Writer materializes analytics rows as destination spreadsheets.
type Writer struct {
	Sheets *sheets.Client
	// Email is the account that receives ownership of created spreadsheets.
	Email string
	Log   *slog.Logger
	// MaxRows overrides MaxRowsPerSheet when positive.
	MaxRows int
}

func (w *Writer) maxRows() int {
	if w.MaxRows > 0 {
		return w.MaxRows
	}
	return MaxRowsPerSheet
}

// Write splits rows into row-bounded chunks and creates one spreadsheet per
// chunk: serialize to CSV, create, import, rename the tab to the date,
// transfer ownership to the configured account.
//
// An empty row set creates nothing and is not an error. Spreadsheets whose
// ownership transfer failed are reported through the unshared result, they
// never abort the batch.
func (w *Writer) Write(ctx context.Context, rows []map[string]string, nameBase, date string) (created int, unshared []string, err error) {
	if len(rows) == 0 {
		w.Log.Warn("no analytics rows, skipping", "table", nameBase, "date", date)
		return 0, nil, nil
	}

	chunks := chunkRows(rows, w.maxRows())
	for i, chunk := range chunks {
		name := nameBase
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s_%d", nameBase, i+1)
		}
		unsharedURL, err := w.writeChunk(ctx, chunk, name, date)
		if err != nil {
			return created, unshared, err
		}
		created++
		if unsharedURL != "" {
			unshared = append(unshared, unsharedURL)
		}
	}
	return created, unshared, nil
}

func (w *Writer) writeChunk(ctx context.Context, rows []map[string]string, name, date string) (unsharedURL string, err error) {
	data, err := marshalCSV(rows)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "sctables-*.csv")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	sp, err := w.Sheets.Create(ctx, name)
	if err != nil {
		return "", err
	}
	if err := w.Sheets.ImportCSV(ctx, sp.ID, data); err != nil {
		return "", err
	}
	if err := os.Remove(tmp.Name()); err != nil {
		w.Log.Warn("removing temporary CSV", "path", tmp.Name(), "error", err)
	}

	// The Drive media update replaces every tab, so re-read the metadata to
	// find the surviving one before renaming it.
	meta, err := w.Sheets.Get(ctx, sp.ID)
	if err != nil {
		return "", err
	}
	if len(meta.Sheets) > 0 {
		if err := w.Sheets.RenameSheet(ctx, sp.ID, meta.Sheets[0].Properties.SheetID, tabName(date)); err != nil {
			return "", err
		}
	}

	ok, err := w.Sheets.Share(ctx, sp.ID, w.Email, sheets.RoleOwner, true)
	if err != nil {
		w.Log.Warn("sharing failed", "table", name, "error", err)
		return sheets.FileURL(sp.ID), nil
	}
	if !ok {
		w.Log.Warn("sharing rate limited", "table", name)
		return sheets.FileURL(sp.ID), nil
	}
	return "", nil
}

// tabName converts an ISO date to the 8-digit tab title.
func tabName(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

// chunkRows splits rows into slices of at most max rows each. The final
// chunk may be smaller.
func chunkRows[T any](rows []T, max int) [][]T {
	var chunks [][]T
	for len(rows) > max {
		chunks = append(chunks, rows[:max])
		rows = rows[max:]
	}
	return append(chunks, rows)
}

// csvHeader derives the column order from the first row: the query
// dimensions in request order, then the remaining columns sorted by name.
// Rows are assumed homogeneous, the header is not re-validated against
// later rows.
func csvHeader(first map[string]string) []string {
	var header []string
	for _, d := range searchconsole.Dimensions {
		if _, ok := first[d]; ok {
			header = append(header, d)
		}
	}
	var rest []string
	for k := range first {
		if !slices.Contains(header, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(header, rest...)
}

func marshalCSV(rows []map[string]string) ([]byte, error) {
	header := csvHeader(rows[0])

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	rec := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
