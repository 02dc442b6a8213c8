package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"sctables/internal/api/google/sheets"
)

// Entry is one row of the control spreadsheet: a site URL and the last date
// its analytics were fully processed for.
type Entry struct {
	URL      string
	LastDate string
}

// ErrConfig indicates a malformed control spreadsheet URL. It is reported to
// the operator instead of aborting the process.
var ErrConfig = errors.New("invalid worklist configuration")

// ReadWorklist reads the control spreadsheet and normalizes its rows into
// worklist entries.
//
// The first cell of a row is the site URL, the second its last processed
// date. Rows with a single cell are padded with today's date, extra cells
// are ignored, unparseable dates default to today. Rows whose first cell is
// not an absolute http(s) URL are skipped. Duplicate URLs collapse to the
// first occurrence, order preserved.
func ReadWorklist(ctx context.Context, c *sheets.Client, rawURL, today string) (entries []Entry, spreadsheetID string, err error) {
	id, err := sheets.ParseURL(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	rows, err := c.Values(ctx, id, "A:Z")
	if err != nil {
		return nil, "", err
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		u := strings.TrimSpace(row[0])
		if !isAbsoluteURL(u) {
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true

		date := today
		if len(row) > 1 {
			if d := strings.TrimSpace(row[1]); isISODate(d) {
				date = d
			}
		}
		entries = append(entries, Entry{URL: u, LastDate: date})
	}
	return entries, id, nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isISODate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// worklistCSV serializes entries in the two-column control sheet layout.
func worklistCSV(entries []Entry) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"URL", "Last date"})
	for _, e := range entries {
		w.Write([]string{e.URL, e.LastDate})
	}
	w.Flush()
	return buf.Bytes()
}
