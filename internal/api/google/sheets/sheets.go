// Package sheets provides a client for the subset of the Google Sheets and
// Drive APIs the pipeline needs: creating spreadsheets, replacing their
// contents with CSV data, renaming tabs, reading cell values and granting
// permissions.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"sctables/internal/api/google/serviceaccount"
	"sctables/internal/request"
)

const (
	sheetsAPI      = "https://sheets.googleapis.com"
	driveAPI       = "https://www.googleapis.com/drive/v3"
	driveUploadAPI = "https://www.googleapis.com/upload/drive/v3"
)

// Scopes are the OAuth scopes the client requests.
var Scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// RoleOwner is the Drive permission role used for ownership transfer.
const RoleOwner = "owner"

// Spreadsheet URL validation errors.
var (
	ErrBadURL = errors.New("not a Google Sheets URL")
	ErrNoID   = errors.New("spreadsheet URL is missing an ID")
)

// Client represents a Google Sheets/Drive API client authenticated as a
// service account.
type Client struct {
	// Key is the service account key used for authentication.
	Key *serviceaccount.Key
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// Spreadsheet represents spreadsheet metadata returned by the Sheets API.
type Spreadsheet struct {
	ID     string  `json:"spreadsheetId"`
	Sheets []Sheet `json:"sheets"`
}

// Sheet represents a single tab of a spreadsheet.
type Sheet struct {
	Properties struct {
		SheetID int64  `json:"sheetId"`
		Title   string `json:"title"`
	} `json:"properties"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	return c.Key.AccessToken(ctx, c.HTTPClient, Scopes...)
}

func (c *Client) authHeaders(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

// Create creates a new spreadsheet with the given title.
func (c *Client) Create(ctx context.Context, title string) (*Spreadsheet, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"properties": map[string]string{"title": title},
	}
	sp, err := request.Make[*Spreadsheet](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        sheetsAPI + "/v4/spreadsheets",
		Body:       body,
		Headers:    c.authHeaders(tok),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, fmt.Errorf("creating spreadsheet %q: %w", title, err)
	}
	return sp, nil
}

// Get retrieves spreadsheet metadata, including its tabs.
func (c *Client) Get(ctx context.Context, id string) (*Spreadsheet, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	return request.Make[*Spreadsheet](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        sheetsAPI + "/v4/spreadsheets/" + id + "?fields=spreadsheetId,sheets.properties",
		Headers:    c.authHeaders(tok),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// ImportCSV replaces the entire contents of the spreadsheet with the given
// CSV data. It performs a Drive media update with conversion, so prior
// contents are gone afterwards.
func (c *Client) ImportCSV(ctx context.Context, id string, data []byte) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	headers := c.authHeaders(tok)
	headers["Content-Type"] = "text/csv"
	if _, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPatch,
		URL:        driveUploadAPI + "/files/" + id + "?uploadType=media",
		Body:       data,
		Headers:    headers,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	}); err != nil {
		return fmt.Errorf("importing CSV into %s: %w", id, err)
	}
	return nil
}

// RenameSheet renames a single tab of the spreadsheet.
func (c *Client) RenameSheet(ctx context.Context, id string, sheetID int64, title string) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"requests": []map[string]any{{
			"updateSheetProperties": map[string]any{
				"properties": map[string]any{
					"sheetId": sheetID,
					"title":   title,
				},
				"fields": "title",
			},
		}},
	}
	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        sheetsAPI + "/v4/spreadsheets/" + id + ":batchUpdate",
		Body:       body,
		Headers:    c.authHeaders(tok),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}

// Values reads cell values of the first worksheet in the given range.
func (c *Client) Values(ctx context.Context, id, rng string) ([][]string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	type valueRange struct {
		Values [][]string `json:"values"`
	}
	vr, err := request.Make[valueRange](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        sheetsAPI + "/v4/spreadsheets/" + id + "/values/" + url.PathEscape(rng),
		Headers:    c.authHeaders(tok),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}
	return vr.Values, nil
}

// Share grants the account permissions on the spreadsheet, optionally
// transferring ownership.
//
// A rate-limit-class sharing failure returns (false, nil): the grant did not
// happen, but the condition is known and recoverable, so the caller decides
// whether and when to retry. Any other error is returned as-is.
func (c *Client) Share(ctx context.Context, id, email, role string, transferOwnership bool) (bool, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return false, err
	}
	u := driveAPI + "/files/" + id + "/permissions"
	if transferOwnership {
		u += "?transferOwnership=true"
	}
	body := map[string]any{
		"type":         "user",
		"role":         role,
		"emailAddress": email,
	}
	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        u,
		Body:       body,
		Headers:    c.authHeaders(tok),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		if isSharingRateLimited(err) {
			return false, nil
		}
		return false, fmt.Errorf("sharing %s with %s: %w", id, email, err)
	}
	return true, nil
}

func isSharingRateLimited(err error) bool {
	var se *request.StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return se.StatusCode == http.StatusForbidden &&
		strings.Contains(string(se.Body), "sharingRateLimitExceeded")
}

// FileURL returns the browser URL of the spreadsheet.
func FileURL(id string) string {
	return "https://docs.google.com/spreadsheets/d/" + id
}

// ParseURL extracts the spreadsheet ID from a Google Sheets URL.
func ParseURL(raw string) (string, error) {
	const host = "docs.google.com"
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrBadURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host != host {
		return "", ErrBadURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Expected shape: spreadsheets/d/<id>/...
	if len(parts) < 2 || parts[0] != "spreadsheets" || parts[1] != "d" {
		return "", ErrBadURL
	}
	if len(parts) < 3 || parts[2] == "" {
		return "", ErrNoID
	}
	return parts[2], nil
}
