// Package searchconsole provides a client for the Google Search Console
// Search Analytics API.
//
// See https://developers.google.com/webmaster-tools/v1/searchanalytics/query.
package searchconsole

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sctables/internal/api/google/serviceaccount"
	"sctables/internal/request"
)

const api = "https://searchconsole.googleapis.com"

// Scope is the OAuth scope the client requests.
const Scope = "https://www.googleapis.com/auth/webmasters.readonly"

// PageSize is the fixed row limit of a single query request. Pagination
// stops as soon as a page comes back with fewer rows than this.
const PageSize = 25000

// Dimensions are the fixed dimensions of every query, in request order. The
// API returns dimension values as a keys array in the same order.
var Dimensions = []string{"page", "query", "device", "country"}

// Client represents a Search Console API client authenticated as a service
// account.
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

type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
	StartRow   int      `json:"startRow"`
}

type queryResponse struct {
	Rows []apiRow `json:"rows"`
}

type apiRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// FetchAll fetches all analytics rows for one site and one date, paging
// until a short page is returned. Rows come back in API order; no sorting is
// applied.
func (c *Client) FetchAll(ctx context.Context, siteURL, date string) ([]map[string]string, error) {
	tok, err := c.Key.AccessToken(ctx, c.HTTPClient, Scope)
	if err != nil {
		return nil, err
	}

	var all []map[string]string
	for startRow := 0; ; {
		page, err := c.query(ctx, tok, siteURL, date, startRow)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			all = append(all, flatten(r))
		}
		if len(page) < PageSize {
			break
		}
		startRow += len(page)
	}
	return all, nil
}

func (c *Client) query(ctx context.Context, tok, siteURL, date string, startRow int) ([]apiRow, error) {
	resp, err := request.Make[queryResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    api + "/webmasters/v3/sites/" + url.PathEscape(siteURL) + "/searchAnalytics/query",
		Body: queryRequest{
			StartDate:  date,
			EndDate:    date,
			Dimensions: Dimensions,
			RowLimit:   PageSize,
			StartRow:   startRow,
		},
		Headers:    map[string]string{"Authorization": "Bearer " + tok},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, fmt.Errorf("querying analytics for %s on %s: %w", siteURL, date, err)
	}
	return resp.Rows, nil
}

// flatten merges a row's dimension values and metric fields into a flat
// column-to-value mapping.
func flatten(r apiRow) map[string]string {
	m := make(map[string]string, len(Dimensions)+4)
	for i, d := range Dimensions {
		if i < len(r.Keys) {
			m[d] = r.Keys[i]
		}
	}
	m["clicks"] = formatNumber(r.Clicks)
	m["impressions"] = formatNumber(r.Impressions)
	m["ctr"] = formatNumber(r.CTR)
	m["position"] = formatNumber(r.Position)
	return m
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	// Avoid exponent notation for very long fractions coming from the API.
	if strings.ContainsAny(s, "eE") {
		return strconv.FormatFloat(v, 'f', 10, 64)
	}
	return s
}
