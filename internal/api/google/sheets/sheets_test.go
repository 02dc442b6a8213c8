package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sctables/internal/api/google/serviceaccount"
	"sctables/internal/testutil"
)

func TestParseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		url     string
		id      string
		wantErr error
	}{
		"canonical": {
			url: "https://docs.google.com/spreadsheets/d/abc123/edit#gid=0",
			id:  "abc123",
		},
		"no trailing path": {
			url: "https://docs.google.com/spreadsheets/d/abc123",
			id:  "abc123",
		},
		"http scheme": {
			url: "http://docs.google.com/spreadsheets/d/abc123",
			id:  "abc123",
		},
		"wrong host": {
			url:     "https://example.com/spreadsheets/d/abc123",
			wantErr: ErrBadURL,
		},
		"not a spreadsheet path": {
			url:     "https://docs.google.com/document/d/abc123",
			wantErr: ErrBadURL,
		},
		"missing ID": {
			url:     "https://docs.google.com/spreadsheets/d/",
			wantErr: ErrNoID,
		},
		"not a URL at all": {
			url:     "definitely not",
			wantErr: ErrBadURL,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			id, err := ParseURL(tc.url)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, id, tc.id)
		})
	}
}

func TestFileURL(t *testing.T) {
	t.Parallel()
	testutil.AssertEqual(t, FileURL("abc123"), "https://docs.google.com/spreadsheets/d/abc123")
}

func TestShare(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status  int
		body    string
		shared  bool
		wantErr bool
	}{
		"granted":      {status: http.StatusOK, body: "{}", shared: true},
		"rate limited": {status: http.StatusTooManyRequests, body: "{}"},
		"sharing limit": {
			status: http.StatusForbidden,
			body:   `{"error": {"errors": [{"reason": "sharingRateLimitExceeded"}]}}`,
		},
		"other forbidden": {
			status:  http.StatusForbidden,
			body:    `{"error": {"errors": [{"reason": "insufficientFilePermissions"}]}}`,
			wantErr: true,
		},
		"server error": {status: http.StatusInternalServerError, body: "{}", wantErr: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := testSheetsClient(t, map[string]http.HandlerFunc{
				"POST www.googleapis.com/drive/v3/files/{id}/permissions": func(w http.ResponseWriter, r *http.Request) {
					testutil.AssertEqual(t, r.URL.Query().Get("transferOwnership"), "true")
					w.WriteHeader(tc.status)
					w.Write([]byte(tc.body))
				},
			})

			shared, err := c.Share(context.Background(), "abc123", "owner@example.com", RoleOwner, true)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, shared, tc.shared)
		})
	}
}

func TestValues(t *testing.T) {
	t.Parallel()

	want := [][]string{{"https://example.com/", "2024-01-05"}}
	c := testSheetsClient(t, map[string]http.HandlerFunc{
		"GET sheets.googleapis.com/v4/spreadsheets/{id}/values/{rng}": func(w http.ResponseWriter, r *http.Request) {
			testutil.AssertEqual(t, r.PathValue("id"), "abc123")
			json.NewEncoder(w).Encode(map[string]any{"values": want})
		},
	})

	got, err := c.Values(context.Background(), "abc123", "A:Z")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, want)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testSheetsClient(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	key := &serviceaccount.Key{
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(priv),
		})),
		ClientEmail: "svc@test.iam.gserviceaccount.com",
		TokenURI:    "https://oauth.test/token",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST oauth.test/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
	})
	for pat, h := range handlers {
		mux.HandleFunc(pat, h)
	}

	return &Client{
		Key: key,
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, r)
				return w.Result(), nil
			}),
		},
	}
}
