package request

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sctables/internal/testutil"
)

func TestMake(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("X-Test"), "yes")
		w.Write([]byte(`{"hello": "world"}`))
	}))
	defer srv.Close()

	got, err := Make[map[string]string](t.Context(), Params{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, map[string]string{"hello": "world"})
}

func TestMakeStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](t.Context(), Params{
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want StatusError, got %v", err)
	}
	testutil.AssertEqual(t, se.StatusCode, http.StatusBadRequest)
}

func TestScrubber(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token secret123 is invalid", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](t.Context(), Params{
		Method:   http.MethodGet,
		URL:      srv.URL,
		Scrubber: strings.NewReplacer("secret123", "[EXPUNGED]"),
	})
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), "secret123") {
		t.Fatalf("error message leaks the token: %q", err)
	}
	if !strings.Contains(err.Error(), "[EXPUNGED]") {
		t.Fatalf("error message is not scrubbed: %q", err)
	}
}
