package store

import (
	"context"
	"path/filepath"
	"testing"

	"sctables/internal/testutil"
)

func TestStore(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) Store{
		"mem": func(t *testing.T) Store { return NewMem() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLite(t.Context(), filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := mk(t)
			defer s.Close()
			ctx := context.Background()

			got, err := s.Get(ctx, "missing")
			if err != nil {
				t.Fatal(err)
			}
			if got != nil {
				t.Fatalf("missing key: want nil, got %q", got)
			}

			if err := s.Set(ctx, "key", []byte("value")); err != nil {
				t.Fatal(err)
			}
			got, err = s.Get(ctx, "key")
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, string(got), "value")

			// Overwrite.
			if err := s.Set(ctx, "key", []byte("value2")); err != nil {
				t.Fatal(err)
			}
			got, err = s.Get(ctx, "key")
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, string(got), "value2")
		})
	}
}
