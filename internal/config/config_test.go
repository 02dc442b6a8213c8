package config

import (
	"errors"
	"testing"

	"sctables/internal/store"
	"sctables/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	s := &Service{Store: store.NewMem()}
	cfg, err := s.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range Keys() {
		if _, ok := cfg[key]; !ok {
			t.Errorf("default config is missing %q", key)
		}
	}
	testutil.AssertEqual(t, cfg[KeyRunHour], "12")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	s := &Service{Store: store.NewMem()}
	cfg, err := s.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	cfg[KeyEmail] = "reports@example.com"
	if err := s.Save(t.Context(), cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, cfg)
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := &Service{Store: store.NewMem()}
	cfg, err := s.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	cfg[KeyEmail] = "reports@example.com"
	if err := s.Save(t.Context(), cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.Reset(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got[KeyEmail], "")
}

func TestValidateHour(t *testing.T) {
	t.Parallel()

	for v, wantErr := range map[string]bool{
		"8":     false,
		"12":    false,
		"23":    false,
		"7":     true,
		"24":    true,
		"-1":    true,
		"":      true,
		"13:00": true,
	} {
		_, err := ValidateHour(v)
		if gotErr := errors.Is(err, ErrInvalidHour); gotErr != wantErr {
			t.Errorf("ValidateHour(%q): got error %v, want error %v", v, err, wantErr)
		}
	}
}
