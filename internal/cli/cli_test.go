package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"sctables/internal/testutil"
)

func testEnv(args ...string) (*Env, *bytes.Buffer) {
	var stderr bytes.Buffer
	return &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stderr: &stderr,
	}, &stderr
}

func TestRunPassesArgs(t *testing.T) {
	t.Parallel()

	var got []string
	env, _ := testEnv("first", "second")
	err := Run(t.Context(), AppFunc(func(_ context.Context, env *Env) error {
		got = env.Args
		return nil
	}), env)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, []string{"first", "second"})
}

func TestRunVersionFlag(t *testing.T) {
	t.Parallel()

	env, stderr := testEnv("-version")
	err := Run(t.Context(), AppFunc(func(context.Context, *Env) error {
		t.Error("app ran despite -version")
		return nil
	}), env)
	if !errors.Is(err, ErrExitVersion) {
		t.Fatalf("got %v, want ErrExitVersion", err)
	}
	if stderr.Len() == 0 {
		t.Fatal("version output is empty")
	}
	if isPrintableError(err) {
		t.Fatal("version exit must not be printed as an error")
	}
}

func TestRunUndefinedFlag(t *testing.T) {
	t.Parallel()

	env, stderr := testEnv("-nonexistent")
	err := Run(t.Context(), AppFunc(func(context.Context, *Env) error {
		t.Error("app ran despite a bad flag")
		return nil
	}), env)
	if err == nil {
		t.Fatal("want an error for an undefined flag")
	}
	// The flag package already reported to stderr.
	if isPrintableError(err) {
		t.Fatal("flag errors must not be printed twice")
	}
	if stderr.Len() == 0 {
		t.Fatal("flag error output is empty")
	}
}
