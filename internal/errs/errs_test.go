package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(Decode, "fseq.Open", nil) != nil {
		t.Fatalf("expected nil error")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := Wrap(Zstd, "comblock.Read", errors.New("short read"))
	if !Is(err, Zstd) {
		t.Fatalf("expected Is(err, Zstd) to be true")
	}
	if Is(err, Decode) {
		t.Fatalf("expected Is(err, Decode) to be false")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Syscall, "filectl.Read", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected message to include cause, got %q", err.Error())
	}
}
