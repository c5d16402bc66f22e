package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Commit
	Commit = "abc1234"
	defer func() { Commit = old }()

	got := String()
	if !strings.HasPrefix(got, Version+" ") {
		t.Fatalf("String() = %q, want prefix %q", got, Version)
	}
	if !strings.Contains(got, "commit: abc1234") {
		t.Fatalf("String() = %q, want injected commit", got)
	}
}
