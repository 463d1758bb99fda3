package version

import (
	"strings"
	"testing"
)

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestVersionStringFlagsUnparsable(t *testing.T) {
	old := Version
	Version = "not a version"
	t.Cleanup(func() { Version = old })
	if s := String(); !strings.Contains(s, "(unparsed)") {
		t.Fatalf("expected unparsed marker, got %q", s)
	}
}
