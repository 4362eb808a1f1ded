package version

import "testing"

func TestString(t *testing.T) {
	want := "sortir dev (commit: unknown, built: unknown)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "sortir/dev" {
		t.Errorf("UserAgent() = %q, want sortir/dev", got)
	}
}
