package deviceid

import (
	"strings"
	"testing"
)

func TestFromParts_Deterministic(t *testing.T) {
	t.Parallel()

	a := FromParts("laptop", "linux", "amd64")
	b := FromParts("laptop", "linux", "amd64")

	if !a.Equal(b) {
		t.Errorf("same parts produced different IDs: %s vs %s", a, b)
	}
}

func TestFromParts_DistinctHosts(t *testing.T) {
	t.Parallel()

	a := FromParts("laptop", "linux", "amd64")
	b := FromParts("desktop", "linux", "amd64")

	if a.Equal(b) {
		t.Errorf("different hosts produced identical ID %s", a)
	}
}

func TestFromParts_Format(t *testing.T) {
	t.Parallel()

	id := FromParts("laptop", "darwin", "arm64")

	if !strings.HasPrefix(id.String(), "device_") {
		t.Errorf("ID %q missing device_ prefix", id)
	}

	if len(id.String()) != len("device_")+16 {
		t.Errorf("ID %q has unexpected length %d", id, len(id.String()))
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	orig := FromParts("laptop", "linux", "amd64")

	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", orig, err)
	}

	if !parsed.Equal(orig) {
		t.Errorf("round trip changed ID: %s vs %s", parsed, orig)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	id, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\"): %v", err)
	}

	if !id.IsZero() {
		t.Errorf("Parse(\"\") = %q, want zero ID", id)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{"laptop", "device_short", "device_" + strings.Repeat("x", 32)}

	for _, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", raw)
		}
	}
}

func TestNew_UsesCurrentHost(t *testing.T) {
	t.Parallel()

	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if id.IsZero() {
		t.Error("New returned zero ID")
	}
}
