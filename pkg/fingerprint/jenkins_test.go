package fingerprint

import "testing"

func TestJenkins64Deterministic(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"short", "a"},
		{"word", "crashy"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Jenkins64String(tc.in)
			again := Jenkins64String(tc.in)
			if got != again {
				t.Fatalf("hash not deterministic for %q: %x != %x", tc.in, got, again)
			}
		})
	}
}

func TestJenkins64Distinctness(t *testing.T) {
	a := Jenkins64String("crashy1234")
	b := Jenkins64String("crashy1235")
	if a == b {
		t.Fatalf("expected distinct hashes, got %x for both", a)
	}
}

func TestJenkins64EmptyInput(t *testing.T) {
	if got := Jenkins64(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %x", got)
	}
}
