package fingerprint

import "testing"

func TestDeriveBothOffsetsKnown(t *testing.T) {
	in := Input{
		ProcName:      "crashy",
		IP:            0x401234,
		IPOffsetKnown: true,
		IPOffset:      0x1234,
		IPModule:      "crashy",
		RAKnown:       true,
		RAOffsetKnown: true,
		RAOffset:      0x5678,
		RAModule:      "crashy",
	}

	got := Derive(in)

	want := Derive(in)
	if got.CrashID != want.CrashID || got.VectorID != want.VectorID {
		t.Fatalf("derivation not deterministic")
	}
	if len(got.CrashID) != 16 {
		t.Fatalf("CrashID must be 16 hex chars, got %q", got.CrashID)
	}
	if got.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence with all offsets known, got %s", got.Confidence)
	}
}

func TestDeriveVectorIDFallsBackToCrashIDWithoutRAOffset(t *testing.T) {
	in := Input{
		ProcName:      "crashy",
		IPOffsetKnown: true,
		IPOffset:      0x1234,
		IPModule:      "crashy",
	}

	got := Derive(in)
	if got.VectorID != got.CrashID {
		t.Fatalf("expected VectorID to equal CrashID when RA offset is unknown, got %s vs %s", got.VectorID, got.CrashID)
	}
}

func TestDeriveIPOffsetUnknownFallsBackToRawIP(t *testing.T) {
	a := Derive(Input{ProcName: "crashy", IP: 0xdeadbeef})
	b := Derive(Input{ProcName: "crashy", IP: 0xdeadbef0})
	if a.CrashID == b.CrashID {
		t.Fatalf("expected distinct CrashIDs for distinct raw IPs")
	}
}

func TestConfidenceBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want string
	}{
		{"no bits set", Input{}, ConfidenceLow},
		{"only ra known", Input{RAKnown: true}, ConfidenceLow},
		{"ra known and ip offset known", Input{RAKnown: true, IPOffsetKnown: true}, ConfidenceMedium},
		{"only ip offset known", Input{IPOffsetKnown: true}, ConfidenceMedium},
		{"ip and ra offsets known, ra not known", Input{IPOffsetKnown: true, RAOffsetKnown: true}, ConfidenceMedium},
		{"all three bits set", Input{RAKnown: true, IPOffsetKnown: true, RAOffsetKnown: true}, ConfidenceHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := confidence(tc.in)
			if got != tc.want {
				t.Fatalf("confidence(%+v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}
