package model

import "testing"

func TestMostSeverePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Verdict
		want Verdict
	}{
		{"empty", nil, VerdictAC},
		{"all accepted", []Verdict{VerdictAC, VerdictAC}, VerdictAC},
		{"wrong answer", []Verdict{VerdictAC, VerdictWA}, VerdictWA},
		{"timeout beats wrong answer", []Verdict{VerdictWA, VerdictTLE, VerdictAC}, VerdictTLE},
		{"compile error beats all", []Verdict{VerdictTLE, VerdictCE, VerdictWA}, VerdictCE},
	}
	for _, tt := range tests {
		if got := MostSevere(tt.in...); got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	if v, err := ParseVerdict(" tle "); err != nil || v != VerdictTLE {
		t.Fatalf("expected TLE, got %q (%v)", v, err)
	}
	if _, err := ParseVerdict("MLE"); err == nil {
		t.Fatalf("expected error for unsupported verdict")
	}
}
