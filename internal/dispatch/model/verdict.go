package model

import (
	"fmt"
	"strings"
)

// Verdict is the judged outcome of a checkpoint, a worker or a submission.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictCE  Verdict = "CE"
)

var severity = map[Verdict]int{
	VerdictAC:  0,
	VerdictWA:  1,
	VerdictTLE: 2,
	VerdictCE:  3,
}

// Severity orders verdicts: CE > TLE > WA > AC. Unknown verdicts rank below AC.
func (v Verdict) Severity() int {
	if s, ok := severity[v]; ok {
		return s
	}
	return -1
}

// Valid reports whether v is one of the four verdicts.
func (v Verdict) Valid() bool {
	_, ok := severity[v]
	return ok
}

// ParseVerdict accepts a verdict name case-insensitively.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("unknown verdict %q", s)
	}
	return v, nil
}

// MoreSevere returns whichever of a and b ranks higher.
func MoreSevere(a, b Verdict) Verdict {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// MostSevere folds vs into a single verdict. An empty list is AC.
func MostSevere(vs ...Verdict) Verdict {
	out := VerdictAC
	for _, v := range vs {
		out = MoreSevere(out, v)
	}
	return out
}
