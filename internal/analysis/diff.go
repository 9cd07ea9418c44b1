package analysis

import (
	"math"
	"sort"
)

// FieldDiff is one numeric field's before/after comparison.
type FieldDiff struct {
	Before  float64
	After   float64
	Delta   float64
	Changed bool
}

// ChangedThreshold is the minimum |delta| that counts as a real change
// (§4.4): below this, a diffed field is reported but marked unchanged.
const ChangedThreshold = 1e-3

// StemDiff is the set of field diffs for one stem, identified by file name.
type StemDiff struct {
	FileName string
	Fields   map[string]FieldDiff
}

// Diff is the full pairwise comparison between a stage's pre- and
// post-analysis records (§3 StageDiff).
type Diff struct {
	StageID string
	Session map[string]FieldDiff
	Stems   []StemDiff
}

// Compute derives a Diff from two AnalysisRecords of the same stage. Only
// fields present as numeric values in both records are compared; everything
// else is silently ignored (a stage adding a new non-numeric diagnostic
// field between pre and post is not a "change" in this model).
func Compute(pre, post Record) Diff {
	d := Diff{StageID: pre.StageID}
	d.Session = diffNumericMaps(pre.Session, post.Session)

	preByFile := stemsByFile(pre.Stems)
	postByFile := stemsByFile(post.Stems)

	names := make([]string, 0, len(preByFile))
	for name := range preByFile {
		if _, ok := postByFile[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		d.Stems = append(d.Stems, StemDiff{
			FileName: name,
			Fields:   diffNumericMaps(preByFile[name].Values, postByFile[name].Values),
		})
	}
	return d
}

func stemsByFile(stems []StemMeasurement) map[string]StemMeasurement {
	out := make(map[string]StemMeasurement, len(stems))
	for _, s := range stems {
		out[s.FileName] = s
	}
	return out
}

func diffNumericMaps(before, after map[string]any) map[string]FieldDiff {
	out := map[string]FieldDiff{}
	keys := make([]string, 0, len(before))
	for k := range before {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		bv, bok := asFloat(before[k])
		av, aok := asFloat(after[k])
		if !bok || !aok {
			continue
		}
		out[k] = diffField(bv, av)
	}
	return out
}

func diffField(before, after float64) FieldDiff {
	delta := deltaOf(before, after)
	return FieldDiff{
		Before:  before,
		After:   after,
		Delta:   delta,
		Changed: changed(delta),
	}
}

// deltaOf implements the §4.4 numeric edge cases for -inf comparisons:
// -inf vs -inf -> 0; -inf vs finite -> +inf.
func deltaOf(before, after float64) float64 {
	if math.IsInf(before, -1) && math.IsInf(after, -1) {
		return 0
	}
	if math.IsInf(before, -1) && !math.IsInf(after, -1) {
		return math.Inf(1)
	}
	if math.IsInf(after, -1) && !math.IsInf(before, -1) {
		return math.Inf(-1)
	}
	return after - before
}

func changed(delta float64) bool {
	if math.IsInf(delta, 0) {
		return true
	}
	return math.Abs(delta) >= ChangedThreshold
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// AllUnchanged reports whether every field in the diff (session and stems)
// is unchanged — used to assert the analysis-only invariant in §8.
func (d Diff) AllUnchanged() bool {
	for _, f := range d.Session {
		if f.Changed {
			return false
		}
	}
	for _, sd := range d.Stems {
		for _, f := range sd.Fields {
			if f.Changed {
				return false
			}
		}
	}
	return true
}
