// Package merge implements three-way merging of line-oriented text: a flat
// merge with conflict markers, a block preview for interactive resolution,
// and the resolution step that turns chosen blocks back into text.
package merge

import (
	"folio/engine/internal/diff"
)

const separatorMarker = "======="

// Labels name the two sides in conflict markers.
type Labels struct {
	Ours   string
	Theirs string
}

var DefaultLabels = Labels{Ours: "ours", Theirs: "theirs"}

type Result struct {
	Text        string `json:"mergedText"`
	HasConflict bool   `json:"hasConflict"`
}

func Merge(base, ours, theirs string) Result {
	return MergeWithLabels(base, ours, theirs, DefaultLabels)
}

func MergeWithLabels(base, ours, theirs string, labels Labels) Result {
	switch {
	case base == ours:
		return Result{Text: theirs}
	case base == theirs:
		return Result{Text: ours}
	case ours == theirs:
		return Result{Text: ours}
	}

	editsOurs, editsTheirs := compileBoth(base, ours, theirs)
	regions := walk(diff.SplitLines(base), editsOurs, editsTheirs)

	var (
		out      []string
		conflict bool
	)
	for _, r := range regions {
		switch r.kind {
		case regionBase:
			out = append(out, r.base...)
		case regionOurs, regionBoth:
			out = append(out, r.ours...)
		case regionTheirs:
			out = append(out, r.theirs...)
		case regionConflict:
			conflict = true
			out = append(out, "<<<<<<< "+labels.Ours)
			out = append(out, r.ours...)
			out = append(out, separatorMarker)
			out = append(out, r.theirs...)
			out = append(out, ">>>>>>> "+labels.Theirs)
		}
	}
	return Result{Text: diff.JoinLines(out), HasConflict: conflict}
}
