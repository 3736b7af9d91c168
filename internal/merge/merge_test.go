package merge

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/engine/internal/diff"
)

func TestMergeDisjointEditsScenario(t *testing.T) {
	result := Merge("a\nb\nc", "a\nX\nc", "a\nb\nc\nd")

	assert.False(t, result.HasConflict)
	assert.Equal(t, "a\nX\nc\nd", result.Text)
}

func TestMergeConflictingEditsScenario(t *testing.T) {
	result := Merge("line1\nline2", "line1\nLINE2_OURS", "line1\nLINE2_THEIRS")

	require.True(t, result.HasConflict)
	assert.Equal(t, strings.Join([]string{
		"line1",
		"<<<<<<< ours",
		"LINE2_OURS",
		"=======",
		"LINE2_THEIRS",
		">>>>>>> theirs",
	}, "\n"), result.Text)
}

func TestMergeLabels(t *testing.T) {
	result := MergeWithLabels("x", "y", "z", Labels{Ours: "current (v5)", Theirs: "draft (v4)"})

	require.True(t, result.HasConflict)
	assert.Contains(t, result.Text, "<<<<<<< current (v5)")
	assert.Contains(t, result.Text, ">>>>>>> draft (v4)")
}

func TestMergeFastPaths(t *testing.T) {
	texts := []string{"", "a", "a\nb\nc", "a\n", "\n\n", "x\ny\nz\nx"}
	for _, x := range texts {
		for _, y := range texts {
			assert.Equal(t, Result{Text: y}, Merge(x, y, x), "merge(%q, %q, %q)", x, y, x)
			assert.Equal(t, Result{Text: y}, Merge(x, x, y), "merge(%q, %q, %q)", x, x, y)
			assert.Equal(t, Result{Text: y}, Merge(x, y, y), "merge(%q, %q, %q)", x, y, y)
		}
	}
}

func TestMergeIdenticalEditOnBothSidesAppliesOnce(t *testing.T) {
	result := Merge("a\nb\nc", "a\nX\nc", "a\nX\nc\nd")

	assert.False(t, result.HasConflict)
	assert.Equal(t, "a\nX\nc\nd", result.Text)
}

func TestMergeInsertionsAtSamePosition(t *testing.T) {
	t.Run("different content conflicts", func(t *testing.T) {
		result := Merge("a\nb", "a\nb\nx", "a\nb\ny")

		require.True(t, result.HasConflict)
		assert.Equal(t, "a\nb\n<<<<<<< ours\nx\n=======\ny\n>>>>>>> theirs", result.Text)
	})

	t.Run("same content merges", func(t *testing.T) {
		result := Merge("a\nb", "Q\na\nb\nx", "a\nb\nx")

		assert.False(t, result.HasConflict)
		assert.Equal(t, "Q\na\nb\nx", result.Text)
	})

	t.Run("insertion against an edit starting at the same line conflicts", func(t *testing.T) {
		result := Merge("a\nb\nc", "a\nNEW\nb\nc", "a\nB\nc")

		require.True(t, result.HasConflict)
		assert.Contains(t, result.Text, "NEW")
		assert.Contains(t, result.Text, "B")
	})
}

func TestMergeOverlappingRangesWithDifferentStarts(t *testing.T) {
	result := Merge("a\nb\nc\nd", "a\nd", "a\nb\nC\nd")

	require.True(t, result.HasConflict)
	assert.Equal(t, "a\n<<<<<<< ours\n=======\nb\nC\n>>>>>>> theirs\nd", result.Text)
}

func TestMergeAdjacentEditsDoNotConflict(t *testing.T) {
	// ours rewrites line b, theirs inserts right after it
	result := Merge("a\nb\nc", "a\nB\nc", "a\nb\nnew\nc")

	assert.False(t, result.HasConflict)
	assert.Equal(t, "a\nB\nnew\nc", result.Text)
}

func TestMergeOverlappingDifferentEditsAlwaysConflict(t *testing.T) {
	cases := []struct{ base, ours, theirs string }{
		{"a\nb\nc", "a\n1\nc", "a\n2\nc"},
		{"a\nb\nc", "a\nc", "a\nB\nc"},
		{"a", "b", "c"},
		{"", "ours only", "theirs only"},
		{"k\nl\nm\nn", "k\nL\nM\nn", "k\nl\nMM\nn"},
	}
	for _, tc := range cases {
		result := Merge(tc.base, tc.ours, tc.theirs)
		require.True(t, result.HasConflict, "%+v", tc)
		for _, line := range diff.SplitLines(tc.ours) {
			assert.Contains(t, result.Text, line)
		}
		for _, line := range diff.SplitLines(tc.theirs) {
			assert.Contains(t, result.Text, line)
		}
	}
}

func TestMergeDisjointRegionsNeverConflict(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	checked := 0
	for round := 0; round < 200; round++ {
		base := make([]string, 20)
		for i := range base {
			base[i] = fmt.Sprintf("L%d", i)
		}
		head := mutate(rng, base[:10], 1, 8, round)
		tail := mutate(rng, base[10:], 2, 9, round)

		ours := diff.JoinLines(append(append([]string{}, head...), base[10:]...))
		theirs := diff.JoinLines(append(append([]string{}, base[:10]...), tail...))
		baseText := diff.JoinLines(base)

		if overlapping(diff.CompileEdits(baseText, ours), diff.CompileEdits(baseText, theirs)) {
			continue
		}
		checked++

		result := Merge(baseText, ours, theirs)
		require.False(t, result.HasConflict, "round %d", round)
		assert.Equal(t, diff.JoinLines(append(append([]string{}, head...), tail...)), result.Text)
	}
	assert.Greater(t, checked, 150)
}

// mutate edits lines in [from, to) of a copy of lines.
func mutate(rng *rand.Rand, lines []string, from, to, round int) []string {
	out := make([]string, 0, len(lines)+2)
	out = append(out, lines[:from]...)
	for i := from; i < to; i++ {
		switch rng.Intn(4) {
		case 0:
			out = append(out, lines[i])
		case 1:
			out = append(out, fmt.Sprintf("%s-edit-%d", lines[i], round))
		case 2:
		case 3:
			out = append(out, lines[i], fmt.Sprintf("ins-%d-%d", round, i))
		}
	}
	return append(out, lines[to:]...)
}

func overlapping(a, b []diff.Edit) bool {
	for _, x := range a {
		for _, y := range b {
			if x.BaseStart == y.BaseStart {
				return true
			}
			if x.BaseStart < y.BaseEnd && y.BaseStart < x.BaseEnd {
				return true
			}
			if x.Width() == 0 && y.BaseStart < x.BaseStart && x.BaseStart < y.BaseEnd {
				return true
			}
			if y.Width() == 0 && x.BaseStart < y.BaseStart && y.BaseStart < x.BaseEnd {
				return true
			}
		}
	}
	return false
}
