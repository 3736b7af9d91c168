package diff

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roundTripCases = []struct {
	name string
	a, b string
}{
	{name: "both empty", a: "", b: ""},
	{name: "from empty", a: "", b: "one\ntwo"},
	{name: "to empty", a: "one\ntwo", b: ""},
	{name: "identical", a: "a\nb\nc", b: "a\nb\nc"},
	{name: "replace middle", a: "a\nb\nc", b: "a\nX\nc"},
	{name: "append", a: "a\nb\nc", b: "a\nb\nc\nd"},
	{name: "trailing newline added", a: "a\nb", b: "a\nb\n"},
	{name: "swap", a: "a\nb", b: "b\na"},
	{name: "repeated lines", a: "x\nx\ny\nx", b: "x\ny\nx\nx\nx"},
	{name: "blank lines", a: "\n\n\n", b: "\nz\n"},
	{name: "disjoint", a: "p\nq\nr", b: "s\nt"},
}

func TestDiffRoundTrip(t *testing.T) {
	for _, tc := range roundTripCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.a, Diff(tc.a, tc.b))
			require.NoError(t, err)
			assert.Equal(t, tc.b, got)
		})
	}
}

func TestDiffOfIdenticalTextIsAllEqual(t *testing.T) {
	for _, text := range []string{"", "single", "a\nb\nc", "a\n\nb\n", "\n"} {
		for _, line := range Diff(text, text) {
			assert.Equal(t, OpEqual, line.Op, "text %q", text)
		}
	}
}

func TestDiffCanonicalScript(t *testing.T) {
	assert.Equal(t, []Line{
		{Op: OpEqual, Content: "a", LineA: 1, LineB: 1},
		{Op: OpDelete, Content: "b", LineA: 2},
		{Op: OpInsert, Content: "X", LineB: 2},
		{Op: OpEqual, Content: "c", LineA: 3, LineB: 3},
	}, Diff("a\nb\nc", "a\nX\nc"))

	// equal scores favour INSERT during the backtrack, so the moved line
	// is deleted at the top and reinserted at the bottom
	assert.Equal(t, []Line{
		{Op: OpDelete, Content: "a", LineA: 1},
		{Op: OpEqual, Content: "b", LineA: 2, LineB: 1},
		{Op: OpInsert, Content: "a", LineB: 2},
	}, Diff("a\nb", "b\na"))

	assert.Equal(t, []Line{
		{Op: OpDelete, Content: "x", LineA: 1},
		{Op: OpInsert, Content: "y", LineB: 1},
	}, Diff("x", "y"))
}

func TestSplitLines(t *testing.T) {
	assert.Empty(t, SplitLines(""))
	assert.Equal(t, []string{"a"}, SplitLines("a"))
	assert.Equal(t, []string{"a", ""}, SplitLines("a\n"))
	assert.Equal(t, []string{"", ""}, SplitLines("\n"))
}

func TestSummarize(t *testing.T) {
	stats := Summarize(Diff("a\nb\nc\nd", "a\nB\nc\ne\nf"))
	assert.Equal(t, Stats{Inserted: 3, Deleted: 2, Unchanged: 2}, stats)
}

func TestApplyRejectsMismatchedBase(t *testing.T) {
	_, err := Apply("a\nz\nc", Diff("a\nb\nc", "a\nX\nc"))
	require.Error(t, err)

	_, err = Apply("a\nb\nc\nextra", Diff("a\nb\nc", "a\nb\nc"))
	require.Error(t, err)
}

func TestUnified(t *testing.T) {
	assert.Equal(t, " a\n-b\n+X\n c\n", Unified(Diff("a\nb\nc", "a\nX\nc")))
}

func TestDiffLargeDocument(t *testing.T) {
	a := make([]string, 0, 600)
	b := make([]string, 0, 600)
	for i := 0; i < 600; i++ {
		a = append(a, fmt.Sprintf("line %d", i))
		switch {
		case i%50 == 0:
			b = append(b, fmt.Sprintf("changed %d", i))
		case i%77 == 0:
		default:
			b = append(b, fmt.Sprintf("line %d", i))
		}
	}
	textA, textB := JoinLines(a), JoinLines(b)

	got, err := Apply(textA, Diff(textA, textB))
	require.NoError(t, err)
	assert.Equal(t, textB, got)
}
