package merge

import (
	"slices"

	"golang.org/x/sync/errgroup"

	"folio/engine/internal/diff"
)

type regionKind int

const (
	regionBase regionKind = iota
	regionOurs
	regionTheirs
	regionBoth
	regionConflict
)

// region is one step of the three-cursor walk: a base range together with
// what each side turned it into.
type region struct {
	kind   regionKind
	start  int
	end    int
	base   []string
	ours   []string
	theirs []string
}

func compileBoth(base, ours, theirs string) (editsOurs, editsTheirs []diff.Edit) {
	var g errgroup.Group
	g.Go(func() error {
		editsOurs = diff.CompileEdits(base, ours)
		return nil
	})
	g.Go(func() error {
		editsTheirs = diff.CompileEdits(base, theirs)
		return nil
	})
	_ = g.Wait()
	return editsOurs, editsTheirs
}

// walk advances a base cursor and one cursor per edit list. Edits from the
// two sides that overlap, including pure insertions at the same position,
// are grouped into a single region.
func walk(base []string, editsOurs, editsTheirs []diff.Edit) []region {
	var (
		regions []region
		pos     int
		i, j    int
	)
	for {
		oursStarts := i < len(editsOurs) && editsOurs[i].BaseStart == pos
		theirsStarts := j < len(editsTheirs) && editsTheirs[j].BaseStart == pos

		if !oursStarts && !theirsStarts {
			if pos >= len(base) {
				break
			}
			next := len(base)
			if i < len(editsOurs) && editsOurs[i].BaseStart < next {
				next = editsOurs[i].BaseStart
			}
			if j < len(editsTheirs) && editsTheirs[j].BaseStart < next {
				next = editsTheirs[j].BaseStart
			}
			if next <= pos {
				next = pos + 1
			}
			segment := base[pos:next]
			regions = append(regions, region{
				kind:   regionBase,
				start:  pos,
				end:    next,
				base:   segment,
				ours:   segment,
				theirs: segment,
			})
			pos = next
			continue
		}

		start, end := pos, pos
		fromOurs, fromTheirs := i, j
		if oursStarts {
			end = max(end, editsOurs[i].BaseEnd)
			i++
		}
		if theirsStarts {
			end = max(end, editsTheirs[j].BaseEnd)
			j++
		}
		for {
			grew := false
			if i < len(editsOurs) && editsOurs[i].BaseStart < end {
				end = max(end, editsOurs[i].BaseEnd)
				i++
				grew = true
			}
			if j < len(editsTheirs) && editsTheirs[j].BaseStart < end {
				end = max(end, editsTheirs[j].BaseEnd)
				j++
				grew = true
			}
			if !grew {
				break
			}
		}

		r := region{
			start:  start,
			end:    end,
			base:   base[start:end],
			ours:   render(base, start, end, editsOurs[fromOurs:i]),
			theirs: render(base, start, end, editsTheirs[fromTheirs:j]),
		}
		switch {
		case fromTheirs == j:
			r.kind = regionOurs
		case fromOurs == i:
			r.kind = regionTheirs
		case slices.Equal(r.ours, r.theirs):
			r.kind = regionBoth
		default:
			r.kind = regionConflict
		}
		regions = append(regions, r)
		pos = end
	}
	return regions
}

// render applies edits, all lying inside [start, end), to that base range.
func render(base []string, start, end int, edits []diff.Edit) []string {
	out := make([]string, 0, end-start)
	cursor := start
	for _, edit := range edits {
		out = append(out, base[cursor:edit.BaseStart]...)
		out = append(out, edit.Inserted...)
		cursor = edit.BaseEnd
	}
	return append(out, base[cursor:end]...)
}
