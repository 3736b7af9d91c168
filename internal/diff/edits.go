package diff

type EditKind string

const (
	EditInsert  EditKind = "INSERT"
	EditDelete  EditKind = "DELETE"
	EditReplace EditKind = "REPLACE"
)

// Edit is a maximal run of non-EQUAL operations. The base range is 0-indexed
// and half-open: the edit replaces base[BaseStart:BaseEnd] with Inserted.
// A pure insertion has BaseStart == BaseEnd.
type Edit struct {
	Kind      EditKind `json:"kind"`
	Inserted  []string `json:"insertedLines"`
	BaseStart int      `json:"baseRangeStart"`
	BaseEnd   int      `json:"baseRangeEnd"`
}

func CompileEdits(base, target string) []Edit {
	return Compile(Diff(base, target))
}

func Compile(lines []Line) []Edit {
	var (
		edits []Edit
		run   *Edit
		pos   int
	)
	flush := func() {
		if run == nil {
			return
		}
		deleted := run.BaseEnd > run.BaseStart
		switch {
		case deleted && len(run.Inserted) > 0:
			run.Kind = EditReplace
		case deleted:
			run.Kind = EditDelete
		default:
			run.Kind = EditInsert
		}
		edits = append(edits, *run)
		run = nil
	}

	for _, line := range lines {
		switch line.Op {
		case OpEqual:
			flush()
			pos++
		case OpDelete:
			if run == nil {
				run = &Edit{BaseStart: pos, BaseEnd: pos}
			}
			run.BaseEnd++
			pos++
		case OpInsert:
			if run == nil {
				run = &Edit{BaseStart: pos, BaseEnd: pos}
			}
			run.Inserted = append(run.Inserted, line.Content)
		}
	}
	flush()
	return edits
}

// Width is the number of base lines the edit consumes.
func (e Edit) Width() int {
	return e.BaseEnd - e.BaseStart
}
