package merge

import (
	"folio/engine/internal/diff"
)

type BlockType string

const (
	BlockEqual       BlockType = "EQUAL"
	BlockCurrentOnly BlockType = "CURRENT_ONLY"
	BlockDraftOnly   BlockType = "DRAFT_ONLY"
	BlockConflict    BlockType = "CONFLICT"
)

// Block is one step of the preview walk. StartLine and EndLine locate the
// block in the base text (1-indexed, inclusive); a pure insertion has
// EndLine == StartLine-1.
type Block struct {
	ID         int       `json:"blockId"`
	Type       BlockType `json:"type"`
	Base       []string  `json:"baseContent"`
	Current    []string  `json:"currentContent"`
	Draft      []string  `json:"draftContent"`
	AutoMerged []string  `json:"autoMergedContent,omitempty"`
	Mergeable  bool      `json:"mergeable"`
	StartLine  int       `json:"startLine"`
	EndLine    int       `json:"endLine"`
}

type Preview struct {
	Blocks             []Block `json:"blocks"`
	HasConflict        bool    `json:"hasConflict"`
	ConflictBlockCount int     `json:"conflictBlockCount"`
}

// PreviewMerge runs the merge walk and reports every step as a block
// instead of flattening it into marked-up text.
func PreviewMerge(base, current, draft string) Preview {
	editsCurrent, editsDraft := compileBoth(base, current, draft)
	regions := walk(diff.SplitLines(base), editsCurrent, editsDraft)

	preview := Preview{Blocks: make([]Block, 0, len(regions))}
	for idx, r := range regions {
		block := Block{
			ID:        idx + 1,
			Base:      nonNil(r.base),
			Current:   nonNil(r.ours),
			Draft:     nonNil(r.theirs),
			Mergeable: true,
			StartLine: r.start + 1,
			EndLine:   r.end,
		}
		switch r.kind {
		case regionBase:
			block.Type = BlockEqual
			block.AutoMerged = block.Base
		case regionOurs, regionBoth:
			// identical edits on both sides are already live in current
			block.Type = BlockCurrentOnly
			block.AutoMerged = block.Current
		case regionTheirs:
			block.Type = BlockDraftOnly
			block.AutoMerged = block.Draft
		case regionConflict:
			block.Type = BlockConflict
			block.Mergeable = false
			preview.HasConflict = true
			preview.ConflictBlockCount++
		}
		preview.Blocks = append(preview.Blocks, block)
	}
	return preview
}

// AutoMergedText joins the auto-merge suggestions. It reports false when
// any block needs a manual decision.
func (p Preview) AutoMergedText() (string, bool) {
	var out []string
	for _, block := range p.Blocks {
		if !block.Mergeable {
			return "", false
		}
		out = append(out, block.AutoMerged...)
	}
	return diff.JoinLines(out), true
}

func (p Preview) FindBlock(id int) (Block, bool) {
	for _, block := range p.Blocks {
		if block.ID == id {
			return block, true
		}
	}
	return Block{}, false
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
