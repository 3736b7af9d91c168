package merge

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"folio/engine/internal/diff"
	"folio/engine/internal/domain"
)

type Choice string

const (
	ChoiceCurrent Choice = "CURRENT"
	ChoiceDraft   Choice = "DRAFT"
	ChoiceBoth    Choice = "BOTH"
	ChoiceCustom  Choice = "CUSTOM"
)

type Resolution struct {
	BlockID int    `json:"blockId"`
	Choice  Choice `json:"choice"`
	Custom  string `json:"customContent,omitempty"`
}

func (r Resolution) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BlockID, validation.Required, validation.Min(1)),
		validation.Field(&r.Choice, validation.Required, validation.In(ChoiceCurrent, ChoiceDraft, ChoiceBoth, ChoiceCustom)),
	)
}

// Request carries either per-block resolutions or a complete hand-edited
// text in MergedContent, which wins when set.
type Request struct {
	Resolutions    []Resolution `json:"resolutions"`
	MergedContent  *string      `json:"mergedContent,omitempty"`
	ForceOverwrite bool         `json:"forceOverwrite"`
}

// Resolve produces the final text for preview. Unresolved mergeable blocks
// take their suggestion; unresolved conflicts take the draft side only when
// ForceOverwrite is set.
func Resolve(preview Preview, req Request) (string, error) {
	chosen := make(map[int]Resolution, len(req.Resolutions))
	for idx, res := range req.Resolutions {
		if err := res.Validate(); err != nil {
			return "", domain.Validation("INVALID_RESOLUTION", fmt.Sprintf("resolution %d is malformed", idx), err)
		}
		if _, ok := preview.FindBlock(res.BlockID); !ok {
			return "", domain.Validation(
				"UNKNOWN_BLOCK",
				fmt.Sprintf("block %d is not part of the most recent preview", res.BlockID),
				map[string]any{"blockId": res.BlockID},
			)
		}
		if _, dup := chosen[res.BlockID]; dup {
			return "", domain.Validation(
				"DUPLICATE_RESOLUTION",
				fmt.Sprintf("block %d is resolved more than once", res.BlockID),
				map[string]any{"blockId": res.BlockID},
			)
		}
		chosen[res.BlockID] = res
	}

	if req.MergedContent != nil {
		return *req.MergedContent, nil
	}

	var (
		out        []string
		unresolved []int
	)
	for _, block := range preview.Blocks {
		if res, ok := chosen[block.ID]; ok {
			out = append(out, res.apply(block)...)
			continue
		}
		switch {
		case block.Mergeable:
			out = append(out, block.AutoMerged...)
		case req.ForceOverwrite:
			out = append(out, block.Draft...)
		default:
			unresolved = append(unresolved, block.ID)
		}
	}
	if len(unresolved) > 0 {
		return "", domain.Validation(
			"UNRESOLVED_CONFLICT",
			fmt.Sprintf("%d conflict block(s) left unresolved", len(unresolved)),
			map[string]any{"blockIds": unresolved},
		)
	}
	return diff.JoinLines(out), nil
}

func (r Resolution) apply(block Block) []string {
	switch r.Choice {
	case ChoiceCurrent:
		return block.Current
	case ChoiceDraft:
		return block.Draft
	case ChoiceBoth:
		both := make([]string, 0, len(block.Current)+len(block.Draft))
		both = append(both, block.Current...)
		return append(both, block.Draft...)
	default:
		return diff.SplitLines(r.Custom)
	}
}
