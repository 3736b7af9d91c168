package merge

import (
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"folio/engine/internal/domain"
)

type FieldConflict struct {
	Field   string `json:"field"`
	Base    string `json:"base"`
	Current string `json:"current"`
	Draft   string `json:"draft"`
}

// FieldMerge is the three-way merge of single-valued fields. Values holds
// the merged value of every field; a conflicting field provisionally holds
// the draft value.
type FieldMerge struct {
	Values    map[string]string `json:"values"`
	Conflicts []FieldConflict   `json:"conflicts,omitempty"`
}

type FieldResolution struct {
	Field  string `json:"field"`
	Choice Choice `json:"choice"`
	Custom string `json:"customValue,omitempty"`
}

func (r FieldResolution) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Field, validation.Required),
		validation.Field(&r.Choice, validation.Required, validation.In(ChoiceCurrent, ChoiceDraft, ChoiceCustom)),
	)
}

func MergeFields(base, current, draft map[string]string) FieldMerge {
	names := make(map[string]struct{})
	for _, m := range []map[string]string{base, current, draft} {
		for name := range m {
			names[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	result := FieldMerge{Values: make(map[string]string, len(sorted))}
	for _, name := range sorted {
		b, c, d := base[name], current[name], draft[name]
		switch {
		case c == d, b == d:
			result.Values[name] = c
		case b == c:
			result.Values[name] = d
		default:
			result.Values[name] = d
			result.Conflicts = append(result.Conflicts, FieldConflict{Field: name, Base: b, Current: c, Draft: d})
		}
	}
	return result
}

// ResolveFields settles conflicting fields. A CUSTOM resolution may also
// override a field that merged cleanly.
func ResolveFields(merged FieldMerge, resolutions []FieldResolution, force bool) (map[string]string, error) {
	values := make(map[string]string, len(merged.Values))
	for name, value := range merged.Values {
		values[name] = value
	}
	conflicts := make(map[string]FieldConflict, len(merged.Conflicts))
	for _, c := range merged.Conflicts {
		conflicts[c.Field] = c
	}

	settled := make(map[string]bool, len(resolutions))
	for idx, res := range resolutions {
		if err := res.Validate(); err != nil {
			return nil, domain.Validation("INVALID_RESOLUTION", fmt.Sprintf("field resolution %d is malformed", idx), err)
		}
		if _, ok := values[res.Field]; !ok {
			return nil, domain.Validation("UNKNOWN_FIELD", fmt.Sprintf("field %q is not mergeable", res.Field), map[string]any{"field": res.Field})
		}
		if settled[res.Field] {
			return nil, domain.Validation("DUPLICATE_RESOLUTION", fmt.Sprintf("field %q is resolved more than once", res.Field), map[string]any{"field": res.Field})
		}
		settled[res.Field] = true

		c, isConflict := conflicts[res.Field]
		switch res.Choice {
		case ChoiceCurrent:
			if isConflict {
				values[res.Field] = c.Current
			}
		case ChoiceDraft:
			if isConflict {
				values[res.Field] = c.Draft
			}
		case ChoiceCustom:
			values[res.Field] = res.Custom
		}
	}

	var unresolved []string
	for _, c := range merged.Conflicts {
		if !settled[c.Field] && !force {
			unresolved = append(unresolved, c.Field)
		}
	}
	if len(unresolved) > 0 {
		return nil, domain.Validation(
			"UNRESOLVED_CONFLICT",
			fmt.Sprintf("%d conflicting field(s) left unresolved", len(unresolved)),
			map[string]any{"fields": unresolved},
		)
	}
	return values, nil
}
