package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/engine/internal/domain"
)

func TestMergeFields(t *testing.T) {
	base := map[string]string{"title": "Guide", "summary": "old", "category": "ops", "keywords": "a,b"}
	current := map[string]string{"title": "Guide v2", "summary": "old", "category": "ops", "keywords": "a,b,c"}
	draft := map[string]string{"title": "Guide", "summary": "new", "category": "eng", "keywords": "a,b,d"}

	merged := MergeFields(base, current, draft)

	assert.Equal(t, map[string]string{
		"title":    "Guide v2",
		"summary":  "new",
		"category": "eng",
		"keywords": "a,b,d",
	}, merged.Values)
	assert.Equal(t, []FieldConflict{
		{Field: "keywords", Base: "a,b", Current: "a,b,c", Draft: "a,b,d"},
	}, merged.Conflicts)
}

func TestResolveFields(t *testing.T) {
	merged := MergeFields(
		map[string]string{"title": "T", "summary": "S"},
		map[string]string{"title": "T1", "summary": "S1"},
		map[string]string{"title": "T2", "summary": "S"},
	)
	require.Len(t, merged.Conflicts, 1)

	values, err := ResolveFields(merged, []FieldResolution{{Field: "title", Choice: ChoiceCurrent}}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "T1", "summary": "S1"}, values)

	values, err = ResolveFields(merged, []FieldResolution{
		{Field: "title", Choice: ChoiceCustom, Custom: "T3"},
		{Field: "summary", Choice: ChoiceCustom, Custom: "S3"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "T3", "summary": "S3"}, values)

	values, err = ResolveFields(merged, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "T2", values["title"])
}

func TestResolveFieldsValidation(t *testing.T) {
	merged := MergeFields(
		map[string]string{"title": "T"},
		map[string]string{"title": "T1"},
		map[string]string{"title": "T2"},
	)

	tests := []struct {
		name        string
		resolutions []FieldResolution
		code        string
	}{
		{name: "unresolved", code: "UNRESOLVED_CONFLICT"},
		{name: "unknown field", resolutions: []FieldResolution{{Field: "body", Choice: ChoiceDraft}}, code: "UNKNOWN_FIELD"},
		{name: "both is not a field choice", resolutions: []FieldResolution{{Field: "title", Choice: ChoiceBoth}}, code: "INVALID_RESOLUTION"},
		{
			name: "duplicate",
			resolutions: []FieldResolution{
				{Field: "title", Choice: ChoiceDraft},
				{Field: "title", Choice: ChoiceCurrent},
			},
			code: "DUPLICATE_RESOLUTION",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveFields(merged, tc.resolutions, false)
			var domainErr *domain.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domain.KindValidation, domainErr.Kind)
			assert.Equal(t, tc.code, domainErr.Code)
		})
	}
}
