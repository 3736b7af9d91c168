package merge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/engine/internal/domain"
)

func TestPreviewMergeClassifiesBlocks(t *testing.T) {
	preview := PreviewMerge("a\nb\nc\nd\ne", "a\nB\nc\nd\ne", "a\nb\nc\nD\ne\nf")

	assert.False(t, preview.HasConflict)
	assert.Zero(t, preview.ConflictBlockCount)
	require.Len(t, preview.Blocks, 6)

	assert.Equal(t, Block{
		ID: 1, Type: BlockEqual,
		Base: []string{"a"}, Current: []string{"a"}, Draft: []string{"a"}, AutoMerged: []string{"a"},
		Mergeable: true, StartLine: 1, EndLine: 1,
	}, preview.Blocks[0])
	assert.Equal(t, Block{
		ID: 2, Type: BlockCurrentOnly,
		Base: []string{"b"}, Current: []string{"B"}, Draft: []string{"b"}, AutoMerged: []string{"B"},
		Mergeable: true, StartLine: 2, EndLine: 2,
	}, preview.Blocks[1])
	assert.Equal(t, BlockEqual, preview.Blocks[2].Type)
	assert.Equal(t, Block{
		ID: 4, Type: BlockDraftOnly,
		Base: []string{"d"}, Current: []string{"d"}, Draft: []string{"D"}, AutoMerged: []string{"D"},
		Mergeable: true, StartLine: 4, EndLine: 4,
	}, preview.Blocks[3])
	assert.Equal(t, BlockEqual, preview.Blocks[4].Type)
	assert.Equal(t, Block{
		ID: 6, Type: BlockDraftOnly,
		Base: []string{}, Current: []string{}, Draft: []string{"f"}, AutoMerged: []string{"f"},
		Mergeable: true, StartLine: 6, EndLine: 5,
	}, preview.Blocks[5])

	text, ok := preview.AutoMergedText()
	require.True(t, ok)
	assert.Equal(t, "a\nB\nc\nD\ne\nf", text)
	assert.Equal(t, Merge("a\nb\nc\nd\ne", "a\nB\nc\nd\ne", "a\nb\nc\nD\ne\nf").Text, text)
}

func TestPreviewMergeReportsConflicts(t *testing.T) {
	preview := PreviewMerge("line1\nline2", "line1\nLINE2_OURS", "line1\nLINE2_THEIRS")

	assert.True(t, preview.HasConflict)
	assert.Equal(t, 1, preview.ConflictBlockCount)
	require.Len(t, preview.Blocks, 2)

	conflict := preview.Blocks[1]
	assert.Equal(t, BlockConflict, conflict.Type)
	assert.False(t, conflict.Mergeable)
	assert.Nil(t, conflict.AutoMerged)
	assert.Equal(t, []string{"line2"}, conflict.Base)
	assert.Equal(t, []string{"LINE2_OURS"}, conflict.Current)
	assert.Equal(t, []string{"LINE2_THEIRS"}, conflict.Draft)

	_, ok := preview.AutoMergedText()
	assert.False(t, ok)
}

func TestPreviewMergeIdenticalChangeIsCurrentOnly(t *testing.T) {
	preview := PreviewMerge("a\nb\nc", "a\nX\nc", "a\nX\nc\nd")

	require.Len(t, preview.Blocks, 4)
	assert.Equal(t, BlockCurrentOnly, preview.Blocks[1].Type)
	assert.Equal(t, []string{"X"}, preview.Blocks[1].AutoMerged)
	assert.Equal(t, BlockDraftOnly, preview.Blocks[3].Type)
}

func TestPreviewSurvivesJSON(t *testing.T) {
	preview := PreviewMerge("line1\nline2", "line1\nLINE2_OURS", "line1\nLINE2_THEIRS")

	payload, err := json.Marshal(preview)
	require.NoError(t, err)
	var decoded Preview
	require.NoError(t, json.Unmarshal(payload, &decoded))

	got, err := Resolve(decoded, Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceCurrent}}})
	require.NoError(t, err)
	assert.Equal(t, "line1\nLINE2_OURS", got)
}

func TestResolve(t *testing.T) {
	preview := PreviewMerge("line1\nline2\nline3", "line1\nLINE2_OURS\nline3", "line1\nLINE2_THEIRS\nline3\nline4")
	require.Equal(t, 1, preview.ConflictBlockCount)

	merged := "hand edited"
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "current",
			req:  Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceCurrent}}},
			want: "line1\nLINE2_OURS\nline3\nline4",
		},
		{
			name: "draft",
			req:  Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceDraft}}},
			want: "line1\nLINE2_THEIRS\nline3\nline4",
		},
		{
			name: "both",
			req:  Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceBoth}}},
			want: "line1\nLINE2_OURS\nLINE2_THEIRS\nline3\nline4",
		},
		{
			name: "custom",
			req:  Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceCustom, Custom: "one\ntwo"}}},
			want: "line1\none\ntwo\nline3\nline4",
		},
		{
			name: "custom empty removes the block",
			req:  Request{Resolutions: []Resolution{{BlockID: 2, Choice: ChoiceCustom}}},
			want: "line1\nline3\nline4",
		},
		{
			name: "override a clean block",
			req: Request{Resolutions: []Resolution{
				{BlockID: 2, Choice: ChoiceCurrent},
				{BlockID: 4, Choice: ChoiceCurrent},
			}},
			want: "line1\nLINE2_OURS\nline3",
		},
		{
			name: "force takes the draft side",
			req:  Request{ForceOverwrite: true},
			want: "line1\nLINE2_THEIRS\nline3\nline4",
		},
		{
			name: "full text wins",
			req:  Request{MergedContent: &merged},
			want: "hand edited",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(preview, tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveValidation(t *testing.T) {
	preview := PreviewMerge("line1\nline2", "line1\nLINE2_OURS", "line1\nLINE2_THEIRS")

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{name: "unresolved conflict", req: Request{}, code: "UNRESOLVED_CONFLICT"},
		{name: "unknown block", req: Request{Resolutions: []Resolution{{BlockID: 9, Choice: ChoiceDraft}}}, code: "UNKNOWN_BLOCK"},
		{name: "bad choice", req: Request{Resolutions: []Resolution{{BlockID: 2, Choice: "MAYBE"}}}, code: "INVALID_RESOLUTION"},
		{name: "missing block id", req: Request{Resolutions: []Resolution{{Choice: ChoiceDraft}}}, code: "INVALID_RESOLUTION"},
		{
			name: "duplicate",
			req: Request{Resolutions: []Resolution{
				{BlockID: 2, Choice: ChoiceDraft},
				{BlockID: 2, Choice: ChoiceCurrent},
			}},
			code: "DUPLICATE_RESOLUTION",
		},
		{
			name: "unknown block with full text",
			req:  Request{Resolutions: []Resolution{{BlockID: 3, Choice: ChoiceDraft}}, MergedContent: new(string)},
			code: "UNKNOWN_BLOCK",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(preview, tc.req)
			require.ErrorIs(t, err, domain.ErrValidation)
			var domainErr *domain.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tc.code, domainErr.Code)
		})
	}
}
