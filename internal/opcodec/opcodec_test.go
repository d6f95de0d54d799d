package opcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

func TestEditorChangesToOpsPureInsert(t *testing.T) {
	changes := []ports.RangeChange{{StartOffset: 5, EndOffset: 5, NewText: "hi"}}
	ops := EditorChangesToOps(changes)

	assert.Equal(t, []model.TextOp{model.InsertOp(5, "hi")}, ops)
}

func TestEditorChangesToOpsPureDelete(t *testing.T) {
	changes := []ports.RangeChange{{StartOffset: 2, EndOffset: 7, NewText: ""}}
	ops := EditorChangesToOps(changes)

	assert.Equal(t, []model.TextOp{model.DeleteOp(2, 5)}, ops)
}

func TestEditorChangesToOpsReplaceEmitsDeleteThenInsert(t *testing.T) {
	changes := []ports.RangeChange{{StartOffset: 0, EndOffset: 3, NewText: "xyz"}}
	ops := EditorChangesToOps(changes)

	assert.Equal(t, []model.TextOp{model.DeleteOp(0, 3), model.InsertOp(0, "xyz")}, ops)
}

func TestEditorChangesToOpsNoopChangeYieldsNothing(t *testing.T) {
	changes := []ports.RangeChange{{StartOffset: 4, EndOffset: 4, NewText: ""}}
	ops := EditorChangesToOps(changes)

	assert.Empty(t, ops)
}

func TestSharedbToEditorInsert(t *testing.T) {
	edits := SharedbToEditor([]model.TextOp{model.InsertOp(3, "ab")})

	assert.Equal(t, []ports.TextEdit{{StartOffset: 3, EndOffset: 3, NewText: "ab"}}, edits)
}

func TestSharedbToEditorDelete(t *testing.T) {
	edits := SharedbToEditor([]model.TextOp{model.DeleteOp(1, 4)})

	assert.Equal(t, []ports.TextEdit{{StartOffset: 1, EndOffset: 5, NewText: ""}}, edits)
}

func TestSharedbToEditorReplace(t *testing.T) {
	edits := SharedbToEditor([]model.TextOp{model.ReplaceOp(2, "new", 3)})

	assert.Equal(t, []ports.TextEdit{
		{StartOffset: 2, EndOffset: 5, NewText: ""},
		{StartOffset: 2, EndOffset: 2, NewText: "new"},
	}, edits)
}

func TestSharedbToEditorReplaceWithEmptyInsertOmitsSecondEdit(t *testing.T) {
	edits := SharedbToEditor([]model.TextOp{model.ReplaceOp(2, "", 3)})

	assert.Equal(t, []ports.TextEdit{{StartOffset: 2, EndOffset: 5, NewText: ""}}, edits)
}

func TestMinimalDiffPureInsert(t *testing.T) {
	op := MinimalDiff("abc", "abXc")
	assert.Equal(t, model.ReplaceOp(2, "X", 0), op)
}

func TestMinimalDiffPureDelete(t *testing.T) {
	op := MinimalDiff("abXc", "abc")
	assert.Equal(t, model.ReplaceOp(2, "", 1), op)
}

func TestMinimalDiffIdenticalStringsIsNoop(t *testing.T) {
	op := MinimalDiff("same", "same")
	assert.Equal(t, model.ReplaceOp(4, "", 0), op)
}

func TestMinimalDiffTotalReplace(t *testing.T) {
	op := MinimalDiff("abc", "xyz")
	assert.Equal(t, model.ReplaceOp(0, "xyz", 3), op)
}

func TestRuneOffsetToUTF16ASCII(t *testing.T) {
	assert.Equal(t, 5, RuneOffsetToUTF16("hello world", 5))
}

func TestRuneOffsetToUTF16SurrogatePair(t *testing.T) {
	// A single emoji rune encodes as a UTF-16 surrogate pair (2 units).
	s := "a\U0001F600b"
	assert.Equal(t, 1, RuneOffsetToUTF16(s, 1))
	assert.Equal(t, 3, RuneOffsetToUTF16(s, 2))
	assert.Equal(t, 4, RuneOffsetToUTF16(s, 3))
}

func TestRuneOffsetToUTF16ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, 3, RuneOffsetToUTF16("abc", 10))
}
