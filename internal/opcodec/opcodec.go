// Package opcodec implements lossless, pure-function translation between
// editor range-based text edits and positional OT text ops. It has no
// I/O and no concurrency — a pure transform with explicit inputs and
// outputs, the same shape as a wire codec's Marshal/Unmarshal pair.
package opcodec

import (
	"unicode/utf16"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

// EditorChangesToOps converts a batch of editor range changes into OT
// text ops. Each change produces up to two ops, delete before insert:
// a `[offset, {d: length}]` when the replaced range was non-empty, and a
// `[offset, text]` when the new text is non-empty. Offsets are as
// supplied by the editor — pre-batch, original-document offsets — and
// are not adjusted for earlier ops in the same batch, matching the
// editor's own "changes describe the original document" contract.
func EditorChangesToOps(changes []ports.RangeChange) []model.TextOp {
	ops := make([]model.TextOp, 0, len(changes)*2)
	for _, c := range changes {
		delLen := utf16Len(c.StartOffset, c.EndOffset)
		if delLen > 0 {
			ops = append(ops, model.DeleteOp(c.StartOffset, delLen))
		}
		if len(c.NewText) > 0 {
			ops = append(ops, model.InsertOp(c.StartOffset, c.NewText))
		}
	}
	return ops
}

// utf16Len is a placeholder measuring a byte-offset range's length; real
// offsets already come pre-measured from the editor host in the same
// units it reports EndOffset/StartOffset in, so this is just the
// difference. Kept as a named helper so the unit of measurement is
// documented at the call site.
func utf16Len(start, end int) int {
	if end < start {
		return 0
	}
	return end - start
}

// SharedbToEditor interprets a batch of OT text ops and returns the
// editor TextEdits needed to reproduce the same change in an open
// document. Ops are expanded per their wire shape:
//
//	length 1 (no index)  -> applied at position 0
//	length 2 (index,arg)  -> insert (arg is string) or delete (arg is Delete)
//	length 3 (replace)    -> delete Del chars then insert Ins, same index
//
// The returned edits carry plain character offsets; converting them to
// any other position representation is left to the caller.
func SharedbToEditor(ops []model.TextOp) []ports.TextEdit {
	edits := make([]ports.TextEdit, 0, len(ops))
	for _, op := range ops {
		index := 0
		if op.HasIndex {
			index = op.Index
		}

		if op.IsReplace {
			// Atomic replace: delete then insert at the same index.
			edits = append(edits, ports.TextEdit{
				StartOffset: index,
				EndOffset:   index + op.Del,
				NewText:     "",
			})
			if op.Ins != "" {
				edits = append(edits, ports.TextEdit{
					StartOffset: index,
					EndOffset:   index,
					NewText:     op.Ins,
				})
			}
			continue
		}

		switch arg := op.Arg.(type) {
		case string:
			edits = append(edits, ports.TextEdit{
				StartOffset: index,
				EndOffset:   index,
				NewText:     arg,
			})
		case model.Delete:
			edits = append(edits, ports.TextEdit{
				StartOffset: index,
				EndOffset:   index + arg.D,
				NewText:     "",
			})
		}
	}
	return edits
}

// MinimalDiff computes a single-replace OT op transforming oldText into
// newText, by matching the longest common prefix and suffix (the two
// matches never overlap: len(prefix)+len(suffix) is capped at
// min(len(oldText), len(newText))). Used by VirtualProject.write to
// shrink whole-buffer-replace bursts to a minimal wire op instead of a
// full delete-then-insert of both entire buffers.
func MinimalDiff(oldText, newText string) model.TextOp {
	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	maxCommon := len(oldRunes)
	if len(newRunes) < maxCommon {
		maxCommon = len(newRunes)
	}

	prefixLen := 0
	for prefixLen < maxCommon && oldRunes[prefixLen] == newRunes[prefixLen] {
		prefixLen++
	}

	suffixLen := 0
	for suffixLen < maxCommon-prefixLen &&
		oldRunes[len(oldRunes)-1-suffixLen] == newRunes[len(newRunes)-1-suffixLen] {
		suffixLen++
	}

	insStart := prefixLen
	insEnd := len(newRunes) - suffixLen
	ins := string(newRunes[insStart:insEnd])

	delCount := len(oldRunes) - prefixLen - suffixLen

	return model.ReplaceOp(prefixLen, ins, delCount)
}

// RuneOffsetToUTF16 converts a rune offset into s to a UTF-16 code-unit
// offset, for editor hosts (the common case for JS-hosted editors) that
// address document positions in UTF-16 units rather than runes.
func RuneOffsetToUTF16(s string, runeOffset int) int {
	r := []rune(s)
	if runeOffset > len(r) {
		runeOffset = len(r)
	}
	return len(utf16.Encode(r[:runeOffset]))
}
