package workspace

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is a patch between two versions of a file.
type Diff struct {
	Text      string `json:"text,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// buildDiff computes a patch with file headers and line counts.
func buildDiff(relPath, before, after string) Diff {
	if before == after {
		return Diff{}
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var d Diff
	for _, part := range diffs {
		switch part.Type {
		case diffmatchpatch.DiffInsert:
			d.Additions += countLines(part.Text)
		case diffmatchpatch.DiffDelete:
			d.Deletions += countLines(part.Text)
		}
	}

	patchText := dmp.PatchToText(dmp.PatchMake(before, diffs))
	if patchText == "" {
		return d
	}

	var sb strings.Builder
	if relPath != "" {
		fmt.Fprintf(&sb, "--- %s\n+++ %s\n", relPath, relPath)
	}
	sb.WriteString(patchText)
	d.Text = sb.String()
	return d
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
