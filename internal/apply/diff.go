package apply

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffContext is the number of unchanged lines shown around each change.
const diffContext = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// lineDiff renders a unified-style line diff of before and after, with
// hunks separated by "@@" markers. Identical inputs produce "".
func lineDiff(before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var all []diffLine
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			all = append(all, diffLine{op: d.Type, text: strings.TrimSuffix(line, "\n")})
		}
	}

	// Mark lines within diffContext of a change.
	show := make([]bool, len(all))
	for i, l := range all {
		if l.op == diffmatchpatch.DiffEqual {
			continue
		}
		for j := max(0, i-diffContext); j <= min(len(all)-1, i+diffContext); j++ {
			show[j] = true
		}
	}

	var sb strings.Builder
	oldLine, newLine := 1, 1
	inHunk := false
	for i, l := range all {
		if !show[i] {
			inHunk = false
		} else {
			if !inHunk {
				fmt.Fprintf(&sb, "@@ -%d +%d @@\n", oldLine, newLine)
				inHunk = true
			}
			switch l.op {
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+" + l.text + "\n")
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-" + l.text + "\n")
			default:
				sb.WriteString(" " + l.text + "\n")
			}
		}

		switch l.op {
		case diffmatchpatch.DiffInsert:
			newLine++
		case diffmatchpatch.DiffDelete:
			oldLine++
		default:
			oldLine++
			newLine++
		}
	}

	return sb.String()
}
