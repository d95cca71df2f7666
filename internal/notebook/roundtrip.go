package notebook

import (
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// RoundTrip passes script-form data through the notebook form and back.
func RoundTrip(data []byte) ([]byte, error) {
	nb, err := Marshal(ParseScript(data))
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(nb)
	if err != nil {
		return nil, err
	}
	return RenderScript(doc), nil
}

// LineDiff returns a unified-style line diff from a to b: removed lines are
// prefixed with "-", added lines with "+" and unchanged lines with " ".
// It returns an empty string when a and b are equal.
func LineDiff(a, b string) string {
	if a == b {
		return ""
	}
	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffpatch.DiffInsert:
			prefix = "+"
		case diffpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range splitLines(d.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}
