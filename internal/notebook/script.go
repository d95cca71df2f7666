// Package notebook converts between the script form, the notebook (nbformat v4)
// form, and the in-memory Document.
package notebook

import (
	"strings"

	"github.com/starford/mlops-catalog/internal/models"
)

// MarkdownMarker starts a markdown cell in script form.
const MarkdownMarker = "#%% md"

// markdownPrefix is the comment prefix carried by markdown lines in script form.
const markdownPrefix = "# "

// ParseScript splits script-form text into cells.
//
// The kind switch is one-way: after the first marker every following line
// belongs to markdown cells, because script form has no marker that returns
// to code.
func ParseScript(data []byte) models.Document {
	doc := models.Document{Cells: []models.Cell{}}
	kind := models.CellCode
	var buf []string

	flush := func() {
		if len(buf) == 0 {
			return
		}
		doc.Cells = append(doc.Cells, models.Cell{Kind: kind, Lines: buf})
		buf = nil
	}

	for _, line := range splitLines(string(data)) {
		if isMarker(line) {
			flush()
			kind = models.CellMarkdown
			continue
		}
		if kind == models.CellMarkdown {
			line = strings.TrimPrefix(line, markdownPrefix)
		}
		buf = append(buf, line)
	}
	flush()

	return doc
}

// RenderScript writes doc in script form.
func RenderScript(doc models.Document) []byte {
	var b strings.Builder
	for _, c := range doc.Cells {
		switch c.Kind {
		case models.CellMarkdown:
			b.WriteString(MarkdownMarker + "\n")
			for _, line := range c.Lines {
				b.WriteString(markdownPrefix)
				b.WriteString(strings.TrimSuffix(line, "\n"))
				b.WriteString("\n")
			}
			b.WriteString("\n")
		case models.CellCode:
			text := c.Text()
			b.WriteString(text)
			if text != "" && !strings.HasSuffix(text, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	return []byte(b.String())
}

// isMarker reports whether line, without its terminator, is exactly the marker.
func isMarker(line string) bool {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line == MarkdownMarker
}

// splitLines splits s after each newline; every element but possibly the
// last keeps its "\n".
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
