// Package models defines the domain types for the MLOps catalog.
package models

import (
	"strings"
	"time"
)

// CellKind is the type tag of a notebook cell.
type CellKind string

// Recognised cell kinds.
const (
	CellCode     CellKind = "code"
	CellMarkdown CellKind = "markdown"
)

// Cell is a unit of a Document. Lines keep their trailing newline, if any.
type Cell struct {
	Kind  CellKind
	Lines []string
}

// Text returns the cell content as a single string.
func (c Cell) Text() string {
	return strings.Join(c.Lines, "")
}

// Document is the format-neutral, ordered sequence of cells of a notebook.
type Document struct {
	Cells []Cell
}

// ArchiveEntry describes a JSON document moved into the archive directory.
type ArchiveEntry struct {
	Name         string    `json:"name"`
	OriginalStem string    `json:"original_stem"`
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"path"`
}
