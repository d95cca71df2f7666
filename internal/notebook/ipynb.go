package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/models"
)

// nbformat version written by Marshal. Minor 4 is the last v4 revision that
// does not require cell ids.
const (
	nbformatMajor = 4
	nbformatMinor = 4
)

// Notebook is the decoded form of an nbformat v4 document. Only the fields
// the converter needs are kept.
type Notebook struct {
	Cells    []Cell `json:"cells"`
	NBFormat int    `json:"nbformat"`
}

// Cell is a decoded notebook cell.
type Cell struct {
	CellType string `json:"cell_type"`
	Source   Source `json:"source"`
}

// notebookFile is the document written by Marshal. Keys are declared in
// sorted order, matching what Jupyter writes.
type notebookFile struct {
	Cells         []any          `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type codeCell struct {
	CellType       string         `json:"cell_type"`
	ExecutionCount *int           `json:"execution_count"`
	Metadata       map[string]any `json:"metadata"`
	Outputs        []any          `json:"outputs"`
	Source         Source         `json:"source"`
}

type markdownCell struct {
	CellType string         `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   Source         `json:"source"`
}

// Source is nbformat's multiline string: a JSON string or an array of line
// strings. It always marshals as an array of lines.
type Source []string

// UnmarshalJSON accepts both encodings of a multiline string.
func (s *Source) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = splitLines(text)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*s = lines
	return nil
}

// MarshalJSON always writes an array so empty sources stay valid.
func (s Source) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// Marshal encodes doc as a notebook document, indented the way Jupyter writes it.
func Marshal(doc models.Document) ([]byte, error) {
	nb := notebookFile{
		Cells:         make([]any, 0, len(doc.Cells)),
		Metadata:      map[string]any{},
		NBFormat:      nbformatMajor,
		NBFormatMinor: nbformatMinor,
	}
	for _, c := range doc.Cells {
		switch c.Kind {
		case models.CellCode:
			nb.Cells = append(nb.Cells, codeCell{
				CellType: string(models.CellCode),
				Metadata: map[string]any{},
				Outputs:  []any{},
				Source:   Source(c.Lines),
			})
		case models.CellMarkdown:
			nb.Cells = append(nb.Cells, markdownCell{
				CellType: string(models.CellMarkdown),
				Metadata: map[string]any{},
				Source:   Source(c.Lines),
			})
		default:
			return nil, fmt.Errorf("notebook: unknown cell kind %q", c.Kind)
		}
	}
	data, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return nil, fmt.Errorf("notebook: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a notebook document. Cells with a type other than code
// or markdown (such as raw cells) are skipped.
func Unmarshal(data []byte) (models.Document, error) {
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return models.Document{}, fmt.Errorf("notebook: %w: %w", apperr.ErrParse, err)
	}
	if nb.Cells == nil {
		return models.Document{}, fmt.Errorf("notebook: %w: missing cells", apperr.ErrParse)
	}
	if nb.NBFormat != 0 && nb.NBFormat < nbformatMajor {
		return models.Document{}, fmt.Errorf("notebook: %w: unsupported nbformat %d", apperr.ErrParse, nb.NBFormat)
	}
	doc := models.Document{Cells: make([]models.Cell, 0, len(nb.Cells))}
	for i, c := range nb.Cells {
		switch models.CellKind(c.CellType) {
		case models.CellCode, models.CellMarkdown:
			doc.Cells = append(doc.Cells, models.Cell{Kind: models.CellKind(c.CellType), Lines: []string(c.Source)})
		case "":
			return models.Document{}, fmt.Errorf("notebook: %w: cell %d has no cell_type", apperr.ErrParse, i)
		}
	}
	return doc, nil
}
