package mcpserver

// ScriptFormatContract describes the cell-marked script format that LLM
// consumers should follow when writing scripts meant for conversion.
const ScriptFormatContract = `# Script Cell Format

Scripts converted to notebooks use one marker line and a comment prefix.

## Structure

` + "```" + `python
import pandas as pd
df = pd.read_csv("data.csv")
#%% md
# ## Results
# The table below summarises the run.
` + "```" + `

## Rules

1. **Code first.** Lines before the first marker form a code cell.
2. **Marker.** A line that is exactly ` + "`" + `#%% md` + "`" + ` starts a markdown cell.
   The marker itself is not kept.
3. **Markdown lines** carry a ` + "`" + `# ` + "`" + ` prefix (hash and one space). It is
   stripped on conversion and written back when converting a notebook to a script.
4. **No way back.** There is no end-of-markdown marker: every line after a
   marker belongs to markdown cells until the end of the file.
5. **Notebook to script** writes each markdown cell as the marker, its prefixed
   lines and a blank line, and each code cell as its source and a blank line.

## JSON notebooks

- Active JSON notebooks live in ` + "`" + `notebook_jsons/` + "`" + `.
- Converting ` + "`" + `notebook_jsons/NAME.json` + "`" + ` to a notebook moves the source to
  ` + "`" + `notebook_jsons/archive/NAME_YYYYMMDD_HHMMSS.json` + "`" + `.
- Restoring an archive writes ` + "`" + `notebook_jsons/STEM.json` + "`" + `, where STEM is the
  archived name up to its first underscore.
`
