// Package preview derives bounded tabular previews from raw upload text.
package preview

import (
	"strings"

	"github.com/fairlens/backend/internal/models"
)

// sniffWindow is how many leading non-blank lines are sampled when deciding
// whether text looks comma-separated.
const sniffWindow = 10

// minCommaLines is how many sampled lines must contain a comma.
const minCommaLines = 2

// Parse derives a bounded grid from raw text. The first non-blank line becomes
// the header row; up to maxRows following lines become data rows. Headers are
// truncated to maxCols columns and rows are truncated to the header width.
// Rows shorter than the header are emitted as-is.
//
// Returns (nil, false) when the text does not look tabular. Parse has no side
// effects and is safe to call repeatedly on evolving partial text.
func Parse(text string, maxRows, maxCols int) (*models.TablePreview, bool) {
	lines := nonBlankLines(text)
	if len(lines) < 2 {
		return nil, false
	}
	if !sniff(lines) {
		return nil, false
	}

	headers := splitFields(lines[0])
	if len(headers) > maxCols {
		headers = headers[:maxCols]
	}

	rows := make([][]string, 0, maxRows)
	for _, line := range lines[1:] {
		if len(rows) >= maxRows {
			break
		}
		fields := splitFields(line)
		if len(fields) > len(headers) {
			fields = fields[:len(headers)]
		}
		rows = append(rows, fields)
	}

	return &models.TablePreview{
		Headers: headers,
		Rows:    rows,
		Origin:  "csv",
	}, true
}

// sniff samples the first sniffWindow lines and requires at least minCommaLines
// of them to contain a comma before committing to a full parse.
func sniff(lines []string) bool {
	checked := 0
	matched := 0
	for _, line := range lines {
		if checked >= sniffWindow {
			break
		}
		checked++
		if strings.Contains(line, ",") {
			matched++
		}
	}
	return matched >= minCommaLines
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitFields tokenizes one CSV line with a quote-aware scanner. A double
// quote toggles quote mode unless immediately followed by a second quote,
// which is an escaped quote emitted literally. Commas outside quote mode end
// a field. All fields are trimmed.
func splitFields(line string) []string {
	fields := make([]string, 0, 8)
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if i+1 < len(line) && line[i+1] == '"' {
				b.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteByte(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(b.String()))

	return fields
}
