package export

import (
	"bufio"
	"io"
	"strings"
)

const utf8BOM = "\uFEFF"

// CSVExporter writes a BOM-prefixed CSV where every field is quoted.
type CSVExporter struct{}

func (e *CSVExporter) Export(t Transcript, w io.Writer) error {
	bw := bufio.NewWriter(w)

	rows := t.Rows()
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, csvLine(t.Header()))
	for _, row := range rows {
		lines = append(lines, csvLine(row.fields()))
	}

	if _, err := bw.WriteString(utf8BOM + strings.Join(lines, "\n")); err != nil {
		return err
	}
	return bw.Flush()
}

func (e *CSVExporter) Extension() string {
	return "csv"
}

func (e *CSVExporter) ContentType() string {
	return "text/csv; charset=utf-8"
}

func csvLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = QuoteField(f)
	}
	return strings.Join(quoted, ",")
}

// QuoteField wraps s in double quotes and doubles any inner quote.
func QuoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
