package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/toolmint/toolmint/pkg/schema"
)

// renderTable lays out the result as an HTML table. A list result
// yields one row per element; anything else yields a single row. Every
// cell is escaped; a missing key renders the placeholder.
func renderTable(result any, mappings []schema.FieldMapping) string {
	rows, ok := result.([]any)
	if !ok {
		rows = []any{result}
	}

	var sb strings.Builder
	sb.WriteString("<table>\n<thead><tr>")
	for _, m := range mappings {
		fmt.Fprintf(&sb, "<th>%s</th>", html.EscapeString(m.Label))
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range rows {
		sb.WriteString("<tr>")
		for _, m := range mappings {
			sb.WriteString("<td>")
			sb.WriteString(html.EscapeString(cellValue(row, m)))
			sb.WriteString("</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>")
	return sb.String()
}

// renderCard lays out one labeled value per mapping, grouped under
// section headings when declared.
func renderCard(result any, cfg *schema.OutputConfig) string {
	var sb strings.Builder
	sb.WriteString("<div class=\"card\">\n")
	writeMappings := func(ms []schema.FieldMapping) {
		for _, m := range ms {
			fmt.Fprintf(&sb, "<div class=\"card-row\"><span class=\"card-label\">%s</span><span class=\"card-value\">%s</span></div>\n",
				html.EscapeString(m.Label), html.EscapeString(cellValue(result, m)))
		}
	}
	writeMappings(cfg.FieldMappings)
	for _, sec := range cfg.Sections {
		fmt.Fprintf(&sb, "<h3 class=\"card-section\">%s</h3>\n", html.EscapeString(sec.Title))
		writeMappings(sec.FieldMappings)
	}
	sb.WriteString("</div>")
	return sb.String()
}

func cellValue(row any, m schema.FieldMapping) string {
	v, ok := lookupValue(row, m.FieldID)
	if !ok {
		return missingPlaceholder
	}
	return formatValue(v, m.Format)
}
