package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/toolmint/toolmint/pkg/schema"
)

var (
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*`)
)

// renderMarkdown produces sanitized HTML. Mapped configs build a
// labeled document; a bare string result is treated as markdown source
// (the common case for ai_analysis output). Raw text is HTML-escaped
// before any substitution, so embedded markup never passes through.
func renderMarkdown(result any, cfg *schema.OutputConfig) string {
	if len(cfg.FieldMappings) > 0 || len(cfg.Sections) > 0 {
		return MarkdownToHTML(buildMarkdownDoc(result, cfg))
	}
	if s, ok := result.(string); ok {
		return MarkdownToHTML(s)
	}
	return MarkdownToHTML(renderText(result))
}

// buildMarkdownDoc lays out mapped fields (and sections) as markdown.
func buildMarkdownDoc(result any, cfg *schema.OutputConfig) string {
	var sb strings.Builder
	writeMappings := func(ms []schema.FieldMapping) {
		for _, m := range ms {
			v, ok := lookupValue(result, m.FieldID)
			display := missingPlaceholder
			if ok {
				display = formatValue(v, m.Format)
			}
			fmt.Fprintf(&sb, "**%s:** %s\n", m.Label, display)
		}
	}
	writeMappings(cfg.FieldMappings)
	for _, sec := range cfg.Sections {
		fmt.Fprintf(&sb, "## %s\n", sec.Title)
		writeMappings(sec.FieldMappings)
	}
	return sb.String()
}

// MarkdownToHTML converts a constrained markdown subset to HTML:
// #/##/### headings, **bold**, *italic*, and line breaks. All input is
// escaped first; no raw HTML survives the conversion.
func MarkdownToHTML(src string) string {
	var out []string
	for _, line := range strings.Split(src, "\n") {
		escaped := html.EscapeString(line)

		var open, close string
		switch {
		case strings.HasPrefix(escaped, "### "):
			open, close = "<h3>", "</h3>"
			escaped = strings.TrimPrefix(escaped, "### ")
		case strings.HasPrefix(escaped, "## "):
			open, close = "<h2>", "</h2>"
			escaped = strings.TrimPrefix(escaped, "## ")
		case strings.HasPrefix(escaped, "# "):
			open, close = "<h1>", "</h1>"
			escaped = strings.TrimPrefix(escaped, "# ")
		}

		escaped = boldRe.ReplaceAllString(escaped, "<strong>$1</strong>")
		escaped = italicRe.ReplaceAllString(escaped, "<em>$1</em>")

		if open != "" {
			out = append(out, open+escaped+close)
		} else if escaped == "" {
			out = append(out, "")
		} else {
			out = append(out, escaped+"<br>")
		}
	}
	return strings.Join(out, "\n")
}
