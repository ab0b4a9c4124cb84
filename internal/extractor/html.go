package extractor

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ginjaninja78/excelsync/internal/types"
)

// =============================================================================
// MARKUP TABLES
// =============================================================================

// extractMarkup parses the first <table> of the document. It reports false
// when the document has no table, or when the table has no header cells or
// no data rows, so that the caller can try the delimiter path.
func (e *Extractor) extractMarkup(text string) (*types.Table, bool) {
	// Cheap pre-check so plain Markdown never goes through the HTML parser.
	if !strings.Contains(strings.ToLower(text), "<table") {
		return nil, false
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		e.logger.Warn("markup parse failed, trying delimiter tables", zap.Error(err))
		return nil, false
	}

	tables := findAll(doc, atom.Table)
	if len(tables) == 0 {
		return nil, false
	}
	first := tables[0]

	var (
		headers []string
		rows    [][]types.Value
		texts   [][]string
	)
	// Rows of tables nested inside the first one are collected too.
	for i, tr := range findAll(first, atom.Tr) {
		cells := rowCells(tr)
		if i == 0 {
			headers = cells
			continue
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, normalizeCells(cells))
		texts = append(texts, cells)
	}

	if len(headers) == 0 || len(rows) == 0 {
		e.logger.Debug("markup table has no data rows, trying delimiter tables",
			zap.Int("headers", len(headers)))
		return nil, false
	}

	table := types.NewTableWithText(headers, rows, texts, types.TableTypeHTML, len(tables))
	table.Metadata.Title = markupTitle(doc, first)
	return table, true
}

// findAll returns every descendant element of n with the given tag, in
// document order.
func findAll(n *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == tag {
				out = append(out, c)
			}
			f(c)
		}
	}
	f(n)
	return out
}

// rowCells returns the text of the <td> and <th> children of a row.
func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, extractText(c))
		}
	}
	return cells
}

// extractText concatenates the trimmed text nodes below n, dropping the
// ones that are empty after trimming.
func extractText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// markupTitle prefers the table caption, then the first HTML heading.
func markupTitle(doc, table *html.Node) string {
	if captions := findAll(table, atom.Caption); len(captions) > 0 {
		if t := extractText(captions[0]); t != "" {
			return t
		}
	}
	for _, tag := range []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6} {
		if hs := findAll(doc, tag); len(hs) > 0 {
			if t := extractText(hs[0]); t != "" {
				return t
			}
		}
	}
	return ""
}
