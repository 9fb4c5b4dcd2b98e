// CLAUDE:SUMMARY Extracts visible headings, paragraphs, lists, tables and meta tags from HTML files; hidden text is dropped.
package docpipe

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0(?:[^.1-9]|$)`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(?:[^.\d]|$)`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
}

// htmlMetaKeys maps <meta name=...> values to metadata keys.
var htmlMetaKeys = map[string]string{
	"author":      "author",
	"description": "subject",
	"keywords":    "keywords",
	"generator":   "generator",
}

// htmlEngine extracts HTML documents. Boilerplate containers (nav, header,
// footer, scripts) and elements hidden through inline styles are skipped.
type htmlEngine struct{}

func (htmlEngine) Name() string         { return "html" }
func (htmlEngine) SupportsTables() bool { return true }
func (htmlEngine) SupportsOCR() bool    { return false }

func (htmlEngine) ExtractText(ctx context.Context, path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &htmlWalker{meta: map[string]string{}}
	w.walk(root)
	w.flush()
	if len(w.sections) == 0 {
		w.paragraph(visibleText(root), "paragraph")
	}

	title := w.docTitle
	if title == "" {
		title = w.title
	}
	ext := &Extraction{
		Title:    title,
		Text:     sectionsText(w.sections),
		Sections: w.sections,
		Tables:   w.tables,
	}
	if len(w.meta) > 0 {
		ext.Metadata = w.meta
	}
	return ext, nil
}

type htmlWalker struct {
	blocks
	docTitle string
	meta     map[string]string
	inline   []string
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			w.inline = append(w.inline, s)
		}
		return
	case html.ElementNode:
		if skipHTML(n) {
			return
		}
		if w.element(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if n.Type == html.ElementNode && isBlockHTML(n.DataAtom) {
		w.flush()
	}
}

// element handles n and reports whether its subtree was consumed.
func (w *htmlWalker) element(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Title:
		if w.docTitle == "" {
			w.docTitle = visibleText(n)
		}
		return true
	case atom.Meta:
		w.metaTag(n)
		return true
	case atom.Html:
		if lang := htmlAttr(n, "lang"); lang != "" {
			w.meta["language"] = lang
		}
		return false
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.flush()
		w.heading(visibleText(n), int(n.Data[1]-'0'))
		return true
	case atom.P, atom.Blockquote, atom.Dd, atom.Dt, atom.Figcaption:
		w.flush()
		w.paragraph(visibleText(n), "paragraph")
		return true
	case atom.Pre:
		w.flush()
		w.paragraph(strings.Trim(rawText(n), "\n"), "paragraph")
		return true
	case atom.Ul, atom.Ol:
		w.flush()
		w.paragraph(htmlList(n), "list")
		return true
	case atom.Table:
		w.flush()
		w.htmlTable(n)
		return true
	case atom.Br:
		w.flush()
		return true
	}
	if isBlockHTML(n.DataAtom) {
		w.flush()
	}
	return false
}

// flush emits the pending inline text as a paragraph.
func (w *htmlWalker) flush() {
	if len(w.inline) == 0 {
		return
	}
	w.paragraph(strings.Join(w.inline, " "), "paragraph")
	w.inline = nil
}

func (w *htmlWalker) metaTag(n *html.Node) {
	key := htmlMetaKeys[strings.ToLower(htmlAttr(n, "name"))]
	if key == "" {
		return
	}
	if v := strings.TrimSpace(htmlAttr(n, "content")); v != "" && w.meta[key] == "" {
		w.meta[key] = v
	}
}

// htmlTable collects the rows of table that do not belong to a nested
// table. Nested table text is kept inside its cell.
func (w *htmlWalker) htmlTable(table *html.Node) {
	w.table = &tableBuilder{depth: 1}
	var rows func(*html.Node)
	rows = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || skipHTML(c) {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type == html.ElementNode && (td.DataAtom == atom.Td || td.DataAtom == atom.Th) && !skipHTML(td) {
						w.table.addText(visibleText(td))
						w.table.endCell()
					}
				}
				w.table.endRow()
			default:
				rows(c)
			}
		}
	}
	rows(table)
	w.endTable()
}

// htmlList renders one item per line with a list marker.
func htmlList(list *html.Node) string {
	var items []string
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li || skipHTML(c) {
			continue
		}
		text := visibleText(c)
		if text == "" {
			continue
		}
		if list.DataAtom == atom.Ol {
			items = append(items, strconv.Itoa(len(items)+1)+". "+text)
		} else {
			items = append(items, "- "+text)
		}
	}
	return strings.Join(items, "\n")
}

// visibleText joins the visible text nodes of a subtree with single spaces.
func visibleText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.ElementNode:
			if skipHTML(n) || n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// rawText keeps whitespace, for preformatted blocks.
func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func skipHTML(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header, atom.Template, atom.Svg:
		return true
	}
	if _, hidden := htmlAttrOK(n, "hidden"); hidden {
		return true
	}
	style := htmlAttr(n, "style")
	if style == "" {
		return false
	}
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func isBlockHTML(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Aside, atom.Body,
		atom.Li, atom.Dl, atom.Figure, atom.Form, atom.Fieldset, atom.Address:
		return true
	}
	return false
}

func htmlAttr(n *html.Node, key string) string {
	v, _ := htmlAttrOK(n, key)
	return v
}

func htmlAttrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
