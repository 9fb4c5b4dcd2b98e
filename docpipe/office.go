// CLAUDE:SUMMARY Extracts headings, paragraphs, lists, tables and core properties from zipped XML office documents (.docx, .odt).
package docpipe

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// maxXMLDepth bounds element nesting in archive XML parts.
	maxXMLDepth = 256
	// maxPartBytes bounds the uncompressed size of one archive part.
	maxPartBytes = 256 << 20
)

// officeLayout names the archive parts of one office format.
type officeLayout struct {
	body string
	meta string
	new  func() officeParser
}

var officeLayouts = map[Format]officeLayout{
	FormatDocx: {body: "word/document.xml", meta: "docProps/core.xml", new: func() officeParser { return &docxParser{} }},
	FormatODT:  {body: "content.xml", meta: "meta.xml", new: func() officeParser { return &odtParser{} }},
}

// officeParser receives the body tokens of one document.
type officeParser interface {
	start(el xml.StartElement)
	chars(b []byte)
	end(name string)
	result() *blocks
}

// officeEngine extracts .docx and .odt archives.
type officeEngine struct {
	format Format
}

func (e officeEngine) Name() string       { return string(e.format) }
func (officeEngine) SupportsTables() bool { return true }
func (officeEngine) SupportsOCR() bool    { return false }

func (e officeEngine) ExtractText(ctx context.Context, path string) (*Extraction, error) {
	layout, ok := officeLayouts[e.format]
	if !ok {
		return nil, fmt.Errorf("no office layout for %s", e.format)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	part := findPart(&zr.Reader, layout.body)
	if part == nil {
		return nil, fmt.Errorf("%s not found in archive", layout.body)
	}
	p := layout.new()
	if err := walkPart(ctx, part, p); err != nil {
		return nil, err
	}
	body := p.result()

	ext := &Extraction{
		Title:    body.title,
		Text:     sectionsText(body.sections),
		Sections: body.sections,
		Tables:   body.tables,
	}
	// Core properties are optional; a broken meta part never fails the body.
	if mp := findPart(&zr.Reader, layout.meta); mp != nil {
		if md, err := readCoreProps(ctx, mp); err == nil && len(md) > 0 {
			ext.Metadata = md
			if ext.Title == "" {
				ext.Title = md["title"]
			}
		}
	}
	return ext, nil
}

func findPart(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// walkPart streams the tokens of an XML archive part into p, enforcing the
// part size and nesting limits.
func walkPart(ctx context.Context, f *zip.File, p officeParser) error {
	if f.UncompressedSize64 > maxPartBytes {
		return fmt.Errorf("%s: %d bytes exceeds part limit", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxPartBytes))
	depth := 0
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return fmt.Errorf("%s: xml nesting depth exceeds %d", f.Name, maxXMLDepth)
			}
			p.start(t)
		case xml.CharData:
			p.chars(t)
		case xml.EndElement:
			depth--
			p.end(t.Name.Local)
		}
	}
}

// docxParser handles WordprocessingML (word/document.xml).
type docxParser struct {
	blocks
	inPara bool
	style  string
	list   bool
}

func (p *docxParser) start(el xml.StartElement) {
	switch el.Name.Local {
	case "tbl":
		if p.table == nil {
			p.table = &tableBuilder{}
		}
		p.table.depth++
	case "p":
		p.inPara = true
		p.style = ""
		p.list = false
		p.text.Reset()
	case "pStyle":
		if p.inPara {
			p.style = attr(el, "val")
		}
	case "numPr":
		p.list = p.inPara
	case "tab":
		if p.inPara {
			p.text.WriteByte(' ')
		}
	case "br":
		if p.inPara {
			p.text.WriteByte('\n')
		}
	}
}

func (p *docxParser) chars(b []byte) {
	if p.inPara {
		p.text.Write(b)
	}
}

func (p *docxParser) end(name string) {
	switch name {
	case "p":
		if !p.inPara {
			return
		}
		p.inPara = false
		text := p.flushText()
		if level := docxHeadingLevel(p.style); level > 0 && p.table == nil {
			p.heading(text, level)
			return
		}
		kind := "paragraph"
		if p.list || strings.HasPrefix(strings.ToLower(p.style), "list") {
			kind = "list"
		}
		p.paragraph(text, kind)
	case "tc":
		if p.table != nil && p.table.depth == 1 {
			p.table.endCell()
		}
	case "tr":
		if p.table != nil && p.table.depth == 1 {
			p.table.endRow()
		}
	case "tbl":
		if p.table == nil {
			return
		}
		if p.table.depth--; p.table.depth == 0 {
			p.endTable()
		}
	}
}

func (p *docxParser) result() *blocks { return &p.blocks }

// docxHeadingLevel maps a paragraph style to a heading level, 0 for body
// text. Localized style ids ("Titre1", "Überschrift2") are recognized.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		rest, ok := strings.CutPrefix(lower, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= 6 {
			return n
		}
	}
	return 0
}

// odtParser handles OpenDocument text (content.xml).
type odtParser struct {
	blocks
	inBlock   bool
	isHeading bool
	level     int
	lists     int
}

func (p *odtParser) start(el xml.StartElement) {
	switch el.Name.Local {
	case "table":
		if p.table == nil {
			p.table = &tableBuilder{}
		}
		p.table.depth++
	case "h":
		p.inBlock, p.isHeading = true, true
		p.level = 1
		if n, err := strconv.Atoi(attr(el, "outline-level")); err == nil && n > 0 {
			p.level = min(n, 6)
		}
		p.text.Reset()
	case "p":
		p.inBlock, p.isHeading = true, false
		p.text.Reset()
	case "list":
		p.lists++
	case "s", "tab":
		if p.inBlock {
			p.text.WriteByte(' ')
		}
	case "line-break":
		if p.inBlock {
			p.text.WriteByte('\n')
		}
	}
}

func (p *odtParser) chars(b []byte) {
	if p.inBlock {
		p.text.Write(b)
	}
}

func (p *odtParser) end(name string) {
	switch name {
	case "h", "p":
		if !p.inBlock {
			return
		}
		p.inBlock = false
		text := p.flushText()
		switch {
		case p.isHeading && p.table == nil:
			p.heading(text, p.level)
		case p.lists > 0:
			p.paragraph(text, "list")
		default:
			p.paragraph(text, "paragraph")
		}
	case "list":
		if p.lists > 0 {
			p.lists--
		}
	case "table-cell":
		if p.table != nil && p.table.depth == 1 {
			p.table.endCell()
		}
	case "table-row":
		if p.table != nil && p.table.depth == 1 {
			p.table.endRow()
		}
	case "table":
		if p.table == nil {
			return
		}
		if p.table.depth--; p.table.depth == 0 {
			p.endTable()
		}
	}
}

func (p *odtParser) result() *blocks { return &p.blocks }

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// corePropKeys maps Dublin Core and OpenDocument meta elements to
// metadata keys.
var corePropKeys = map[string]string{
	"title":           "title",
	"subject":         "subject",
	"creator":         "author",
	"initial-creator": "author",
	"keywords":        "keywords",
	"keyword":         "keywords",
	"created":         "created",
	"creation-date":   "created",
	"modified":        "modified",
	"date":            "modified",
	"language":        "language",
}

// readCoreProps reads docProps/core.xml or meta.xml. The first value seen
// for a key wins, except keywords which accumulate.
func readCoreProps(ctx context.Context, f *zip.File) (map[string]string, error) {
	c := &coreProps{md: map[string]string{}}
	if err := walkPart(ctx, f, c); err != nil {
		return nil, err
	}
	return c.md, nil
}

type coreProps struct {
	md   map[string]string
	key  string
	text strings.Builder
}

func (c *coreProps) start(el xml.StartElement) {
	c.key = corePropKeys[el.Name.Local]
	c.text.Reset()
}

func (c *coreProps) chars(b []byte) {
	if c.key != "" {
		c.text.Write(b)
	}
}

func (c *coreProps) end(string) {
	if c.key == "" {
		return
	}
	v := strings.TrimSpace(c.text.String())
	switch {
	case v == "":
	case c.key == "keywords" && c.md["keywords"] != "":
		c.md["keywords"] += ", " + v
	case c.md[c.key] == "":
		c.md[c.key] = v
	}
	c.key = ""
}

func (c *coreProps) result() *blocks { return nil }
