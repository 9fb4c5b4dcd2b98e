// CLAUDE:SUMMARY Raw byte-decode engine: last resort for PDFs (uncompressed string literals) and text files (legacy encodings).
package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// rawEngine never parses document structure. For PDFs it scans the whole
// file for text-showing operators, which only works when content streams
// are stored uncompressed. For other files it decodes the bytes with the
// first encoding that yields mostly printable text.
type rawEngine struct {
	pdf bool
}

func (rawEngine) Name() string         { return "raw" }
func (rawEngine) SupportsTables() bool { return false }
func (rawEngine) SupportsOCR() bool    { return false }

func (e rawEngine) ExtractText(_ context.Context, path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if e.pdf {
		return rawPDF(data)
	}

	text, enc, err := decodeBytes(data)
	if err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = collapseWhitespace(stripControl(text))
	return &Extraction{
		Title:    firstLine(text),
		Text:     text,
		Metadata: map[string]string{"encoding": enc},
	}, nil
}

var pdfPageRe = regexp.MustCompile(`/Type\s*/Page\b`)

func rawPDF(data []byte) (*Extraction, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF")) {
		return nil, fmt.Errorf("missing %%PDF header")
	}
	text := extractTextFromStream(data)
	pages := len(pdfPageRe.FindAll(data, -1))
	q := newQuality(text, pages, len([]rune(text)), false)
	if text == "" {
		return nil, fmt.Errorf("%w: no text operators", ErrNoText)
	}
	if q.PrintableRatio < 0.85 || q.WordlikeRatio < 0.5 {
		return nil, fmt.Errorf("%w: literal text looks like garbage", ErrNoText)
	}
	return &Extraction{
		Title:     firstLine(text),
		Text:      text,
		PageCount: pages,
		Quality:   q,
		Metadata:  map[string]string{"encoding": "pdf-literal"},
	}, nil
}

// decodeBytes tries UTF-8, BOM-marked UTF-16, Windows-1252 and ISO-8859-1
// in that order.
func decodeBytes(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), "utf-8", nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeWith(xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder(), data, "utf-16le")
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM).NewDecoder(), data, "utf-16be")
	case utf8.Valid(data):
		return string(data), "utf-8", nil
	}

	candidates := []struct {
		name string
		dec  *encoding.Decoder
	}{
		{"windows-1252", charmap.Windows1252.NewDecoder()},
		{"iso-8859-1", charmap.ISO8859_1.NewDecoder()},
	}
	var lastErr error
	for _, c := range candidates {
		text, name, err := decodeWith(c.dec, data, c.name)
		if err != nil {
			lastErr = err
			continue
		}
		if computePrintableRatio(text) >= 0.85 {
			return text, name, nil
		}
		lastErr = fmt.Errorf("%s: mostly unprintable", c.name)
	}
	return "", "", fmt.Errorf("no usable encoding: %w", lastErr)
}

func decodeWith(dec *encoding.Decoder, data []byte, name string) (string, string, error) {
	out, err := dec.Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), name, nil
}

// stripControl drops control runes other than newline and tab. Line
// endings must already be normalized to \n.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if isGarbageRune(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

var (
	blankRunRe = regexp.MustCompile(`[ \t\p{Zs}]+`)
	lineRunRe  = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
)

// collapseWhitespace squeezes blank runs to one space and keeps at most one
// empty line.
func collapseWhitespace(s string) string {
	s = blankRunRe.ReplaceAllString(s, " ")
	s = lineRunRe.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
