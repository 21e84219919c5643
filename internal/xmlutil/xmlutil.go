// Package xmlutil wraps DOM parsing, XPath iteration and the HTML/XHTML
// extraction helpers shared by all feed parsers.
package xmlutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"

	"feed-aggregator/internal/uri"
)

// XHTMLNamespace wraps extracted XHTML content.
const XHTMLNamespace = "http://www.w3.org/1999/xhtml"

// parserOptions disables strict decoding so that the usual real-world feed
// damage (unclosed tags, stray entities) doesn't abort the parse.
var parserOptions = xmlquery.ParserOptions{
	Decoder: &xmlquery.DecoderOptions{
		Strict: false,
		Entity: xml.HTMLEntity,
	},
}

// Parse converts feed bytes into a DOM. A declared non-UTF-8 encoding is
// transcoded up front; undeclared non-UTF-8 input is recovered by a
// Latin-1 best-effort pass, so the decoder always sees valid UTF-8.
func Parse(data []byte) (*xmlquery.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	doc, err := xmlquery.ParseWithOptions(bytes.NewReader(toUTF8(data)), parserOptions)
	if err != nil {
		return nil, fmt.Errorf("XML parse failed: %w", err)
	}
	return doc, nil
}

func toUTF8(data []byte) []byte {
	if enc := declaredEncoding(data); enc != "" && !strings.EqualFold(enc, "utf-8") {
		if converted, err := decodeCharset(data, enc); err == nil {
			return converted
		}
	}

	if !utf8.Valid(data) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
			return decoded
		}
		return bytes.ToValidUTF8(data, []byte("�"))
	}
	return data
}

// decodeCharset converts data from the named encoding to UTF-8 and
// rewrites the XML declaration so the decoder does not convert a second
// time.
func decodeCharset(data []byte, enc string) ([]byte, error) {
	r, err := charset.NewReaderLabel(enc, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if end := bytes.Index(converted, []byte("?>")); end >= 0 {
		if idx := bytes.Index(converted[:end], []byte(enc)); idx >= 0 {
			var b bytes.Buffer
			b.Write(converted[:idx])
			b.WriteString("UTF-8")
			b.Write(converted[idx+len(enc):])
			return b.Bytes(), nil
		}
	}
	return converted, nil
}

// declaredEncoding extracts the encoding pseudo-attribute of the XML
// declaration, if present.
func declaredEncoding(data []byte) string {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	if !bytes.HasPrefix(bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n"), []byte("<?xml")) {
		return ""
	}

	idx := bytes.Index(head, []byte("encoding="))
	if idx < 0 {
		return ""
	}
	rest := head[idx+len("encoding="):]
	if len(rest) < 2 || (rest[0] != '"' && rest[0] != '\'') {
		return ""
	}
	end := bytes.IndexByte(rest[1:], rest[0])
	if end < 0 {
		return ""
	}
	return string(rest[1 : 1+end])
}

// Root returns the first element node of a document.
func Root(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// ForEach invokes cb for every node matching the XPath expression relative
// to n. Invalid expressions are reported as an error instead of matching
// nothing silently.
func ForEach(n *xmlquery.Node, expr string, cb func(*xmlquery.Node)) error {
	nodes, err := xmlquery.QueryAll(n, expr)
	if err != nil {
		return fmt.Errorf("xpath %q: %w", expr, err)
	}
	for _, match := range nodes {
		cb(match)
	}
	return nil
}

// NodeText returns the trimmed character content of a node.
func NodeText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// Attr returns an attribute value by local name, ignoring its namespace.
func Attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present at all, which matters
// for attributes whose empty value is meaningful.
func HasAttr(n *xmlquery.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// ExtractXHTML serializes the children of n as an HTML fragment. When
// asXHTML is set the fragment is wrapped in a div carrying the XHTML
// namespace and relative href/src attributes are resolved against baseURL.
func ExtractXHTML(n *xmlquery.Node, asXHTML bool, baseURL string) string {
	if n == nil {
		return ""
	}

	if asXHTML && baseURL != "" {
		rewriteRelativeURLs(n, baseURL)
	}

	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			// entity-escaped markup in element content is already decoded
			// here and must not be re-escaped
			b.WriteString(child.Data)
		default:
			b.WriteString(child.OutputXML(true))
		}
	}
	content := b.String()

	if asXHTML {
		return `<div xmlns="` + XHTMLNamespace + `">` + content + `</div>`
	}
	return content
}

// rewriteRelativeURLs resolves schemeless href and src attributes in the
// subtree against base.
func rewriteRelativeURLs(n *xmlquery.Node, base string) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			for i, a := range child.Attr {
				if (a.Name.Local == "href" || a.Name.Local == "src") &&
					a.Value != "" && !strings.Contains(a.Value, "://") {
					child.Attr[i].Value = uri.BuildURL(a.Value, base)
				}
			}
			rewriteRelativeURLs(child, base)
		}
	}
}

// StripTags removes markup from a string and decodes entities. Used for
// fields that must be plain text, e.g. titles.
func StripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}

// EscapeHTML escapes a plain text string for embedding into HTML output.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
