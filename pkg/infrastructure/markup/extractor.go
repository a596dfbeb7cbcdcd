package markup

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/WangYihang/crcns-mirror/pkg/domain/service"
	"golang.org/x/net/html"
)

// Parser implements service.MarkupParser on top of goquery
type Parser struct{}

// NewParser creates a new markup parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses markup into a queryable document. The HTML5 parser accepts
// any input, so errors only come from the underlying reader.
func (p *Parser) Parse(markup string) (service.Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &Document{doc: goquery.NewDocumentFromNode(root)}, nil
}

// Document implements service.Document
type Document struct {
	doc *goquery.Document
}

// Text returns the whitespace-normalized text of the first node matching
// selector.
func (d *Document) Text(selector string) (string, error) {
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%s: %w", selector, entity.ErrNoMatch)
	}
	return normalizeSpace(sel.First().Text()), nil
}

// HTML returns the outer markup of the first node matching selector
func (d *Document) HTML(selector string) (string, error) {
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%s: %w", selector, entity.ErrNoMatch)
	}
	out, err := goquery.OuterHtml(sel.First())
	if err != nil {
		return "", fmt.Errorf("%s: %w", selector, err)
	}
	return out, nil
}

// Links returns every href value of every anchor, in document order
func (d *Document) Links() []string {
	var links []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, strings.TrimSpace(href))
		}
	})
	return links
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
