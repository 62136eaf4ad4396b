// Package sanitize turns retrieved report HTML, a complete document or a
// bare fragment, into a fragment safe to embed in a page. Reports are
// exported notebooks from third-party repos, so the input is treated as
// untrusted.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// WrapperClass marks the containers added around wide elements so the
// presentation layer can style them for horizontal scrolling
const WrapperClass = "overflow-wrapper"

// ErrNoBody is returned for a document that has an <html> element but no
// <body>: malformed input we refuse to guess about
var ErrNoBody = errors.New("html document has an <html> element but no <body>")

var (
	htmlTagPattern = regexp.MustCompile(`(?i)<html[\s/>]`)
	bodyTagPattern = regexp.MustCompile(`(?i)<body[\s/>]`)
)

// ProcessHTML normalizes raw report HTML into an embeddable fragment:
// only body content survives, script and style elements and inline
// event-handler and style attributes are stripped, and each table and pre
// element is wrapped in a scroll container.
func ProcessHTML(raw string) (string, error) {
	// Reports may be proper HTML documents or bare fragments. A fragment is
	// given a document shell so parsing always sees the same structure; a
	// document with <html> but no <body> is malformed.
	if htmlTagPattern.MatchString(raw) {
		if !bodyTagPattern.MatchString(raw) {
			return "", ErrNoBody
		}
	} else {
		raw = "<html><body>" + raw + "</body></html>"
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	// Only body content is kept, which drops <head> wholesale. Script and
	// style elements may have been inserted elsewhere in the document too,
	// so they are removed explicitly.
	body := doc.Find("body").First()
	body.Find("script, style").Remove()

	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			stripUnsafeAttrs(node)
		}
	})

	// Collect first, then mutate: wrapping while traversing invalidates the
	// selection being walked.
	var targets []*goquery.Selection
	body.Find("table, pre").Each(func(_ int, s *goquery.Selection) {
		targets = append(targets, s)
	})
	for _, s := range targets {
		if s.Parent().HasClass(WrapperClass) {
			continue
		}
		s.WrapHtml(`<div class="` + WrapperClass + `"></div>`)
	}

	out, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

// stripUnsafeAttrs removes inline event handlers and style attributes
func stripUnsafeAttrs(node *html.Node) {
	kept := node.Attr[:0]
	for _, attr := range node.Attr {
		key := strings.ToLower(attr.Key)
		if key == "style" || strings.HasPrefix(key, "on") {
			continue
		}
		kept = append(kept, attr)
	}
	node.Attr = kept
}
