package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText collapses the messy whitespace and non-printable characters
// that show up inside scraped html text nodes. Exotic space characters
// (nbsp and friends) become plain spaces.
func CleanText(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsSpace(c) {
			newStr.WriteRune(' ')
		} else if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	s = innerWhitespace.ReplaceAllString(newStr.String(), " ")
	return strings.Trim(s, " ")
}

// CellText extracts the cleaned text content of a table cell (or any
// other element) selection. Multiple matched nodes are joined by a
// single space.
func CellText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		text := CleanText(GetText(n))
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
