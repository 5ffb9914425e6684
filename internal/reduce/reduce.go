// Package reduce shrinks raw page content to fit model context windows.
// It favors cheap structural heuristics over full readability parsing:
// product listings are usually the densest, most repetitive region of a page.
package reduce

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EstimateTokens approximates the model token count of text. The 4-chars-per-
// token ratio is coarse but consistent, which is all chunk budgeting needs.
func EstimateTokens(text string) int {
	return len(text) / 4
}

var scriptTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
}

var noiseTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Iframe:   true,
	atom.Svg:      true,
}

var candidateTags = map[atom.Atom]bool{
	atom.Main:    true,
	atom.Article: true,
	atom.Section: true,
	atom.Ul:      true,
	atom.Div:     true,
}

// CleanHTML strips non-content markup. Minimal mode removes scripts, styles
// and comments; aggressive mode also drops navigation chrome.
func CleanHTML(raw string, aggressive bool) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	tags := scriptTags
	if aggressive {
		tags = noiseTags
	}
	removeNodes(doc, tags)
	if body := findTag(doc, atom.Body); body != nil {
		return renderChildren(body)
	}
	return renderNode(doc)
}

// ExtractMainContent locates the main content region of a page. Navigation
// chrome is stripped, then candidate containers are ranked by text density;
// among the densest five, a repetitive container (a listing) wins. Falls back
// to the densest candidate, then to the cleaned page.
func ExtractMainContent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	removeNodes(doc, noiseTags)

	type scored struct {
		node    *html.Node
		density float64
	}
	var candidates []scored
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || !candidateTags[n.DataAtom] {
			return
		}
		textLen := textLength(n)
		if textLen == 0 {
			return
		}
		density := float64(textLen) / float64(1+countElements(n))
		candidates = append(candidates, scored{node: n, density: density})
	})

	if len(candidates) == 0 {
		if body := findTag(doc, atom.Body); body != nil {
			return renderChildren(body)
		}
		return renderNode(doc)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].density > candidates[j].density
	})
	top := candidates
	if len(top) > 5 {
		top = top[:5]
	}
	for _, c := range top {
		if hasRepetitiveStructure(c.node) {
			return renderNode(c.node)
		}
	}
	return renderNode(top[0].node)
}

// ExtractText returns the plain text of a page with block boundaries as
// newlines. Image alt text is kept since listings often name products there.
func ExtractText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return collapseWhitespace(raw)
	}
	removeNodes(doc, scriptTags)

	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Img {
				if alt := attrValue(n, "alt"); alt != "" {
					b.WriteString(" ")
					b.WriteString(alt)
					b.WriteString(" ")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type == html.ElementNode && blockTags[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	visit(doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := collapseWhitespace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Li: true, atom.Br: true, atom.Tr: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Main: true, atom.Body: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Blockquote: true, atom.Pre: true,
}

// hasRepetitiveStructure reports whether a node looks like a listing:
// at least three direct element children with mostly repeated tag names.
func hasRepetitiveStructure(n *html.Node) bool {
	var total int
	unique := map[string]bool{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		total++
		unique[c.Data] = true
	}
	if total < 3 {
		return false
	}
	return float64(len(unique))/float64(total) < 0.5
}

func removeNodes(n *html.Node, tags map[atom.Atom]bool) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.CommentNode || (c.Type == html.ElementNode && tags[c.DataAtom]) {
			n.RemoveChild(c)
		} else {
			removeNodes(c, tags)
		}
		c = next
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findTag(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textLength(n *html.Node) int {
	var total int
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			total += len(strings.TrimSpace(c.Data))
		}
	})
	return total
}

func countElements(n *html.Node) int {
	var total int
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && c != n {
			total++
		}
	})
	return total
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return b.String()
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
