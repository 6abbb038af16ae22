package extract

import (
	"bytes"
	"net/url"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// cell elements are separated by a space.
var cell = map[atom.Atom]bool{
	atom.Td: true, atom.Th: true, atom.Dt: true, atom.Dd: true, atom.Option: true,
}

type htmlContent struct {
	title string
	text  string
	links []string
}

// parseHTML walks an HTML document collecting visible text, the title and
// outbound links resolved against base. base may be nil.
func parseHTML(data []byte, base *url.URL) (*htmlContent, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var (
		out   htmlContent
		text  bytes.Buffer
		h1    string
		space bool // whitespace seen since the last written text
		seen  = map[string]bool{}
		visit func(*html.Node)
	)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if out.title == "" {
					out.title = strings.TrimSpace(nodeText(n))
				}
			case atom.H1:
				if h1 == "" {
					h1 = strings.TrimSpace(nodeText(n))
				}
			case atom.A:
				if link := resolveLink(base, attr(n, "href")); link != "" && !seen[link] {
					seen[link] = true
					out.links = append(out.links, link)
				}
			case atom.Base:
				if href := attr(n, "href"); href != "" {
					if b, err := url.Parse(href); err == nil {
						if base != nil {
							b = base.ResolveReference(b)
						}
						base = b
					}
				}
			}
			if skipped[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			s := strings.Join(strings.Fields(n.Data), " ")
			switch {
			case s == "":
				space = space || n.Data != ""
			default:
				if text.Len() > 0 && !endsLine(&text) && (space || startsSpace(n.Data)) {
					text.WriteByte(' ')
				}
				text.WriteString(s)
				space = endsSpace(n.Data)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type != html.ElementNode {
			return
		}
		if block[n.DataAtom] && text.Len() > 0 && !endsLine(&text) {
			text.WriteByte('\n')
		}
		if cell[n.DataAtom] {
			space = true
		}
	}
	// <head> is skipped for text but still holds <title> and <base>.
	for _, head := range findAll(root, atom.Head) {
		for c := head.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Title || c.DataAtom == atom.Base) {
				visit(c)
			}
		}
	}
	text.Reset()
	visit(root)

	if out.title == "" {
		out.title = h1
	}
	out.text = strings.TrimSpace(text.String())
	return &out, nil
}

func startsSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func endsSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func endsLine(b *bytes.Buffer) bool {
	return b.Bytes()[b.Len()-1] == '\n'
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	if n.Type == html.ElementNode && n.DataAtom == a {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, a)...)
	}
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	i := slices.IndexFunc(n.Attr, func(a html.Attribute) bool { return a.Key == key })
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(n.Attr[i].Val)
}

// resolveLink returns href as an absolute http(s) URL without fragment,
// or "" when it is not one.
func resolveLink(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
