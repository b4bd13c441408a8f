package converter

import (
	"context"
	"html"
	"os"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docconvert/internal/model"
)

const defaultPageTitle = "Web Page"

func (c *Converter) convertHTML(_ context.Context, path string) model.ConversionResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Failure("Error converting HTML: %v", err)
	}
	src, err := decodeText(data)
	if err != nil {
		return model.Failure("Error converting HTML: %v", err)
	}

	if c.htmlMarkdown {
		md, err := c.markdown.ConvertString(src)
		if err != nil {
			return model.Failure("Error converting HTML: %v", err)
		}
		return model.Success(strings.TrimSpace(md))
	}
	return model.Success(c.plainText(src))
}

// plainText strips every tag, dropping script and style content, and flattens
// the remaining text onto one line.
func (c *Converter) plainText(src string) string {
	stripped := c.sanitizer.Sanitize(src)
	return flatten(html.UnescapeString(stripped))
}

// pageTitle returns the text of the first <title>, or the default page title.
func pageTitle(doc *nethtml.Node) string {
	var find func(n *nethtml.Node) string
	find = func(n *nethtml.Node) string {
		if n.Type == nethtml.ElementNode && n.DataAtom == atom.Title {
			var sb strings.Builder
			for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
				if ch.Type == nethtml.TextNode {
					sb.WriteString(ch.Data)
				}
			}
			return strings.TrimSpace(sb.String())
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if t := find(ch); t != "" {
				return t
			}
		}
		return ""
	}
	if doc == nil {
		return defaultPageTitle
	}
	if t := find(doc); t != "" {
		return t
	}
	return defaultPageTitle
}
