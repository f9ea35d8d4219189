package inbox

import (
	"strings"

	"golang.org/x/net/html"
)

// excerptLength bounds the plain text stored alongside a reply.
const excerptLength = 500

// plainText strips markup from an HTML fragment, collapsing whitespace.
// Paragraph and line breaks become single spaces.
func plainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return truncate(strings.Join(strings.Fields(sb.String()), " "), excerptLength)
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "br", "div", "li":
				sb.WriteByte(' ')
			}
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
