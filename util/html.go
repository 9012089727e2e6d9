package util

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText returns the text content of an HTML fragment, with whitespace collapsed.
func PlainText(htm string) string {

	tokenizer := html.NewTokenizerFragment(strings.NewReader(htm), "body")

	var text = &strings.Builder{}
	var skip = 0 // depth inside script or style

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break // assuming tokenizer.Err() == io.EOF
		}

		tagNameBytes, _ := tokenizer.TagName()
		tagName := string(tagNameBytes)

		switch tt {
		case html.StartTagToken:
			if tagName == "script" || tagName == "style" {
				skip++
			}
			text.WriteString(" ")
		case html.EndTagToken:
			if (tagName == "script" || tagName == "style") && skip > 0 {
				skip--
			}
			text.WriteString(" ")
		case html.SelfClosingTagToken:
			text.WriteString(" ")
		case html.TextToken:
			if skip == 0 {
				text.Write(tokenizer.Text())
			}
		}
	}

	return strings.Join(strings.Fields(text.String()), " ")
}

// MarkdownText renders markdown and returns its plain text.
func MarkdownText(body string) string {
	return PlainText(RenderMarkdown(body))
}

// Excerpt returns the beginning of the plain text of a markdown body, with an ellipsis if it was truncated.
func Excerpt(body string, maxRunes int) string {
	var text = MarkdownText(body)
	var truncated = Trunc(text, maxRunes)
	if len(truncated) < len(text) {
		truncated += "…"
	}
	return truncated
}
