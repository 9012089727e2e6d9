package util

import (
	"bufio"
	"bytes"
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

// raw html is not passed through, bodies come from untrusted submitters
var markdownParser = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

// RenderMarkdown renders CommonMark to HTML. Leading tabs of each line are removed first.
func RenderMarkdown(body string) string {

	var unindented = &bytes.Buffer{}

	lineScanner := bufio.NewScanner(strings.NewReader(body))
	for lineScanner.Scan() {
		line := lineScanner.Text()
		for len(line) > 0 && line[0] == '\t' {
			line = line[1:]
		}
		unindented.WriteString(line)
		unindented.WriteString("\n")
	}

	var result = &bytes.Buffer{}
	if err := markdownParser.Render(result, unindented.Bytes()); err != nil {
		return ""
	}
	return result.String()
}
