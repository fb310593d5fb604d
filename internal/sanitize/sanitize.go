// Package sanitize converts untrusted draft text into the restricted HTML
// subset the editor renders. Sanitize is idempotent: feeding its output back
// in returns the same string.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the allowlist the editor depends on: basic block structure,
// inline emphasis, and the three data attributes used to anchor evidence
// citations, comments and tracked changes. Everything else is stripped.
var policy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "em", "strong", "u", "s", "h1", "h2", "h3", "h4", "ul", "ol", "li", "span")
	p.AllowAttrs("class", "data-citation-id", "data-comment-id", "data-change-id").Globally()
	return p
}()

var (
	blockMarkup    = regexp.MustCompile(`(?i)<(p|div|br|h[1-6]|ul|ol|li|blockquote|table)[\s/>]`)
	blankLine      = regexp.MustCompile(`\n[ \t]*\n`)
	leadingSpaces  = regexp.MustCompile(`^ +`)
	multipleSpaces = regexp.MustCompile(` {2,}`)
)

// Sanitize turns rawText into safe restricted HTML. Input without any
// block-level markup is treated as plain text: metacharacters are escaped,
// blank lines become paragraph boundaries, single newlines become <br>, and
// indentation survives as non-breaking spaces. Input that already carries
// block markup only passes through the allowlist filter.
func Sanitize(rawText string) string {
	text := strings.ReplaceAll(rawText, "\u00a0", " ")
	if !blockMarkup.MatchString(text) {
		text = fromPlainText(text)
	}

	out := encodeNbsp(policy.Sanitize(text))

	// Filtering can strip every block tag (e.g. a lone <div>), which would
	// send the output down the plain-text path on a second pass. Re-wrap so
	// the result is a fixed point.
	if out != "" && !blockMarkup.MatchString(out) {
		out = encodeNbsp(policy.Sanitize(fromPlainText(html.UnescapeString(out))))
	}
	return out
}

// fromPlainText escapes text and rebuilds paragraph/line-break structure.
func fromPlainText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var paragraphs []string
	for _, para := range blankLine.Split(text, -1) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		lines := strings.Split(html.EscapeString(para), "\n")
		for i, line := range lines {
			lines[i] = preserveIndent(line)
		}
		paragraphs = append(paragraphs, "<p>"+strings.Join(lines, "<br>")+"</p>")
	}
	return strings.Join(paragraphs, "")
}

// preserveIndent keeps legal-document indentation renderable: every leading
// space and every space beyond the first in a run becomes &nbsp;.
func preserveIndent(line string) string {
	line = leadingSpaces.ReplaceAllStringFunc(line, func(run string) string {
		return strings.Repeat("&nbsp;", len(run))
	})
	return multipleSpaces.ReplaceAllStringFunc(line, func(run string) string {
		return " " + strings.Repeat("&nbsp;", len(run)-1)
	})
}

// encodeNbsp re-encodes raw non-breaking-space runes the filter emits so the
// normalization step cannot collapse them on a later pass.
func encodeNbsp(s string) string {
	return strings.ReplaceAll(s, "\u00a0", "&nbsp;")
}
