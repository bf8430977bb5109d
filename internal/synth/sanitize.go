package synth

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/quarryhq/quarry/internal/model"
)

// Sanitize normalizes one raw draft before merging: HTML is stripped,
// whitespace is collapsed, and confidence is clamped to [0, 1]. The second
// return is false when the draft should be dropped because nothing
// readable remains or the text exceeds maxChars.
func Sanitize(draft model.ClaimDraft, maxChars int) (model.ClaimDraft, bool) {
	text := draft.Text
	if strings.Contains(text, "<") {
		text = stripHTML(text)
	}
	text = strings.Join(strings.Fields(text), " ")

	if text == "" {
		return draft, false
	}
	if maxChars > 0 && len(text) > maxChars {
		return draft, false
	}

	clean := draft
	clean.Text = text
	if clean.Confidence < 0 {
		clean.Confidence = 0
	}
	if clean.Confidence > 1 {
		clean.Confidence = 1
	}
	return clean, true
}

// stripHTML extracts the visible text nodes, skipping scripts and styles
func stripHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String()
}
