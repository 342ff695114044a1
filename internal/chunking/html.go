package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/continuity-handoff/internal/textutil"
)

// MaxRawChars bounds the whole-page fallback text
const MaxRawChars = 200000

// uiLineRe matches capture-panel lines that leak into exported pages
var uiLineRe = regexp.MustCompile(`(?i)^(zerotoken|checkpoint|generate|login|logout|register|auto-saved|unlimited handoffs active|first handoff|progress|token meter)`)

// panelSelectors are overlay elements injected by the capture panel
const panelSelectors = "#zt-panel, #zt-handoff-modal, #zt-auth-modal"

// FromHTML extracts ordered messages from an exported chat page. Elements
// carrying data-message-author-role are preferred; otherwise article and
// .message blocks are read with an unknown role, and as a last resort the
// page body becomes a single message.
func FromHTML(html string) ([]Message, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, footer").Remove()
	doc.Find(panelSelectors).Remove()

	var messages []Message
	doc.Find("[data-message-author-role]").Each(func(_ int, s *goquery.Selection) {
		role, _ := s.Attr("data-message-author-role")
		body := s.Find(".markdown, article").First()
		if body.Length() == 0 {
			body = s
		}
		if content := cleanLines(body.Text()); content != "" {
			messages = append(messages, Message{Role: role, Content: content})
		}
	})
	if len(messages) > 0 {
		return messages, nil
	}

	doc.Find("main .markdown, main article, article, .message").Each(func(_ int, s *goquery.Selection) {
		// nested matches are read through their outermost block
		if s.ParentsFiltered("article, .message").Length() > 0 {
			return
		}
		if content := cleanLines(s.Text()); content != "" {
			messages = append(messages, Message{Role: "unknown", Content: content})
		}
	})
	if len(messages) > 0 {
		return messages, nil
	}

	raw := cleanLines(doc.Find("body").Text())
	if raw == "" {
		return nil, nil
	}
	return []Message{{Role: "unknown", Content: textutil.TruncateRunes(raw, MaxRawChars)}}, nil
}

// cleanLines trims lines and drops blank and panel lines
func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || uiLineRe.MatchString(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}
