package gateway

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Telegram rejects messages above 4096 characters; leave room for markup.
const telegramChunkSize = 4000

var (
	reFence     = regexp.MustCompile("(?s)```[\\w-]*\\n?(.*?)```")
	reCode      = regexp.MustCompile("`([^`\n]+)`")
	reHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reQuote     = regexp.MustCompile(`(?m)^>\s?(.*)$`)
	reLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reBoldStar  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnder = regexp.MustCompile(`__(.+?)__`)
	reItalic    = regexp.MustCompile(`(^|[^\w])_([^_\n]+)_([^\w]|$)`)
	reStrike    = regexp.MustCompile(`~~(.+?)~~`)
	reBullet    = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// toTelegramHTML renders the Markdown subset handlers write into the HTML
// dialect accepted by Telegram's parse_mode=HTML.
func toTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	// Code is cut out first so its contents are escaped but never styled.
	var stash []string
	hold := func(html string) string {
		stash = append(stash, html)
		return fmt.Sprintf("\x00%d\x00", len(stash)-1)
	}
	text = reFence.ReplaceAllStringFunc(text, func(m string) string {
		body := reFence.FindStringSubmatch(m)[1]
		return hold("<pre><code>" + htmlEscaper.Replace(body) + "</code></pre>")
	})
	text = reCode.ReplaceAllStringFunc(text, func(m string) string {
		body := reCode.FindStringSubmatch(m)[1]
		return hold("<code>" + htmlEscaper.Replace(body) + "</code>")
	})

	text = reHeading.ReplaceAllString(text, "**$1**")
	text = reQuote.ReplaceAllString(text, "$1")
	text = htmlEscaper.Replace(text)

	text = reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reBoldStar.ReplaceAllString(text, "<b>$1</b>")
	text = reBoldUnder.ReplaceAllString(text, "<b>$1</b>")
	text = reItalic.ReplaceAllString(text, "$1<i>$2</i>$3")
	text = reStrike.ReplaceAllString(text, "<s>$1</s>")
	text = reBullet.ReplaceAllString(text, "• ")

	for i, html := range stash {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), html, 1)
	}
	return text
}

// splitText cuts text into chunks of at most limit bytes, breaking at the
// last newline, then the last space, then anywhere on a rune boundary.
func splitText(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(text[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], " \t\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
