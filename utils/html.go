package utils

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five characters Telegram's HTML parse mode treats as markup
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}
