package bot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var nonChannelChars = regexp.MustCompile(`[^a-z0-9-]`)

// maxChannelName is the longest context name platforms accept.
const maxChannelName = 100

// sanitizeChannelName turns model output into a kebab-case context name.
func sanitizeChannelName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "-")
	name = nonChannelChars.ReplaceAllString(name, "")
	if len(name) > maxChannelName {
		name = name[:maxChannelName]
	}
	if name == "" {
		return "new-chat"
	}
	return name
}

// splitMessage breaks text into chunks of at most maxChars runes,
// preferring to cut after a newline.
func splitMessage(text string, maxChars int) []string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > maxChars {
		cut := maxChars
		for i := maxChars - 1; i > maxChars/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func mentionUser(id string) string    { return "<@" + id + ">" }
func mentionContext(id string) string { return "<#" + id + ">" }
