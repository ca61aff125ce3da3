package telegraph

import (
	"regexp"
	"strings"
)

// Color constants for notices.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorError   = "#e53935"
)

// MaxMessageLen is the longest text sent in one platform message. Discord
// rejects content over 2000 characters.
const MaxMessageLen = 2000

// mentionRe matches Slack <@U123> and Discord <@123> / <@!123> mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// stripMentions removes platform mention tokens and surrounding space.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// chunkMessage splits text into chunks of at most maxLen bytes. It prefers
// breaking at newlines in the second half of a chunk and never splits a
// UTF-8 sequence.
func chunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cut := maxLen
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		breakAt := strings.LastIndexByte(text[:cut], '\n')
		if breakAt >= cut/2 {
			chunks = append(chunks, text[:breakAt])
			text = text[breakAt+1:]
			continue
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// noticeColor picks a sidebar color from a job outcome message.
func noticeColor(msg string) string {
	first, _, _ := strings.Cut(msg, "\n")
	switch {
	case strings.Contains(first, " failed"):
		return ColorError
	case strings.Contains(first, " finished"):
		return ColorSuccess
	default:
		return ColorInfo
	}
}
