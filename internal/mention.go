package internal

import (
	"regexp"
	"strings"
)

var (
	// an unterminated @word ending exactly at the cursor.
	mentionTriggerPattern = regexp.MustCompile(`@(\w*)$`)
	// every complete @word token in a rendered message.
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// ParseMentionTrigger inspects the text before the cursor for a trailing @word
// token and returns the partial word as the autocomplete query. The second
// result is false when no such token ends at the cursor (a space or any other
// non-word character terminates the token).
func ParseMentionTrigger(text string, cursor int) (string, bool) {
	if cursor < 0 || cursor > len(text) {
		return "", false
	}
	match := mentionTriggerPattern.FindStringSubmatch(text[:cursor])
	if match == nil {
		return "", false
	}
	return match[1], true
}

// MentionSuggestions filters the known users by a case-insensitive substring
// match, preserving the input order so callers control ranking.
func MentionSuggestions(query string, knownUsers []string) []string {
	loweredQuery := strings.ToLower(query)
	matches := make([]string, 0, len(knownUsers))
	for _, user := range knownUsers {
		if strings.Contains(strings.ToLower(user), loweredQuery) {
			matches = append(matches, user)
		}
	}
	return matches
}

// ApplyMentionSelection replaces the trailing @partial token before the cursor
// with "@chosenUser " and returns the new text plus the cursor position right
// after the inserted mention.
func ApplyMentionSelection(text string, cursor int, chosenUser string) (string, int) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}
	before := mentionTriggerPattern.ReplaceAllString(text[:cursor], "")
	after := text[cursor:]
	inserted := before + "@" + chosenUser + " "
	return inserted + after, len(inserted)
}

// MentionsUser reports whether the text mentions the username with a
// word-boundary, case-insensitive @ token.
func MentionsUser(text, username string) bool {
	if username == "" {
		return false
	}
	pattern, err := regexp.Compile(`(?i)@` + regexp.QuoteMeta(username) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(text)
}

// MentionSegment is one run of message text, tagged when it is an @mention so
// the renderer can style it.
type MentionSegment struct {
	Text    string
	Mention bool
}

// HighlightMentions splits the text into plain and mention segments, keeping
// every non-mention character verbatim.
func HighlightMentions(text string) []MentionSegment {
	if text == "" {
		return nil
	}
	locations := mentionPattern.FindAllStringIndex(text, -1)
	if len(locations) == 0 {
		return []MentionSegment{{Text: text}}
	}
	segments := make([]MentionSegment, 0, len(locations)*2+1)
	last := 0
	for _, loc := range locations {
		if loc[0] > last {
			segments = append(segments, MentionSegment{Text: text[last:loc[0]]})
		}
		segments = append(segments, MentionSegment{Text: text[loc[0]:loc[1]], Mention: true})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, MentionSegment{Text: text[last:]})
	}
	return segments
}
