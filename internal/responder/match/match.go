// Package match classifies message text for the responder.
//
// Latin forms are matched case-insensitively as whole words, where a word
// character is any Unicode letter, digit or underscore.
// Arabic forms are matched as substrings: Arabic glues conjunctions and the
// definite article onto the word ("والقناة"), so a boundary check would miss
// the common spellings.
package match

import "regexp"

const (
	// Keyword is the Latin spelling of the trigger word.
	Keyword = "badlion"
	// KeywordArabic is the fixed Arabic spelling of the trigger word.
	KeywordArabic = "بادليون"
)

var (
	keywordRE = regexp.MustCompile(wholeWord(Keyword) + `|` + KeywordArabic)
	roomRE    = regexp.MustCompile(wholeWord("room") + `|روم`)
	channelRE = regexp.MustCompile(wholeWord("channel") + `|قناة`)
)

// wholeWord builds a case-insensitive pattern for w bounded by non-word runes.
// RE2's \b only knows ASCII, so "badlioné" would count as a whole word.
func wholeWord(w string) string {
	return `(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(w) + `(?:[^\p{L}\p{N}_]|$)`
}

// Result is the per-call classification of a text.
type Result struct {
	HasKeyword bool
	HasContext bool
	IsArabic   bool
}

// Classify runs all three checks.
func Classify(text string) Result {
	return Result{
		HasKeyword: ContainsKeyword(text),
		HasContext: ContainsContextWord(text),
		IsArabic:   IsArabic(text),
	}
}

// ContainsKeyword reports whether text mentions the trigger word in either script.
func ContainsKeyword(text string) bool {
	return keywordRE.MatchString(text)
}

// ContainsContextWord reports whether text mentions a room or a channel.
func ContainsContextWord(text string) bool {
	return roomRE.MatchString(text) || channelRE.MatchString(text)
}

// IsArabic reports whether any rune of text is in the Arabic block (U+0600..U+06FF).
func IsArabic(text string) bool {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}
