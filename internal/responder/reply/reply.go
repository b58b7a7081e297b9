// Package reply holds the reply table: which canned answer (if any) a text
// earns under the current account availability.
package reply

import (
	"strconv"

	"badlionbot/internal/responder/match"
)

// Mode says whether giveaway accounts are still available.
type Mode int

const (
	// ModeAccountsAvailable is the default: accounts can still be won.
	ModeAccountsAvailable Mode = iota
	// ModeAccountsClaimed means every account has been handed out.
	ModeAccountsClaimed
)

func (m Mode) String() string {
	switch m {
	case ModeAccountsAvailable:
		return "available"
	case ModeAccountsClaimed:
		return "claimed"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ModeFromAvailable maps the availability flag to a Mode.
func ModeFromAvailable(available bool) Mode {
	if available {
		return ModeAccountsAvailable
	}
	return ModeAccountsClaimed
}

// Localized is one reply slot in both languages.
type Localized struct {
	Latin  string
	Arabic string
}

func (l Localized) pick(arabic bool) string {
	if arabic {
		return l.Arabic
	}
	return l.Latin
}

// Table holds the four reply slots of one mode.
type Table struct {
	WithContext    Localized
	WithoutContext Localized
}

var tables = map[Mode]Table{
	ModeAccountsClaimed: {
		WithContext: Localized{
			Latin:  "The room/channel is currently closed, it may open again later.",
			Arabic: "الموضوع اتقفل حالياً ، ممكن يفتح تاني ",
		},
		WithoutContext: Localized{
			Latin:  "All Badlion accounts have been claimed — but you can still win some through events!",
			Arabic: "الحسابات خلصت و ايضاً ممكن تكسب حسابات من الفعاليات.",
		},
	},
	ModeAccountsAvailable: {
		WithContext: Localized{
			Latin:  "There are still some Badlion accounts available — check the events to win one!",
			Arabic: "لا زالت هناك حسابات بادليون متاحة — تحقق من الفعاليات للفوز بأحدها!",
		},
		WithoutContext: Localized{
			Latin:  "The room/channel is currently open — act before it closes.",
			Arabic: "موضوع و القناة مفتوحة حالياً الحق قبل ما تقفل",
		},
	},
}

// tableFor returns the reply table of a mode. Unknown modes fall back to
// ModeAccountsAvailable.
func tableFor(m Mode) Table {
	if t, ok := tables[m]; ok {
		return t
	}
	return tables[ModeAccountsAvailable]
}

// Select returns the reply for text, or ok=false when the keyword is absent.
func Select(text string, mode Mode) (string, bool) {
	if !match.ContainsKeyword(text) {
		return "", false
	}
	return pick(match.Classify(text), mode), true
}

// SelectResult is Select for an already classified text.
func SelectResult(r match.Result, mode Mode) (string, bool) {
	if !r.HasKeyword {
		return "", false
	}
	return pick(r, mode), true
}

func pick(r match.Result, mode Mode) string {
	t := tableFor(mode)
	if r.HasContext {
		return t.WithContext.pick(r.IsArabic)
	}
	return t.WithoutContext.pick(r.IsArabic)
}
