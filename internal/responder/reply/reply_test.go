package reply

import (
	"testing"

	"badlionbot/internal/responder/match"
)

func TestSelectNoKeyword(t *testing.T) {
	for _, in := range []string{"", "hello world", "any room or channel?", "روم قناة"} {
		for _, m := range []Mode{ModeAccountsAvailable, ModeAccountsClaimed} {
			if got, ok := Select(in, m); ok || got != "" {
				t.Fatalf("Select(%q, %s) = %q, %v; want no reply", in, m, got, ok)
			}
		}
	}
}

func TestSelectScenarios(t *testing.T) {
	cases := []struct {
		text string
		mode Mode
		want string
	}{
		{"is badlion open? any room", ModeAccountsClaimed, "The room/channel is currently closed, it may open again later."},
		{"بادليون والقناة", ModeAccountsAvailable, "لا زالت هناك حسابات بادليون متاحة — تحقق من الفعاليات للفوز بأحدها!"},
		{"badlion?", ModeAccountsClaimed, "All Badlion accounts have been claimed — but you can still win some through events!"},
		{"badlion?", ModeAccountsAvailable, "The room/channel is currently open — act before it closes."},
		{"badlion channel", ModeAccountsAvailable, "There are still some Badlion accounts available — check the events to win one!"},
		{"بادليون", ModeAccountsClaimed, "الحسابات خلصت و ايضاً ممكن تكسب حسابات من الفعاليات."},
		{"بادليون روم", ModeAccountsClaimed, "الموضوع اتقفل حالياً ، ممكن يفتح تاني "},
		{"بادليون", ModeAccountsAvailable, "موضوع و القناة مفتوحة حالياً الحق قبل ما تقفل"},
		// Any Arabic rune switches the language, even with the Latin keyword.
		{"badlion مرحبا", ModeAccountsAvailable, "موضوع و القناة مفتوحة حالياً الحق قبل ما تقفل"},
	}
	for _, tc := range cases {
		got, ok := Select(tc.text, tc.mode)
		if !ok {
			t.Fatalf("Select(%q, %s): no reply", tc.text, tc.mode)
		}
		if got != tc.want {
			t.Fatalf("Select(%q, %s) = %q, want %q", tc.text, tc.mode, got, tc.want)
		}
	}
}

func TestSelectDeterministic(t *testing.T) {
	in := "badlion room?"
	first, _ := Select(in, ModeAccountsClaimed)
	for i := 0; i < 50; i++ {
		if got, _ := Select(in, ModeAccountsClaimed); got != first {
			t.Fatalf("Select not deterministic: %q vs %q", got, first)
		}
	}
}

func TestTablesHaveEightDistinctStrings(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range []Mode{ModeAccountsAvailable, ModeAccountsClaimed} {
		tb := tableFor(m)
		for _, s := range []string{tb.WithContext.Latin, tb.WithContext.Arabic, tb.WithoutContext.Latin, tb.WithoutContext.Arabic} {
			if s == "" {
				t.Fatalf("empty reply in %s table", m)
			}
			seen[s] = true
		}
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 distinct replies, got %d", len(seen))
	}
}

func TestSelectResultMatchesSelect(t *testing.T) {
	in := "Badlion in the CHANNEL"
	a, okA := Select(in, ModeAccountsClaimed)
	b, okB := SelectResult(match.Classify(in), ModeAccountsClaimed)
	if a != b || okA != okB {
		t.Fatalf("SelectResult mismatch: %q/%v vs %q/%v", a, okA, b, okB)
	}
}

func TestModeHelpers(t *testing.T) {
	if ModeFromAvailable(true) != ModeAccountsAvailable || ModeFromAvailable(false) != ModeAccountsClaimed {
		t.Fatalf("ModeFromAvailable mapping is wrong")
	}
	if tableFor(Mode(42)) != tableFor(ModeAccountsAvailable) {
		t.Fatalf("unknown mode should fall back to available table")
	}
}
