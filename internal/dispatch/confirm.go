package dispatch

import (
	"strings"
	"unicode"
)

// Decision is how a reply to a confirmation prompt was read.
type Decision string

const (
	DecisionAffirm    Decision = "affirm"
	DecisionDeny      Decision = "deny"
	DecisionAmend     Decision = "amend"      // yes plus new details
	DecisionDenyMore  Decision = "deny_more"  // no plus something else
	DecisionAmbiguous Decision = "ambiguous"
)

var affirmPhrases = []string{
	"yes please", "go ahead", "do it", "please do", "sounds good", "book it",
	"yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm",
	"confirmed", "correct", "absolutely", "proceed", "affirmative",
}

var denyPhrases = []string{
	"never mind", "nevermind", "forget it", "no thanks", "don't", "do not",
	"no", "n", "nope", "nah", "cancel", "stop", "abort",
}

// Words that may trail an affirmative without changing its meaning.
var affirmFillers = map[string]bool{
	"please": true, "thanks": true, "thank": true, "you": true, "go": true,
	"ahead": true, "do": true, "it": true, "confirm": true, "confirmed": true,
	"sure": true, "ok": true, "okay": true, "yes": true, "yeah": true,
	"thing": true, "that": true, "works": true, "sounds": true, "good": true,
	"great": true, "perfect": true, "now": true,
}

// ParseConfirmation classifies a reply to a confirmation prompt. It is
// deterministic and does not depend on any classifier.
func ParseConfirmation(text string) Decision {
	words := normalizeWords(text)
	if len(words) == 0 {
		return DecisionAmbiguous
	}
	if n := matchPrefix(words, affirmPhrases); n > 0 {
		for _, w := range words[n:] {
			if !affirmFillers[w] {
				return DecisionAmend
			}
		}
		return DecisionAffirm
	}
	if n := matchPrefix(words, denyPhrases); n > 0 {
		if n == len(words) || (len(words) == n+1 && (words[n] == "thanks" || words[n] == "please")) {
			return DecisionDeny
		}
		return DecisionDenyMore
	}
	return DecisionAmbiguous
}

// isAbandon reports whether text on its own asks to drop the current request.
func isAbandon(text string) bool {
	return ParseConfirmation(text) == DecisionDeny
}

// matchPrefix returns the word count of the first phrase words starts with.
func matchPrefix(words []string, phrases []string) int {
	for _, p := range phrases {
		pw := strings.Fields(p)
		if len(pw) > len(words) {
			continue
		}
		ok := true
		for i := range pw {
			if words[i] != pw[i] {
				ok = false
				break
			}
		}
		if ok {
			return len(pw)
		}
	}
	return 0
}

func normalizeWords(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
