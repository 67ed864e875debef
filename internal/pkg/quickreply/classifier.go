package quickreply

import (
	"regexp"
	"strings"
)

// MaxReplies bounds the suggestion set surfaced to the user.
const MaxReplies = 3

var greetingRe = regexp.MustCompile(`\b(hi|hello|hey)\b`)

// rule pairs a predicate with the replies it produces. Rules are evaluated in
// order; the first match wins.
type rule struct {
	match   func(text string) bool
	replies []string
}

func contains(subs ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

// The rule order is significant: gratitude beats the question mark in
// "thanks, can you?" style messages, and the fallback always matches.
var rules = []rule{
	{match: contains("thank", "thanks"), replies: []string{"You're welcome!", "Happy to help!", "Anytime!"}},
	{match: contains("?"), replies: []string{"Yes", "No", "Let me check"}},
	{match: greetingRe.MatchString, replies: []string{"Hey!", "Hello!", "Hi there!"}},
	{match: contains("sorry"), replies: []string{"No worries!", "It's okay", "Don't worry about it"}},
	{match: contains("want to", "would you"), replies: []string{"Sure!", "I'd love to", "Maybe later"}},
	{match: contains("okay", "ok", "sounds good"), replies: []string{"Great!", "Perfect!", "Awesome!"}},
	{match: func(string) bool { return true }, replies: []string{"Got it", "Okay", "Thanks"}},
}

// Classify maps an inbound message's text to an ordered set of candidate
// replies. It is pure and synchronous: no external calls, no state.
func Classify(text string) []string {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.match(lower) {
			out := make([]string, 0, MaxReplies)
			out = append(out, r.replies...)
			if len(out) > MaxReplies {
				out = out[:MaxReplies]
			}
			return out
		}
	}
	return nil
}
