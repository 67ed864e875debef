package quickreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Gratitude(t *testing.T) {
	got := Classify("Thank you so much!")
	assert.Equal(t, []string{"You're welcome!", "Happy to help!", "Anytime!"}, got)
}

func TestClassify_Question(t *testing.T) {
	got := Classify("are you free?")
	assert.Equal(t, []string{"Yes", "No", "Let me check"}, got)
}

func TestClassify_Greeting(t *testing.T) {
	got := Classify("hey there")
	assert.Equal(t, []string{"Hey!", "Hello!", "Hi there!"}, got)
}

func TestClassify_Apology(t *testing.T) {
	got := Classify("I'm so sorry about that")
	assert.Equal(t, []string{"No worries!", "It's okay", "Don't worry about it"}, got)
}

func TestClassify_Invitation(t *testing.T) {
	assert.Equal(t, []string{"Sure!", "I'd love to", "Maybe later"}, Classify("do you want to grab lunch"))
	assert.Equal(t, []string{"Sure!", "I'd love to", "Maybe later"}, Classify("would you join us"))
}

func TestClassify_Affirmation(t *testing.T) {
	assert.Equal(t, []string{"Great!", "Perfect!", "Awesome!"}, Classify("okay see you then"))
	assert.Equal(t, []string{"Great!", "Perfect!", "Awesome!"}, Classify("sounds good to me"))
}

func TestClassify_Fallback(t *testing.T) {
	got := Classify("the meeting moved to room 4")
	assert.Equal(t, []string{"Got it", "Okay", "Thanks"}, got)
}

func TestClassify_RuleOrder(t *testing.T) {
	// gratitude outranks the question mark
	got := Classify("thanks, can you make it?")
	assert.Equal(t, []string{"You're welcome!", "Happy to help!", "Anytime!"}, got)

	// question mark outranks the greeting
	got = Classify("hey, are you around?")
	assert.Equal(t, []string{"Yes", "No", "Let me check"}, got)
}

func TestClassify_GreetingNeedsWordBoundary(t *testing.T) {
	// "this" contains "hi" but is not a greeting
	got := Classify("this fell through")
	assert.Equal(t, []string{"Got it", "Okay", "Thanks"}, got)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	got := Classify("THANK YOU")
	assert.Equal(t, []string{"You're welcome!", "Happy to help!", "Anytime!"}, got)
}

func TestClassify_BoundedSize(t *testing.T) {
	for _, text := range []string{"thanks", "hello?", "hi", "sorry", "want to", "ok", "whatever"} {
		require.LessOrEqual(t, len(Classify(text)), MaxReplies, "text %q", text)
	}
}
