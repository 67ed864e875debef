package augment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"chatsync/internal/pkg/quickreply"
)

// DefaultDebounce is the quiet period after the last draft edit before a
// completion request is issued.
const DefaultDebounce = 800 * time.Millisecond

// Completion eligibility gate: the draft must be longer than this and carry
// at least two whitespace-delimited tokens.
const minDraftLength = 5

// TranslationStatus is the lifecycle state of one message's translation.
type TranslationStatus int

const (
	TranslationIdle TranslationStatus = iota
	TranslationRequesting
	TranslationReady
	TranslationError
)

// TranslationState is the observable state for one (message, translate) key.
type TranslationState struct {
	Status TranslationStatus
	Text   string
	Err    error
}

// Service is the augmentation boundary the orchestrator drives.
// *Gateway satisfies it.
type Service interface {
	Status(ctx context.Context) (bool, error)
	Rewrite(ctx context.Context, message string) (string, error)
	Translate(ctx context.Context, message, targetLanguage string) (string, error)
	Complete(ctx context.Context, partialMessage string) (string, error)
	Summarize(ctx context.Context, messages []SummaryMessage) (string, error)
}

// Events groups the callbacks the orchestrator fires as per-key state
// settles. Nil callbacks are skipped. Callbacks run outside the
// orchestrator's lock and may call back into it.
type Events struct {
	// Translation fires whenever a message's translation state changes.
	Translation func(messageID string, state TranslationState)
	// Completion fires with the current draft suggestion; empty means cleared.
	Completion func(suggestion string)
	// QuickReplies fires with the current candidate reply set; nil means cleared.
	QuickReplies func(replies []string)
	// Availability fires when the augmentation service flips between
	// available and disabled.
	Availability func(available bool)
	// Rewrite delivers the outcome of a rewrite action.
	Rewrite func(text string, err error)
	// Summary delivers the outcome of a summarize action.
	Summary func(text string, err error)
}

type translation struct {
	token  uint64
	status TranslationStatus
	text   string
	err    error
}

// Orchestrator coordinates the concurrent, cancelable augmentation requests
// for one conversation context: per-message translation toggles, the debounced
// draft completion, and the busy-gated rewrite/summarize actions.
//
// Every request family is keyed, and each key carries a monotonically
// increasing token. A response is applied only if its token is still the
// key's current one; superseding or cancelling a request bumps the token, so
// stale results are discarded no matter when they arrive. Across keys there
// is no ordering guarantee.
type Orchestrator struct {
	mu  sync.Mutex
	svc Service
	ev  Events

	debounce time.Duration
	// startTimer is replaced in tests to fire debounce deterministically.
	startTimer func(d time.Duration, fn func()) *time.Timer

	seq       uint64
	available bool

	translations map[string]*translation

	draft      string
	draftToken uint64
	draftTimer *time.Timer
	suggestion string

	rewriteToken uint64
	rewriteBusy  bool

	summaryToken  uint64
	summarizeBusy bool

	replies []string
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithDebounce overrides the completion debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

func withTimerFunc(fn func(d time.Duration, f func()) *time.Timer) Option {
	return func(o *Orchestrator) { o.startTimer = fn }
}

// NewOrchestrator constructs an Orchestrator over the given service boundary.
// The service is assumed available until a status check or a failing call
// says otherwise.
func NewOrchestrator(svc Service, ev Events, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:          svc,
		ev:           ev,
		debounce:     DefaultDebounce,
		startTimer:   time.AfterFunc,
		available:    true,
		translations: make(map[string]*translation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// next returns a fresh token. Tokens are unique across all keys and context
// generations, so a stale response can never collide with a current token.
func (o *Orchestrator) next() uint64 {
	o.seq++
	return o.seq
}

// Available reports whether augmentation features are currently enabled.
func (o *Orchestrator) Available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.available
}

// RefreshAvailability queries the service status and updates the disabled
// state. Called once at startup and whenever the user re-enables features.
func (o *Orchestrator) RefreshAvailability(ctx context.Context) {
	ok, err := o.svc.Status(ctx)
	if err != nil {
		ok = false
	}
	o.setAvailable(ok)
}

func (o *Orchestrator) setAvailable(ok bool) {
	o.mu.Lock()
	changed := o.available != ok
	o.available = ok
	notify := o.ev.Availability
	o.mu.Unlock()

	if changed && notify != nil {
		notify(ok)
	}
}

// markUnavailable degrades the feature surface after an ErrUnavailable
// response. Returns true if err was the unavailable sentinel.
func (o *Orchestrator) markUnavailable(err error) bool {
	if !errors.Is(err, ErrUnavailable) {
		return false
	}
	o.setAvailable(false)
	return true
}

// ----- Translate toggle (per message id) -----

// SetTranslation toggles the inline translation for one message. Activating
// an idle key issues a request tagged with a fresh token; activating a key
// that is already requesting or ready is a no-op. Toggling off bumps the
// token, silently discarding any in-flight response, and resets to Idle.
func (o *Orchestrator) SetTranslation(ctx context.Context, messageID, text, targetLanguage string, on bool) {
	o.mu.Lock()

	if !on {
		if _, ok := o.translations[messageID]; !ok {
			o.mu.Unlock()
			return
		}
		delete(o.translations, messageID)
		notify := o.ev.Translation
		o.mu.Unlock()
		if notify != nil {
			notify(messageID, TranslationState{Status: TranslationIdle})
		}
		return
	}

	if !o.available {
		o.mu.Unlock()
		return
	}
	if st, ok := o.translations[messageID]; ok && st.status != TranslationError {
		// already requesting or ready
		o.mu.Unlock()
		return
	}

	tok := o.next()
	o.translations[messageID] = &translation{token: tok, status: TranslationRequesting}
	notify := o.ev.Translation
	o.mu.Unlock()

	if notify != nil {
		notify(messageID, TranslationState{Status: TranslationRequesting})
	}

	go func() {
		translated, err := o.svc.Translate(ctx, text, targetLanguage)
		o.applyTranslation(messageID, tok, translated, err)
	}()
}

func (o *Orchestrator) applyTranslation(messageID string, tok uint64, translated string, err error) {
	if err != nil && o.markUnavailable(err) {
		// degrade silently: the key returns to Idle, no error surface.
		// A stale token means the key has moved on; its event surface is
		// not ours to touch.
		o.mu.Lock()
		st, ok := o.translations[messageID]
		if !ok || st.token != tok {
			o.mu.Unlock()
			return
		}
		delete(o.translations, messageID)
		notify := o.ev.Translation
		o.mu.Unlock()
		if notify != nil {
			notify(messageID, TranslationState{Status: TranslationIdle})
		}
		return
	}

	o.mu.Lock()
	st, ok := o.translations[messageID]
	if !ok || st.token != tok || st.status != TranslationRequesting {
		// superseded or toggled off while in flight
		o.mu.Unlock()
		return
	}
	var state TranslationState
	if err != nil {
		st.status = TranslationError
		st.err = err
		state = TranslationState{Status: TranslationError, Err: err}
	} else {
		st.status = TranslationReady
		st.text = translated
		state = TranslationState{Status: TranslationReady, Text: translated}
	}
	notify := o.ev.Translation
	o.mu.Unlock()

	if notify != nil {
		notify(messageID, state)
	}
}

// Translation returns the current state for one message's translation key.
func (o *Orchestrator) Translation(messageID string) TranslationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.translations[messageID]
	if !ok {
		return TranslationState{Status: TranslationIdle}
	}
	return TranslationState{Status: st.status, Text: st.text, Err: st.err}
}

// ----- Smart-compose completion (singleton draft key) -----

func draftEligible(text string) bool {
	return len(text) > minDraftLength && len(strings.Fields(text)) >= 2
}

// SetDraft records a draft edit. Any typing clears the quick-reply set. Each
// qualifying edit supersedes the previous completion request and re-arms the
// single debounce timer; an ineligible draft clears timer, request interest
// and suggestion immediately.
func (o *Orchestrator) SetDraft(ctx context.Context, text string) {
	o.mu.Lock()
	o.draft = text

	var notifyReplies func([]string)
	if text != "" && o.replies != nil {
		o.replies = nil
		notifyReplies = o.ev.QuickReplies
	}

	// supersede any pending timer or in-flight request
	o.draftToken = o.next()
	o.stopDraftTimerLocked()

	var notifyCompletion func(string)
	if !draftEligible(text) || !o.available {
		if o.suggestion != "" {
			o.suggestion = ""
			notifyCompletion = o.ev.Completion
		}
		o.mu.Unlock()
		if notifyReplies != nil {
			notifyReplies(nil)
		}
		if notifyCompletion != nil {
			notifyCompletion("")
		}
		return
	}

	tok := o.draftToken
	o.draftTimer = o.startTimer(o.debounce, func() {
		o.fireCompletion(ctx, tok, text)
	})
	o.mu.Unlock()

	if notifyReplies != nil {
		notifyReplies(nil)
	}
}

func (o *Orchestrator) stopDraftTimerLocked() {
	if o.draftTimer != nil {
		o.draftTimer.Stop()
		o.draftTimer = nil
	}
}

// fireCompletion runs when the debounce window elapses. The request carries
// the draft text captured at fire-time; the response is applied only if the
// token is still current and the live draft has not moved on.
func (o *Orchestrator) fireCompletion(ctx context.Context, tok uint64, text string) {
	o.mu.Lock()
	if tok != o.draftToken {
		o.mu.Unlock()
		return
	}
	o.draftTimer = nil
	o.mu.Unlock()

	completion, err := o.svc.Complete(ctx, strings.TrimSpace(text))
	if err != nil {
		o.markUnavailable(err)
		// completion failures are silent: the ghost text just never shows
		return
	}

	o.mu.Lock()
	if tok != o.draftToken || o.draft != text {
		o.mu.Unlock()
		return
	}
	o.suggestion = completion
	notify := o.ev.Completion
	o.mu.Unlock()

	if notify != nil {
		notify(completion)
	}
}

// Suggestion returns the current completion suggestion, if any.
func (o *Orchestrator) Suggestion() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suggestion
}

// Draft returns the live draft text.
func (o *Orchestrator) Draft() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}

// AcceptCompletion appends the pending suggestion to the draft, separated by
// a single space, and clears it. Returns the resulting draft. Accepting is
// always an explicit action; it also invalidates any in-flight completion.
func (o *Orchestrator) AcceptCompletion() string {
	o.mu.Lock()
	if o.suggestion == "" {
		draft := o.draft
		o.mu.Unlock()
		return draft
	}
	o.draft = o.draft + " " + o.suggestion
	o.suggestion = ""
	o.draftToken = o.next()
	o.stopDraftTimerLocked()
	draft := o.draft
	notify := o.ev.Completion
	o.mu.Unlock()

	if notify != nil {
		notify("")
	}
	return draft
}

// ----- Rewrite / Summarize (explicit single-flight actions) -----

// Rewrite rewrites the current draft. Returns false without issuing when a
// rewrite is already in flight, the feature is disabled, or the draft is
// blank. On success the draft is replaced with the rewritten text.
func (o *Orchestrator) Rewrite(ctx context.Context) bool {
	o.mu.Lock()
	if o.rewriteBusy || !o.available {
		o.mu.Unlock()
		return false
	}
	text := strings.TrimSpace(o.draft)
	if text == "" {
		o.mu.Unlock()
		return false
	}
	o.rewriteBusy = true
	tok := o.next()
	o.rewriteToken = tok
	o.mu.Unlock()

	go func() {
		rewritten, err := o.svc.Rewrite(ctx, text)
		o.applyRewrite(tok, rewritten, err)
	}()
	return true
}

func (o *Orchestrator) applyRewrite(tok uint64, rewritten string, err error) {
	unavailable := err != nil && o.markUnavailable(err)

	o.mu.Lock()
	if tok != o.rewriteToken {
		o.mu.Unlock()
		return
	}
	o.rewriteBusy = false
	notify := o.ev.Rewrite
	if err == nil {
		// the rewritten text becomes the live draft; pending completion
		// interest is superseded
		o.draft = rewritten
		o.suggestion = ""
		o.draftToken = o.next()
		o.stopDraftTimerLocked()
	}
	o.mu.Unlock()

	if unavailable || notify == nil {
		return
	}
	notify(rewritten, err)
}

// RewriteBusy reports whether a rewrite is in flight.
func (o *Orchestrator) RewriteBusy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rewriteBusy
}

// Summarize condenses the given transcript. Returns false without issuing
// when a summary is already in flight, the feature is disabled, or the
// transcript is empty.
func (o *Orchestrator) Summarize(ctx context.Context, messages []SummaryMessage) bool {
	o.mu.Lock()
	if o.summarizeBusy || !o.available || len(messages) == 0 {
		o.mu.Unlock()
		return false
	}
	o.summarizeBusy = true
	tok := o.next()
	o.summaryToken = tok
	o.mu.Unlock()

	go func() {
		summary, err := o.svc.Summarize(ctx, messages)
		o.applySummary(tok, summary, err)
	}()
	return true
}

func (o *Orchestrator) applySummary(tok uint64, summary string, err error) {
	unavailable := err != nil && o.markUnavailable(err)

	o.mu.Lock()
	if tok != o.summaryToken {
		o.mu.Unlock()
		return
	}
	o.summarizeBusy = false
	notify := o.ev.Summary
	o.mu.Unlock()

	if unavailable || notify == nil {
		return
	}
	notify(summary, err)
}

// SummarizeBusy reports whether a summary is in flight.
func (o *Orchestrator) SummarizeBusy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summarizeBusy
}

// ----- Quick replies -----

// SuggestQuickReplies derives the candidate reply set from the latest inbound
// message text. Suppressed while the user has a draft in progress; the set is
// cleared only by typing, never by time.
func (o *Orchestrator) SuggestQuickReplies(text string) {
	o.mu.Lock()
	if o.draft != "" {
		o.mu.Unlock()
		return
	}
	replies := quickreply.Classify(text)
	o.replies = replies
	notify := o.ev.QuickReplies
	o.mu.Unlock()

	if notify != nil {
		notify(replies)
	}
}

// AcceptQuickReply promotes one suggested reply to the live draft. The
// promoted text is user input like any typing, so the set is cleared and the
// draft pipeline takes over.
func (o *Orchestrator) AcceptQuickReply(ctx context.Context, index int) (string, bool) {
	o.mu.Lock()
	if index < 0 || index >= len(o.replies) {
		o.mu.Unlock()
		return "", false
	}
	reply := o.replies[index]
	o.mu.Unlock()

	o.SetDraft(ctx, reply)
	return reply, true
}

// QuickReplies returns the current candidate reply set.
func (o *Orchestrator) QuickReplies() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.replies...)
}

// ----- Context lifecycle -----

// Reset invalidates every key's token and clears all per-conversation state.
// Called when the active conversation changes: in-flight work tied to the
// previous context can still resolve, but its results are discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.translations = make(map[string]*translation)
	o.draftToken = o.next()
	o.stopDraftTimerLocked()
	o.suggestion = ""
	o.rewriteToken = o.next()
	o.rewriteBusy = false
	o.summaryToken = o.next()
	o.summarizeBusy = false
	o.replies = nil
	notifyCompletion := o.ev.Completion
	notifyReplies := o.ev.QuickReplies
	o.mu.Unlock()

	if notifyCompletion != nil {
		notifyCompletion("")
	}
	if notifyReplies != nil {
		notifyReplies(nil)
	}
}
