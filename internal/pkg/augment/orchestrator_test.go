package augment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService lets each test script the boundary without a network.
type stubService struct {
	statusFn    func(context.Context) (bool, error)
	rewriteFn   func(context.Context, string) (string, error)
	translateFn func(context.Context, string, string) (string, error)
	completeFn  func(context.Context, string) (string, error)
	summarizeFn func(context.Context, []SummaryMessage) (string, error)
}

func (s *stubService) Status(ctx context.Context) (bool, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx)
	}
	return true, nil
}

func (s *stubService) Rewrite(ctx context.Context, message string) (string, error) {
	if s.rewriteFn != nil {
		return s.rewriteFn(ctx, message)
	}
	return "", nil
}

func (s *stubService) Translate(ctx context.Context, message, targetLanguage string) (string, error) {
	if s.translateFn != nil {
		return s.translateFn(ctx, message, targetLanguage)
	}
	return "", nil
}

func (s *stubService) Complete(ctx context.Context, partialMessage string) (string, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, partialMessage)
	}
	return "", nil
}

func (s *stubService) Summarize(ctx context.Context, messages []SummaryMessage) (string, error) {
	if s.summarizeFn != nil {
		return s.summarizeFn(ctx, messages)
	}
	return "", nil
}

// timerControl captures debounce callbacks so tests fire them by hand.
type timerControl struct {
	mu  sync.Mutex
	fns []func()
}

func (tc *timerControl) start(d time.Duration, fn func()) *time.Timer {
	tc.mu.Lock()
	tc.fns = append(tc.fns, fn)
	tc.mu.Unlock()
	// a far-future real timer so Stop() has something to stop
	return time.AfterFunc(time.Hour, func() {})
}

func (tc *timerControl) armed() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.fns)
}

func (tc *timerControl) fire(i int) {
	tc.mu.Lock()
	fn := tc.fns[i]
	tc.mu.Unlock()
	fn()
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func assertNoEvent[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranslateToggle_AppliesResponse(t *testing.T) {
	svc := &stubService{
		translateFn: func(_ context.Context, msg, lang string) (string, error) {
			assert.Equal(t, "hello", msg)
			assert.Equal(t, "Spanish", lang)
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})

	o.SetTranslation(context.Background(), "m1", "hello", "Spanish", true)

	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	got := waitFor(t, states)
	require.Equal(t, TranslationReady, got.Status)
	assert.Equal(t, "hola", got.Text)
	assert.Equal(t, TranslationReady, o.Translation("m1").Status)
}

func TestTranslateToggle_OffDiscardsInflightResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			close(started)
			<-release
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})
	ctx := context.Background()

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	<-started

	// toggle off while the request is in flight
	o.SetTranslation(ctx, "m1", "hello", "Spanish", false)
	require.Equal(t, TranslationIdle, waitFor(t, states).Status)

	close(release)
	assertNoEvent(t, states)
	assert.Equal(t, TranslationIdle, o.Translation("m1").Status)
}

func TestTranslateToggle_SecondActivationIsNoop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			close(started)
			<-release
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})
	ctx := context.Background()

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	<-started
	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)

	close(release)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	require.Equal(t, TranslationReady, waitFor(t, states).Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestTranslateToggle_RetoggleIssuesFreshRequest(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})
	ctx := context.Background()

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	require.Equal(t, TranslationReady, waitFor(t, states).Status)

	o.SetTranslation(ctx, "m1", "hello", "Spanish", false)
	require.Equal(t, TranslationIdle, waitFor(t, states).Status)

	// no caching across toggle cycles
	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	require.Equal(t, TranslationReady, waitFor(t, states).Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestTranslateToggle_StaleUnavailableResponseIsSilent(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	releaseFirst := make(chan struct{})
	blockSecond := make(chan struct{})
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				<-releaseFirst
				return "", ErrUnavailable
			}
			<-blockSecond
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})
	ctx := context.Background()

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)

	o.SetTranslation(ctx, "m1", "hello", "Spanish", false)
	require.Equal(t, TranslationIdle, waitFor(t, states).Status)

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)

	// the superseded request resolving unavailable must not touch the key,
	// which is requesting again under a fresh token
	close(releaseFirst)
	assertNoEvent(t, states)
	assert.Equal(t, TranslationRequesting, o.Translation("m1").Status)

	close(blockSecond)
}

func TestCompletion_DebounceSingleRequest(t *testing.T) {
	var mu sync.Mutex
	var requested []string
	svc := &stubService{
		completeFn: func(_ context.Context, partial string) (string, error) {
			mu.Lock()
			requested = append(requested, partial)
			mu.Unlock()
			return "for the update", nil
		},
	}
	tc := &timerControl{}
	suggestions := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Completion: func(s string) { suggestions <- s },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	// a rapid burst of edits within the debounce window
	o.SetDraft(ctx, "thanks a")
	o.SetDraft(ctx, "thanks a lo")
	o.SetDraft(ctx, "thanks a lot")
	require.Equal(t, 3, tc.armed())

	// superseded windows never issue, even if their callback leaks through
	tc.fire(0)
	tc.fire(1)
	mu.Lock()
	assert.Empty(t, requested)
	mu.Unlock()

	// the live window issues exactly one request with the final text
	tc.fire(2)
	assert.Equal(t, "for the update", waitFor(t, suggestions))
	mu.Lock()
	assert.Equal(t, []string{"thanks a lot"}, requested)
	mu.Unlock()
	assert.Equal(t, "for the update", o.Suggestion())
}

func TestCompletion_StaleDraftDiscardsResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	svc := &stubService{
		completeFn: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "for the update", nil
		},
	}
	tc := &timerControl{}
	suggestions := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Completion: func(s string) { suggestions <- s },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SetDraft(ctx, "thanks a lot")
	go func() {
		tc.fire(0)
		close(done)
	}()
	<-started

	// the draft moves on while the request is in flight
	o.SetDraft(ctx, "thanks a lot, talk soon")

	close(release)
	<-done
	assertNoEvent(t, suggestions)
	assert.Empty(t, o.Suggestion())
}

func TestCompletion_EligibilityGate(t *testing.T) {
	tc := &timerControl{}
	o := NewOrchestrator(&stubService{}, Events{}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SetDraft(ctx, "hello")      // too short
	o.SetDraft(ctx, "helloworld") // one token
	o.SetDraft(ctx, "hi yo")      // short and ineligible
	assert.Zero(t, tc.armed())

	o.SetDraft(ctx, "hello there")
	assert.Equal(t, 1, tc.armed())
}

func TestCompletion_IneligibleDraftClearsImmediately(t *testing.T) {
	svc := &stubService{
		completeFn: func(context.Context, string) (string, error) {
			return "for the update", nil
		},
	}
	tc := &timerControl{}
	suggestions := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Completion: func(s string) { suggestions <- s },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SetDraft(ctx, "thanks a lot")
	tc.fire(0)
	require.Equal(t, "for the update", waitFor(t, suggestions))

	o.SetDraft(ctx, "ok")
	assert.Equal(t, "", waitFor(t, suggestions))
	assert.Empty(t, o.Suggestion())
}

func TestAcceptCompletion(t *testing.T) {
	svc := &stubService{
		completeFn: func(context.Context, string) (string, error) {
			return "for the update", nil
		},
	}
	tc := &timerControl{}
	suggestions := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Completion: func(s string) { suggestions <- s },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SetDraft(ctx, "thanks a lot")
	tc.fire(0)
	require.Equal(t, "for the update", waitFor(t, suggestions))

	draft := o.AcceptCompletion()
	assert.Equal(t, "thanks a lot for the update", draft)
	assert.Equal(t, draft, o.Draft())
	assert.Empty(t, o.Suggestion())
	assert.Equal(t, "", waitFor(t, suggestions))

	// accepting again with no pending suggestion is a no-op
	assert.Equal(t, draft, o.AcceptCompletion())
}

func TestRewrite_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &stubService{
		rewriteFn: func(_ context.Context, msg string) (string, error) {
			close(started)
			<-release
			return "Thanks a lot!", nil
		},
	}
	results := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Rewrite: func(text string, err error) {
			require.NoError(t, err)
			results <- text
		},
	})
	ctx := context.Background()

	o.SetDraft(ctx, "thx")
	require.True(t, o.Rewrite(ctx))
	<-started
	assert.True(t, o.RewriteBusy())
	assert.False(t, o.Rewrite(ctx), "second trigger while busy must be a no-op")

	close(release)
	assert.Equal(t, "Thanks a lot!", waitFor(t, results))
	assert.False(t, o.RewriteBusy())
	assert.Equal(t, "Thanks a lot!", o.Draft())
}

func TestRewrite_BlankDraftRejected(t *testing.T) {
	calls := 0
	svc := &stubService{
		rewriteFn: func(context.Context, string) (string, error) {
			calls++
			return "", nil
		},
	}
	o := NewOrchestrator(svc, Events{})
	ctx := context.Background()

	assert.False(t, o.Rewrite(ctx))
	o.SetDraft(ctx, "   ")
	assert.False(t, o.Rewrite(ctx))
	assert.Zero(t, calls)
}

func TestSummarize_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &stubService{
		summarizeFn: func(_ context.Context, msgs []SummaryMessage) (string, error) {
			close(started)
			<-release
			return "- plans", nil
		},
	}
	results := make(chan string, 8)
	o := NewOrchestrator(svc, Events{
		Summary: func(text string, err error) {
			require.NoError(t, err)
			results <- text
		},
	})
	ctx := context.Background()
	transcript := []SummaryMessage{{Sender: "alice", Text: "free friday?"}}

	assert.False(t, o.Summarize(ctx, nil), "empty transcript is rejected")

	require.True(t, o.Summarize(ctx, transcript))
	<-started
	assert.True(t, o.SummarizeBusy())
	assert.False(t, o.Summarize(ctx, transcript))

	close(release)
	assert.Equal(t, "- plans", waitFor(t, results))
	assert.False(t, o.SummarizeBusy())
}

func TestUnavailable_DegradesSilently(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return "", ErrUnavailable
		},
	}
	states := make(chan TranslationState, 8)
	availability := make(chan bool, 8)
	o := NewOrchestrator(svc, Events{
		Translation:  func(_ string, st TranslationState) { states <- st },
		Availability: func(ok bool) { availability <- ok },
	})
	ctx := context.Background()

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	assert.False(t, waitFor(t, availability))
	require.Equal(t, TranslationIdle, waitFor(t, states).Status)

	// features are disabled now: no further requests are issued
	o.SetTranslation(ctx, "m2", "hello", "Spanish", true)
	assertNoEvent(t, states)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.False(t, o.Available())
}

func TestReset_DiscardsEverything(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &stubService{
		translateFn: func(context.Context, string, string) (string, error) {
			close(started)
			<-release
			return "hola", nil
		},
	}
	states := make(chan TranslationState, 8)
	o := NewOrchestrator(svc, Events{
		Translation: func(_ string, st TranslationState) { states <- st },
	})
	ctx := context.Background()

	o.SuggestQuickReplies("thanks!")
	require.NotEmpty(t, o.QuickReplies())

	o.SetTranslation(ctx, "m1", "hello", "Spanish", true)
	require.Equal(t, TranslationRequesting, waitFor(t, states).Status)
	<-started

	o.Reset()
	close(release)

	assertNoEvent(t, states)
	assert.Equal(t, TranslationIdle, o.Translation("m1").Status)
	assert.Empty(t, o.QuickReplies())
	assert.Empty(t, o.Suggestion())
	assert.False(t, o.RewriteBusy())
	assert.False(t, o.SummarizeBusy())
}

func TestQuickReplies_ClearedByTyping(t *testing.T) {
	tc := &timerControl{}
	replies := make(chan []string, 8)
	o := NewOrchestrator(&stubService{}, Events{
		QuickReplies: func(r []string) { replies <- r },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SuggestQuickReplies("thank you!")
	assert.Equal(t, []string{"You're welcome!", "Happy to help!", "Anytime!"}, waitFor(t, replies))

	o.SetDraft(ctx, "y")
	assert.Nil(t, waitFor(t, replies))
	assert.Empty(t, o.QuickReplies())
}

func TestQuickReplies_AcceptPromotesToDraft(t *testing.T) {
	tc := &timerControl{}
	replies := make(chan []string, 8)
	o := NewOrchestrator(&stubService{}, Events{
		QuickReplies: func(r []string) { replies <- r },
	}, withTimerFunc(tc.start))
	ctx := context.Background()

	o.SuggestQuickReplies("thanks!")
	waitFor(t, replies)

	draft, ok := o.AcceptQuickReply(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "Happy to help!", draft)
	assert.Equal(t, draft, o.Draft())

	// promotion is user input: the set clears like any typing
	assert.Nil(t, waitFor(t, replies))
	assert.Empty(t, o.QuickReplies())

	_, ok = o.AcceptQuickReply(ctx, 0)
	assert.False(t, ok)
}

func TestQuickReplies_SuppressedWhileDrafting(t *testing.T) {
	replies := make(chan []string, 8)
	o := NewOrchestrator(&stubService{}, Events{
		QuickReplies: func(r []string) { replies <- r },
	})

	o.SetDraft(context.Background(), "half-typed message here")
	o.SuggestQuickReplies("thanks!")

	assertNoEvent(t, replies)
	assert.Empty(t, o.QuickReplies())
}
