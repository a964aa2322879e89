// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staslianx/balli-sub009/internal/cancellation"
	"github.com/staslianx/balli-sub009/internal/event"
)

// trace records callbacks in the order they fire.
type trace struct {
	mu       sync.Mutex
	calls    []string
	tokens   []string
	sources  [][]event.Source
	results  []Result
	errs     []error
	finished chan struct{}
	once     sync.Once
}

func newTrace() *trace {
	return &trace{finished: make(chan struct{})}
}

func (tr *trace) record(call string) {
	tr.mu.Lock()
	tr.calls = append(tr.calls, call)
	tr.mu.Unlock()
}

func (tr *trace) callbacks() Callbacks {
	return Callbacks{
		OnToken: func(text string) {
			tr.mu.Lock()
			tr.tokens = append(tr.tokens, text)
			tr.mu.Unlock()
			tr.record("token")
		},
		OnSourcesReady: func(sources []event.Source) {
			tr.mu.Lock()
			tr.sources = append(tr.sources, sources)
			tr.mu.Unlock()
			tr.record("sources")
		},
		OnStageProgress: func(event.StageProgress) { tr.record("stage") },
		OnFlush:         func() { tr.record("flush") },
		OnComplete: func(res Result) {
			tr.mu.Lock()
			tr.results = append(tr.results, res)
			tr.mu.Unlock()
			tr.record("complete")
			tr.once.Do(func() { close(tr.finished) })
		},
		OnError: func(err error) {
			tr.mu.Lock()
			tr.errs = append(tr.errs, err)
			tr.mu.Unlock()
			tr.record("error")
			tr.once.Do(func() { close(tr.finished) })
		},
	}
}

func (tr *trace) wait(t *testing.T) {
	t.Helper()
	select {
	case <-tr.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("answer never finished")
	}
}

func (tr *trace) snapshot() ([]string, []Result, []error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...), append([]Result(nil), tr.results...), append([]error(nil), tr.errs...)
}

func waitDone(t *testing.T, acc *Accumulator) {
	t.Helper()
	select {
	case <-acc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accumulator did not exit")
	}
}

// =============================================================================
// ORDERING AND DEFERRED COMPLETION
// =============================================================================

func TestExampleScenario(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	src := event.Source{Title: "Doc", URL: "https://example.com/doc"}
	acc.Deliver(event.Token{Content: "The"})
	acc.Deliver(event.Token{Content: " "})
	acc.Deliver(event.Complete{Sources: []event.Source{src}, Metadata: event.Metadata{"model": "m"}})
	acc.Deliver(event.Token{Content: "answer."})
	acc.CloseTransport()

	tr.wait(t)
	waitDone(t, acc)

	calls, results, errs := tr.snapshot()
	assert.Empty(t, errs)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"token", "token", "token", "complete"}, calls)

	res := results[0]
	assert.Equal(t, "a1", res.AnswerID)
	assert.Equal(t, "The answer.", res.Text)
	assert.Equal(t, []event.Source{src}, res.Sources)
	assert.Equal(t, "m", res.Metadata["model"])
	assert.False(t, res.Synthesized)
	assert.Equal(t, StateFinalized, acc.Snapshot().State)
}

func TestCompleteWaitsForTransport(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	acc.Deliver(event.Token{Content: "hi"})
	acc.Deliver(event.Complete{})

	snap := acc.Snapshot()
	assert.Equal(t, StateAwaitingTrailing, snap.State)
	calls, _, _ := tr.snapshot()
	assert.NotContains(t, calls, "complete")

	acc.CloseTransport()
	tr.wait(t)
}

func TestLateSourcesMerged(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	a := event.Source{Title: "A", URL: "https://a"}
	b := event.Source{Title: "B", URL: "https://b"}

	acc.Deliver(event.Token{Content: "x"})
	acc.Deliver(event.Complete{Sources: []event.Source{a}})
	acc.Deliver(event.SourcesReady{Sources: []event.Source{b, a}})
	acc.Deliver(event.Complete{Sources: []event.Source{{Title: "C", URL: "https://c"}}, Summary: "ignored"})
	acc.CloseTransport()
	tr.wait(t)

	_, results, _ := tr.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, urls(results[0].Sources))
	assert.Empty(t, results[0].Summary, "second complete only contributes sources")
}

func TestInputAfterFinalizeIgnored(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	acc.Deliver(event.Token{Content: "x"})
	acc.Deliver(event.Complete{})
	acc.CloseTransport()
	waitDone(t, acc)

	assert.False(t, acc.Deliver(event.Token{Content: "late"}))
	assert.False(t, acc.CloseTransport())

	calls, results, _ := tr.snapshot()
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"token", "complete"}, calls)
	assert.Equal(t, "x", acc.Snapshot().Text)
}

func TestStageAndFlushForwarded(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	acc.Deliver(event.StageProgress{Stage: "searching", Sequence: 1})
	acc.Deliver(event.Comment{Text: event.CommentKeepalive})
	acc.Deliver(event.Token{Content: "x"})
	acc.Deliver(event.Comment{Text: event.CommentFlushTokens})
	acc.Deliver(event.Complete{})
	acc.CloseTransport()
	tr.wait(t)

	calls, _, _ := tr.snapshot()
	assert.Equal(t, []string{"stage", "token", "flush", "complete"}, calls)
}

// =============================================================================
// SYNTHESIS AND FAILURE
// =============================================================================

func TestIdleTimeoutSynthesizesOnce(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks(), WithIdleTimeout(30*time.Millisecond))

	acc.Deliver(event.Token{Content: "partial"})
	tr.wait(t)
	waitDone(t, acc)
	time.Sleep(40 * time.Millisecond)

	_, results, errs := tr.snapshot()
	assert.Empty(t, errs)
	require.Len(t, results, 1)
	assert.Equal(t, "partial", results[0].Text)
	assert.True(t, results[0].Synthesized)
	assert.Equal(t, ReasonIdleTimeout, results[0].Metadata["reason"])
	assert.Equal(t, true, results[0].Metadata["synthesized"])
}

func TestIdleTimeoutReleasesPendingCompletion(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks(), WithIdleTimeout(30*time.Millisecond))

	acc.Deliver(event.Token{Content: "done"})
	acc.Deliver(event.Complete{Summary: "s"})
	tr.wait(t)

	_, results, _ := tr.snapshot()
	require.Len(t, results, 1)
	assert.False(t, results[0].Synthesized)
	assert.Equal(t, "s", results[0].Summary)
}

func TestKeepaliveRefreshesIdleTimer(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks(), WithIdleTimeout(120*time.Millisecond))

	acc.Deliver(event.Token{Content: "x"})
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		acc.Deliver(event.Comment{Text: event.CommentKeepalive})
	}
	assert.Equal(t, StateStreaming, acc.Snapshot().State)

	acc.CloseTransport()
	tr.wait(t)
	_, results, _ := tr.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonTransportClosed, results[0].Metadata["reason"])
}

func TestEmptyStreamFails(t *testing.T) {
	tests := []struct {
		name string
		end  func(*Accumulator)
		opts []Option
		want error
	}{
		{"closed", func(a *Accumulator) { a.CloseTransport() }, nil, ErrEmptyStream},
		{"idle", func(*Accumulator) {}, []Option{WithIdleTimeout(20 * time.Millisecond)}, ErrIdleTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTrace()
			acc := NewAccumulator(context.Background(), "a1", tr.callbacks(), tt.opts...)
			acc.Deliver(event.StageProgress{Stage: "thinking"})
			tt.end(acc)
			tr.wait(t)

			_, results, errs := tr.snapshot()
			assert.Empty(t, results)
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], tt.want)
			assert.Equal(t, StateFailed, acc.Snapshot().State)
		})
	}
}

func TestErrorEventFailsWithPartial(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	acc.Deliver(event.Token{Content: "so far"})
	acc.Deliver(event.Error{Message: "too big", Code: event.CodeResponseTruncated})
	tr.wait(t)

	_, results, errs := tr.snapshot()
	assert.Empty(t, results)
	require.Len(t, errs, 1)

	var serr *Error
	require.True(t, errors.As(errs[0], &serr))
	assert.Equal(t, "so far", serr.Partial)
	assert.True(t, serr.Truncated())
}

func TestErrorEventAfterCompleteFinalizes(t *testing.T) {
	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks())

	acc.Deliver(event.Token{Content: "x"})
	acc.Deliver(event.Complete{})
	acc.Deliver(event.Error{Message: "late", Code: event.CodeResponseTruncated})
	tr.wait(t)

	_, results, errs := tr.snapshot()
	assert.Empty(t, errs)
	require.Len(t, results, 1)
	assert.False(t, results[0].Synthesized)
}

func TestTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("with text", func(t *testing.T) {
		tr := newTrace()
		acc := NewAccumulator(context.Background(), "a1", tr.callbacks())
		acc.Deliver(event.Token{Content: "half"})
		acc.FailTransport(boom)
		tr.wait(t)

		_, results, _ := tr.snapshot()
		require.Len(t, results, 1)
		assert.Equal(t, ReasonTransportError, results[0].Metadata["reason"])
	})

	t.Run("without text", func(t *testing.T) {
		tr := newTrace()
		acc := NewAccumulator(context.Background(), "a1", tr.callbacks())
		acc.FailTransport(boom)
		tr.wait(t)

		_, _, errs := tr.snapshot()
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], boom)
	})
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancelledAnswerIsSilent(t *testing.T) {
	reg := cancellation.NewRegistry()
	tok := reg.Register(context.Background(), "a1")

	tr := newTrace()
	acc := NewAccumulator(context.Background(), "a1", tr.callbacks(), WithToken(tok))

	acc.Deliver(event.Token{Content: "x"})
	require.Eventually(t, func() bool { return acc.Snapshot().Tokens == 1 }, time.Second, time.Millisecond)

	reg.Cancel("a1")
	waitDone(t, acc)

	assert.False(t, acc.Deliver(event.Token{Content: "y"}))
	assert.False(t, acc.CloseTransport())

	calls, results, errs := tr.snapshot()
	assert.Equal(t, []string{"token"}, calls)
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func TestContextCancelStopsAccumulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := newTrace()
	acc := NewAccumulator(ctx, "a1", tr.callbacks())

	cancel()
	waitDone(t, acc)

	calls, _, _ := tr.snapshot()
	assert.Empty(t, calls)
}

func urls(sources []event.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.URL
	}
	return out
}
