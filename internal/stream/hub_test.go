// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staslianx/balli-sub009/internal/cancellation"
	"github.com/staslianx/balli-sub009/internal/event"
)

func TestHubRoutesByAnswer(t *testing.T) {
	hub := NewHub(0)
	reg := cancellation.NewRegistry()

	trA, trB := newTrace(), newTrace()
	hub.Open(context.Background(), "a", reg.Register(context.Background(), "a"), trA.callbacks())
	hub.Open(context.Background(), "b", reg.Register(context.Background(), "b"), trB.callbacks())
	assert.NotNil(t, hub.Lookup("a"))
	assert.NotNil(t, hub.Lookup("b"))

	hub.Dispatch("a", event.Token{Content: "alpha"})
	hub.Dispatch("b", event.Token{Content: "beta"})
	hub.Close("a")
	hub.Close("b")

	trA.wait(t)
	trB.wait(t)

	_, resA, _ := trA.snapshot()
	_, resB, _ := trB.snapshot()
	require.Len(t, resA, 1)
	require.Len(t, resB, 1)
	assert.Equal(t, "alpha", resA[0].Text)
	assert.Equal(t, "beta", resB[0].Text)

	require.Eventually(t, func() bool { return hub.Lookup("a") == nil && hub.Lookup("b") == nil }, time.Second, time.Millisecond,
		"finished accumulators remove themselves")
	assert.False(t, hub.Dispatch("a", event.Token{Content: "late"}))
}

func TestHubCancellationIsolation(t *testing.T) {
	hub := NewHub(0)
	reg := cancellation.NewRegistry()

	trA, trB := newTrace(), newTrace()
	accA := hub.Open(context.Background(), "a", reg.Register(context.Background(), "a"), trA.callbacks())
	hub.Open(context.Background(), "b", reg.Register(context.Background(), "b"), trB.callbacks())

	hub.Dispatch("a", event.Token{Content: "1"})
	hub.Dispatch("b", event.Token{Content: "1"})

	reg.Cancel("a")
	waitDone(t, accA)

	hub.Dispatch("a", event.Token{Content: "2"})
	hub.Dispatch("b", event.Token{Content: "2"})
	hub.Dispatch("b", event.Complete{})
	hub.Close("b")
	trB.wait(t)

	_, resA, errA := trA.snapshot()
	assert.Empty(t, resA)
	assert.Empty(t, errA)

	_, resB, _ := trB.snapshot()
	require.Len(t, resB, 1)
	assert.Equal(t, "12", resB[0].Text)
	assert.False(t, reg.IsCancelled("b"))
}

func TestHubReopenReplaces(t *testing.T) {
	hub := NewHub(0)

	first := newTrace()
	old := hub.Open(context.Background(), "a", nil, first.callbacks())
	second := newTrace()
	hub.Open(context.Background(), "a", nil, second.callbacks())

	hub.Dispatch("a", event.Token{Content: "new"})
	hub.Close("a")
	second.wait(t)

	_, res, _ := second.snapshot()
	require.Len(t, res, 1)
	assert.Equal(t, "new", res[0].Text)
	assert.Equal(t, StateStreaming, old.Snapshot().State, "detached accumulator is untouched")

	old.CloseTransport()
	first.wait(t)
}

func TestHubFailAndRemove(t *testing.T) {
	hub := NewHub(0)

	tr := newTrace()
	hub.Open(context.Background(), "a", nil, tr.callbacks())
	assert.True(t, hub.Fail("a", assert.AnError))
	tr.wait(t)

	_, _, errs := tr.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], assert.AnError)

	hub.Open(context.Background(), "b", nil, Callbacks{})
	hub.Remove("b")
	assert.Nil(t, hub.Lookup("b"))
	assert.False(t, hub.Close("b"))
	assert.False(t, hub.Fail("missing", assert.AnError))
}
