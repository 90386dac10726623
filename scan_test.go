package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"library-circulation/circulation"
	"library-circulation/library"
	"library-circulation/scanner"
)

// steppingClock advances by step on every call, like keys arriving at a
// fixed rate.
func steppingClock(step time.Duration) scanner.Clock {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

// newDesk opens a seeded database. Callers close it before leak checks run.
func newDesk(t *testing.T) (*library.LibraryManager, *library.Book, int64) {
	t.Helper()
	ctx := context.Background()
	mgr, err := library.NewLibraryManager(library.DriverSQLite, filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)

	book, err := mgr.AddBook(ctx, library.NewBook{Title: "Dune", Author: "Herbert", ShelfLocation: "F-12"})
	require.NoError(t, err)
	memberID, err := mgr.AddMember(ctx, "Alice", "secret")
	require.NoError(t, err)
	return mgr, book, memberID
}

func TestScanLoopCheckoutThenReturn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	mgr, book, memberID := newDesk(t)
	defer mgr.Close()

	var out bytes.Buffer
	s := &scanSession{
		svc:      circulation.NewService(mgr.Database(), circulation.WithLogger(zaptest.NewLogger(t))),
		out:      &out,
		intent:   circulation.IntentCheckout,
		memberID: memberID,
		actor:    "desk",
	}
	input := book.Barcode + "\r" + "\t" + book.Barcode + "\r" + "\x03"

	err := runScanLoop(context.Background(), strings.NewReader(input), s, steppingClock(10*time.Millisecond))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "'Dune' checked out to member")
	assert.Contains(t, text, "mode=return")
	assert.Contains(t, text, "'Dune' returned")
	assert.Equal(t, circulation.IntentReturn, s.intent)

	got, err := mgr.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)

	history, err := mgr.ScanHistory(context.Background(), book.ID, 10)
	require.NoError(t, err)
	kinds := make([]library.ScanKind, 0, len(history))
	for _, h := range history {
		kinds = append(kinds, h.Kind)
		assert.Equal(t, "desk", h.Actor)
	}
	assert.ElementsMatch(t, []library.ScanKind{library.ScanCheckout, library.ScanReturn}, kinds)
}

func TestScanLoopIgnoresTyping(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	mgr, book, _ := newDesk(t)
	defer mgr.Close()

	var out bytes.Buffer
	s := &scanSession{
		svc: circulation.NewService(mgr.Database()),
		out: &out,
	}

	// Keys a person types are too far apart to form a burst.
	err := runScanLoop(context.Background(), strings.NewReader(book.Barcode+"\r"), s, steppingClock(400*time.Millisecond))
	require.NoError(t, err)

	assert.NotContains(t, out.String(), "Dune")
	history, err := mgr.ScanHistory(context.Background(), book.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScanLoopPause(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	mgr, book, _ := newDesk(t)
	defer mgr.Close()

	var out bytes.Buffer
	s := &scanSession{
		svc: circulation.NewService(mgr.Database()),
		out: &out,
	}

	// Esc pauses, the burst is ignored, Esc resumes and the next burst counts.
	input := "\x1b" + book.Barcode + "\r" + "\x1b" + book.Barcode + "\r"
	err := runScanLoop(context.Background(), strings.NewReader(input), s, steppingClock(5*time.Millisecond))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[paused]")
	assert.Equal(t, 1, strings.Count(text, "'Dune' by Herbert [available] shelf F-12"))
	assert.Equal(t, circulation.IntentInventory, s.intent)
}

func TestScanLoopReportsWorkflowErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	mgr, book, _ := newDesk(t)
	defer mgr.Close()

	var out bytes.Buffer
	s := &scanSession{
		svc:    circulation.NewService(mgr.Database()),
		out:    &out,
		intent: circulation.IntentCheckout,
	}

	input := book.Barcode + "\r" + "LIB-999999-00\r"
	err := runScanLoop(context.Background(), strings.NewReader(input), s, steppingClock(5*time.Millisecond))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Select a member before checking out")
	assert.Contains(t, text, "✗ LIB-999999-00")
}
