package scanner_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"library-circulation/scanner"
)

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) scanner.Clock {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func collectKeys(t *testing.T, input string) []string {
	t.Helper()
	src := scanner.NewReaderSource(strings.NewReader(input), steppingClock(time.Millisecond))
	var keys []string
	src.Listen(func(ev scanner.KeyEvent) bool {
		keys = append(keys, ev.Key)
		return false
	})
	require.NoError(t, src.Run(context.Background()))
	return keys
}

func Test_ReaderSource_TranslatesBytes(t *testing.T) {
	defer goleak.VerifyNone(t)

	keys := collectKeys(t, "ab\r\x03\x7f\t\x1b[A\x1b[D\x01é\n")
	assert.Equal(t, []string{
		"a", "b", scanner.KeyEnter, scanner.KeyCtrlC, scanner.KeyBackspace, scanner.KeyTab,
		scanner.KeyArrowUp, scanner.KeyArrowLeft, scanner.KeyUnidentified, "é", scanner.KeyEnter,
	}, keys)
}

func Test_ReaderSource_LoneEscape(t *testing.T) {
	defer goleak.VerifyNone(t)

	keys := collectKeys(t, "\x1bx")
	assert.Equal(t, []string{scanner.KeyEscape, "x"}, keys)
}

func Test_ReaderSource_FeedsDecoder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var scans []string
	src := scanner.NewReaderSource(strings.NewReader("LIB-1-18\rhi\r"), steppingClock(5*time.Millisecond))
	dec := scanner.NewDecoder(func(code string) { scans = append(scans, code) })
	dec.Attach(src)
	defer dec.Close()

	var unhandled []string
	src.Unhandled = func(ev scanner.KeyEvent) { unhandled = append(unhandled, ev.Key) }

	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, []string{"LIB-1-18"}, scans)
	assert.Equal(t, []string{
		"L", "I", "B", "-", "1", "-", "1", "8",
		"h", "i",
	}, unhandled, "both enters were swallowed because each closed a burst")
}

type blockingReader struct {
	release chan struct{}
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func Test_ReaderSource_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &blockingReader{release: make(chan struct{})}
	src := scanner.NewReaderSource(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// Unblock the pending read so the reader goroutine can exit.
	close(r.release)
	time.Sleep(10 * time.Millisecond)
}
