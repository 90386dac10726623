package scanner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// Handler receives key events. Returning true asks the source to suppress the
// event's default action.
type Handler func(KeyEvent) bool

// Source is a page-wide stream of key events. Handlers are invoked one event
// at a time, in arrival order.
type Source interface {
	Listen(h Handler) (stop func())
}

// Clock returns the current time.
type Clock func() time.Time

// Broadcaster fans events out to registered handlers. It is the building block
// of every Source in this package and is usable on its own in tests.
type Broadcaster struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// Listen registers h until the returned stop function is called.
func (b *Broadcaster) Listen(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Listeners returns the number of registered handlers.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// Dispatch delivers ev to every handler and reports whether any of them asked
// for suppression. Handlers run without the broadcaster lock held, so they may
// stop themselves.
func (b *Broadcaster) Dispatch(ev KeyEvent) bool {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		hs = append(hs, b.handlers[id])
	}
	b.mu.Unlock()

	suppressed := false
	for _, h := range hs {
		if h(ev) {
			suppressed = true
		}
	}
	return suppressed
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// ReaderSource turns a byte stream, typically a terminal in raw mode, into key
// events stamped with an injected clock.
type ReaderSource struct {
	Broadcaster

	r     *bufio.Reader
	clock Clock

	// Unhandled, when set, receives events no handler suppressed. The console
	// uses it to echo ordinary typing.
	Unhandled func(KeyEvent)
}

// NewReaderSource wraps r. A nil clock means time.Now.
func NewReaderSource(r io.Reader, clock Clock) *ReaderSource {
	if clock == nil {
		clock = time.Now
	}
	return &ReaderSource{r: bufio.NewReader(r), clock: clock}
}

// Run pumps events until the reader is exhausted or ctx is cancelled. Reading
// happens on a separate goroutine that exits at the next read error; a
// blocked terminal read therefore outlives cancellation until the next key.
func (s *ReaderSource) Run(ctx context.Context) error {
	events := make(chan KeyEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		for {
			key, err := s.readKey()
			if err != nil {
				errc <- err
				return
			}
			select {
			case events <- KeyEvent{Key: key, At: s.clock()}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				err := <-errc
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if !s.Dispatch(ev) && s.Unhandled != nil {
				s.Unhandled(ev)
			}
		}
	}
}

func (s *ReaderSource) readKey() (string, error) {
	r, _, err := s.r.ReadRune()
	if err != nil {
		return "", err
	}

	switch r {
	case '\r', '\n':
		return KeyEnter, nil
	case '\t':
		return KeyTab, nil
	case 0x03:
		return KeyCtrlC, nil
	case 0x7f, 0x08:
		return KeyBackspace, nil
	case 0x1b:
		return s.readEscape()
	}
	if r < 0x20 {
		return KeyUnidentified, nil
	}
	return string(r), nil
}

// readEscape decodes the CSI arrow sequences terminals send. A lone ESC is
// reported as Escape when nothing is buffered behind it.
func (s *ReaderSource) readEscape() (string, error) {
	if s.r.Buffered() == 0 {
		return KeyEscape, nil
	}
	next, err := s.r.Peek(1)
	if err != nil || next[0] != '[' {
		return KeyEscape, nil
	}
	_, _ = s.r.ReadByte()

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return KeyUnidentified, nil
		}
		if b >= 0x40 && b <= 0x7e {
			switch b {
			case 'A':
				return KeyArrowUp, nil
			case 'B':
				return KeyArrowDown, nil
			case 'C':
				return KeyArrowRight, nil
			case 'D':
				return KeyArrowLeft, nil
			default:
				return KeyUnidentified, nil
			}
		}
	}
}
