// Package scanner reconstructs barcode scans from keyboard input.
//
// Hand-held scanners present themselves as keyboards and "type" a code as a
// rapid burst of keystrokes followed by Enter. The Decoder tells such bursts
// apart from a person typing purely by the gaps between keystrokes.
package scanner

import (
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultSpeedThreshold is the nominal gap between scanner keystrokes.
	DefaultSpeedThreshold = 50 * time.Millisecond

	// DefaultMinLength is the shortest buffer that is reported as a scan.
	DefaultMinLength = 5

	// staleFactor multiplies the speed threshold to get the gap after which a
	// partial buffer is abandoned.
	staleFactor = 3
)

// Named keys produced by sources. Printable keys are the character itself.
const (
	KeyEnter        = "Enter"
	KeyEscape       = "Escape"
	KeyBackspace    = "Backspace"
	KeyTab          = "Tab"
	KeyCtrlC        = "Ctrl+C"
	KeyArrowUp      = "ArrowUp"
	KeyArrowDown    = "ArrowDown"
	KeyArrowLeft    = "ArrowLeft"
	KeyArrowRight   = "ArrowRight"
	KeyUnidentified = "Unidentified"
)

// KeyEvent is a single key press observed at time At.
type KeyEvent struct {
	Key string
	At  time.Time
}

// Printable reports whether the event carries exactly one printable character.
func (e KeyEvent) Printable() bool {
	if utf8.RuneCountInString(e.Key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(e.Key)
	return r != utf8.RuneError && unicode.IsPrint(r)
}

// State of the decoder.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Decoder is the scan state machine. It is driven by HandleKey, either
// directly or through a Source it is attached to.
type Decoder struct {
	mu sync.Mutex

	threshold time.Duration
	minLength int
	endKey    string
	onScan    func(code string)

	enabled bool
	state   State
	buf     []rune
	last    time.Time

	source Source
	stop   func()
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithSpeedThreshold sets the nominal inter-keystroke gap of the scanner.
func WithSpeedThreshold(d time.Duration) Option {
	return func(dec *Decoder) {
		if d > 0 {
			dec.threshold = d
		}
	}
}

// WithMinLength sets the shortest buffer reported as a scan.
func WithMinLength(n int) Option {
	return func(dec *Decoder) {
		if n > 0 {
			dec.minLength = n
		}
	}
}

// WithEndKey overrides the key that terminates a burst.
func WithEndKey(key string) Option {
	return func(dec *Decoder) {
		if key != "" {
			dec.endKey = key
		}
	}
}

// NewDecoder returns an enabled decoder that calls onScan once per completed burst.
func NewDecoder(onScan func(code string), opts ...Option) *Decoder {
	d := &Decoder{
		threshold: DefaultSpeedThreshold,
		minLength: DefaultMinLength,
		endKey:    KeyEnter,
		onScan:    onScan,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Decoder) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Buffered returns the characters accumulated so far.
func (d *Decoder) Buffered() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.buf)
}

// Enabled reports whether the decoder is observing keystrokes.
func (d *Decoder) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// HandleKey feeds one event through the state machine. It returns true when
// the event's default action should be suppressed, which happens only for the
// end key that closes a burst.
func (d *Decoder) HandleKey(ev KeyEvent) bool {
	d.mu.Lock()

	if !d.enabled {
		d.mu.Unlock()
		return false
	}

	if ev.Key == d.endKey {
		if d.state != Accumulating {
			d.mu.Unlock()
			return false
		}
		code := string(d.buf)
		emit := len(d.buf) >= d.minLength
		d.reset()
		cb := d.onScan
		d.mu.Unlock()

		if emit && cb != nil {
			cb(code)
		}
		return true
	}

	if !ev.Printable() {
		d.mu.Unlock()
		return false
	}

	r, _ := utf8.DecodeRuneInString(ev.Key)
	if d.state == Accumulating && ev.At.Sub(d.last) > staleFactor*d.threshold {
		d.buf = d.buf[:0]
	}
	d.buf = append(d.buf, r)
	d.last = ev.At
	d.state = Accumulating
	d.mu.Unlock()
	return false
}

// Attach binds the decoder to a global event source. The decoder listens on it
// only while enabled.
func (d *Decoder) Attach(src Source) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.detachLocked()
	d.source = src
	if d.enabled {
		d.listenLocked()
	}
}

// SetEnabled turns observation on or off. Disabling drops any partial burst
// and stops listening on the attached source.
func (d *Decoder) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled == enabled {
		return
	}
	d.enabled = enabled
	if enabled {
		d.listenLocked()
		return
	}
	d.detachLocked()
	d.reset()
}

// Close detaches from the source.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked()
	d.source = nil
}

func (d *Decoder) listenLocked() {
	if d.source == nil || d.stop != nil {
		return
	}
	d.stop = d.source.Listen(d.HandleKey)
}

func (d *Decoder) detachLocked() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
	d.last = time.Time{}
	d.state = Idle
}
