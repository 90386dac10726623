package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"library-circulation/circulation"
	"library-circulation/library"
	"library-circulation/scanner"
)

// intentCycle is the order Tab steps through.
var intentCycle = []circulation.Intent{circulation.IntentCheckout, circulation.IntentReturn, circulation.IntentInventory}

// scanSession drives the workflow from a keyboard-wedge scanner. It runs on
// the event goroutine of the key source only.
type scanSession struct {
	svc      *circulation.Service
	dec      *scanner.Decoder
	out      io.Writer
	intent   circulation.Intent
	memberID int64
	actor    string
	stop     context.CancelFunc
}

func (s *scanSession) printf(format string, args ...any) {
	// Raw mode disables output post-processing, so lines need an explicit CR.
	fmt.Fprintf(s.out, format+"\r\n", args...)
}

func (s *scanSession) prompt() {
	state := "scanning"
	if !s.dec.Enabled() {
		state = "paused"
	}
	member := "none"
	if s.memberID > 0 {
		member = fmt.Sprint(s.memberID)
	}
	s.printf("[%s] mode=%s member=%s  (Tab: mode, Esc: pause, Ctrl+C: quit)", state, s.intent, member)
}

func (s *scanSession) onScan(code string) {
	res, err := s.svc.Scan(context.Background(), circulation.ScanRequest{
		Barcode:  code,
		Intent:   s.intent,
		MemberID: s.memberID,
		Actor:    s.actor,
	})
	if err != nil {
		s.printf("✗ %s: %s", code, circulation.Message(err))
		return
	}

	switch res.Kind {
	case library.ScanCheckout:
		s.printf("✓ '%s' checked out to member %d, due %s", res.Item.Title, res.Loan.MemberID, res.Loan.DueAt.Local().Format("2006-01-02"))
	case library.ScanReturn:
		s.printf("✓ '%s' returned", res.Item.Title)
	default:
		status := "available"
		if !res.Item.Available {
			status = "checked out"
		}
		s.printf("• '%s' by %s [%s] shelf %s", res.Item.Title, res.Item.Author, status, res.Item.ShelfLocation)
	}
}

// onKey receives keys the decoder did not consume.
func (s *scanSession) onKey(ev scanner.KeyEvent) {
	switch ev.Key {
	case scanner.KeyCtrlC:
		s.stop()
	case scanner.KeyTab:
		for i, in := range intentCycle {
			if in == s.intent {
				s.intent = intentCycle[(i+1)%len(intentCycle)]
				break
			}
		}
		s.prompt()
	case scanner.KeyEscape:
		s.dec.SetEnabled(!s.dec.Enabled())
		s.prompt()
	}
}

// runScanSession reads keys from in until Ctrl+C or EOF. A terminal is put
// into raw mode for the duration.
func runScanSession(ctx context.Context, in *os.File, s *scanSession, clock scanner.Clock, opts ...scanner.Option) error {
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(fd, old)
	}
	return runScanLoop(ctx, in, s, clock, opts...)
}

func runScanLoop(ctx context.Context, in io.Reader, s *scanSession, clock scanner.Clock, opts ...scanner.Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.stop = cancel
	if s.intent == "" {
		s.intent = circulation.IntentInventory
	}

	src := scanner.NewReaderSource(in, clock)
	s.dec = scanner.NewDecoder(s.onScan, opts...)
	s.dec.Attach(src)
	defer s.dec.Close()
	src.Unhandled = s.onKey

	s.prompt()
	err := src.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
