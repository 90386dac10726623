package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"library-circulation/barcode"
)

func newManager(t *testing.T) *LibraryManager {
	dir := t.TempDir()
	mgr, err := NewLibraryManager(DriverSQLite, filepath.Join(dir, "lib.db"))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// fixedSource always yields the same number, forcing barcode collisions.
type fixedSource int

func (f fixedSource) IntN(int) int { return int(f) }

// sequenceSource yields its values in order.
type sequenceSource struct{ vals []int }

func (s *sequenceSource) IntN(int) int {
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v
}

func TestAddBookAssignsValidBarcode(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	b, err := mgr.AddBook(ctx, NewBook{Title: "  Dune ", Author: "Herbert", ISBN: "9780441013593"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if b.Title != "Dune" {
		t.Fatalf("title not trimmed: %q", b.Title)
	}
	if !barcode.Validate(b.Barcode) || !strings.HasPrefix(b.Barcode, "LIB-") {
		t.Fatalf("invalid barcode %q", b.Barcode)
	}
	got, err := mgr.LookupBook(ctx, b.Barcode)
	if err != nil || got.ID != b.ID {
		t.Fatalf("lookup: %+v, %v", got, err)
	}

	if _, err := mgr.AddBook(ctx, NewBook{Title: "No author"}); err == nil {
		t.Fatalf("book without author was accepted")
	}
}

func TestAddBookRetriesOnCollision(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	mgr.SetBarcodeSource(&sequenceSource{vals: []int{0, 0, 0, 1}})
	first, err := mgr.AddBook(ctx, NewBook{Title: "A", Author: "X"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := mgr.AddBook(ctx, NewBook{Title: "B", Author: "X"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Barcode != "LIB-100000-64" || second.Barcode != barcode.Generate("100001") {
		t.Fatalf("barcodes %q, %q", first.Barcode, second.Barcode)
	}

	mgr.SetBarcodeSource(fixedSource(0))
	if _, err := mgr.AddBook(ctx, NewBook{Title: "C", Author: "X"}); !errors.Is(err, ErrBarcodeTaken) {
		t.Fatalf("want ErrBarcodeTaken after exhausting retries, got %v", err)
	}
}

func TestRegenerateBarcode(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	mgr.SetBarcodePrefix("BR1")

	b, err := mgr.AddBook(ctx, NewBook{Title: "Dune", Author: "Herbert"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	code, err := mgr.RegenerateBarcode(ctx, b.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	parsed, err := barcode.Parse(code)
	if err != nil {
		t.Fatalf("regenerated barcode does not validate: %v", err)
	}
	if parsed.Prefix != "BR1" || len(parsed.Identifier) != 36 {
		t.Fatalf("unexpected code %+v", parsed)
	}
	if _, err := mgr.LookupBook(ctx, b.Barcode); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old barcode still resolves: %v", err)
	}
	if _, err := mgr.RegenerateBarcode(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemberPasswords(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	if _, err := mgr.AddMember(ctx, "Alice", "  "); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("want ErrEmptyPassword, got %v", err)
	}
	id, err := mgr.AddMember(ctx, "Alice", "s3cret")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	m, _ := mgr.GetMember(ctx, id)
	if m.PasswordHash == "" || m.PasswordHash == "s3cret" {
		t.Fatalf("password stored in clear or not at all")
	}

	if err := mgr.AuthenticateMember(ctx, id, "s3cret"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := mgr.AuthenticateMember(ctx, id, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if err := mgr.AuthenticateMember(ctx, 999, "s3cret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := mgr.ResetMemberPassword(ctx, id, "n3w"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := mgr.AuthenticateMember(ctx, id, "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if err := mgr.AuthenticateMember(ctx, id, "n3w"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestPrettyBookTruncates(t *testing.T) {
	b := &Book{ID: 7, Title: strings.Repeat("é", 40), Author: "A", Barcode: "LIB-1-18", Available: true}
	line := PrettyBook(b, "")
	if !strings.Contains(line, strings.Repeat("é", 27)+"...") {
		t.Fatalf("title not truncated: %q", line)
	}
}
