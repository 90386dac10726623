package circulation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBarcode is returned for malformed codes. Such codes never
	// reach the store.
	ErrInvalidBarcode = errors.New("invalid barcode")

	// ErrItemNotFound is returned when a well-formed barcode matches no book.
	ErrItemNotFound = errors.New("book not found")

	// ErrGuard is the parent of every precondition failure. Guards are
	// evaluated before any mutation.
	ErrGuard = errors.New("operation not allowed")

	ErrAlreadyCheckedOut = fmt.Errorf("%w: book is already checked out", ErrGuard)
	ErrNotCheckedOut     = fmt.Errorf("%w: book is not checked out", ErrGuard)
	ErrNoActiveLoan      = fmt.Errorf("%w: no active loan for book", ErrGuard)
	ErrNoMemberSelected  = fmt.Errorf("%w: no member selected", ErrGuard)

	// ErrBackend wraps persistence failures. They are never retried.
	ErrBackend = errors.New("library service error")
)

// Message renders err as the text shown to desk staff.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidBarcode):
		return "Invalid barcode"
	case errors.Is(err, ErrItemNotFound):
		return "Book not found"
	case errors.Is(err, ErrAlreadyCheckedOut):
		return "This book is already checked out"
	case errors.Is(err, ErrNotCheckedOut):
		return "This book is not checked out"
	case errors.Is(err, ErrNoActiveLoan):
		return "No active loan found for this book"
	case errors.Is(err, ErrNoMemberSelected):
		return "Select a member before checking out"
	case errors.Is(err, ErrGuard):
		return "Operation not allowed"
	default:
		return "Something went wrong, please try again"
	}
}

// backend tags err as a persistence failure unless it is already classified.
func backend(err error, step string) error {
	if err == nil || classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBackend, step, err)
}

func classified(err error) bool {
	for _, target := range []error{ErrInvalidBarcode, ErrItemNotFound, ErrGuard, ErrBackend} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
