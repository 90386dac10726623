// Package circulation moves catalog items between Available and CheckedOut
// in response to barcode scans.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"library-circulation/barcode"
	"library-circulation/library"
)

// Store is the persistence contract the workflow runs against. Lookups report
// missing rows with an error wrapping library.ErrNotFound.
type Store interface {
	LookupItemByBarcode(ctx context.Context, code string) (*library.Book, error)
	UpdateItemAvailability(ctx context.Context, bookID int64, available bool) error
	CreateLoan(ctx context.Context, bookID, memberID int64, issuedAt, dueAt time.Time) (*library.Loan, error)
	FindActiveLoan(ctx context.Context, bookID int64) (*library.Loan, error)
	CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time) error
	AppendScanAudit(ctx context.Context, entry library.ScanAudit) error

	// DeleteLoan and ReopenLoan undo CreateLoan and CloseLoan.
	DeleteLoan(ctx context.Context, loanID int64) error
	ReopenLoan(ctx context.Context, loanID int64) error
}

// Transactor is implemented by stores that can run several calls atomically.
// Store calls made with the context passed to fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Intent says what a scan is for.
type Intent string

const (
	IntentCheckout  Intent = "checkout"
	IntentReturn    Intent = "return"
	IntentInventory Intent = "inventory"
)

// ParseIntent maps user input to an Intent. Blank input is an inventory scan.
func ParseIntent(s string) (Intent, error) {
	switch i := Intent(strings.ToLower(strings.TrimSpace(s))); i {
	case "":
		return IntentInventory, nil
	case IntentCheckout, IntentReturn, IntentInventory:
		return i, nil
	default:
		return "", fmt.Errorf("unknown scan intent %q", s)
	}
}

// ScanRequest is one decoded scan together with the desk context.
type ScanRequest struct {
	Barcode  string
	Intent   Intent
	MemberID int64
	Actor    string
}

// Result is the outcome of a successful scan.
type Result struct {
	Item *library.Book
	Loan *library.Loan // nil for inventory scans
	Kind library.ScanKind
}

// Service runs the checkout/return workflow.
type Service struct {
	store      Store
	loanPeriod time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLoanPeriod sets how long checkouts last.
func WithLoanPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

// WithClock injects the time source used for loan dates and audit rows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService builds a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		loanPeriod: library.DefaultLoanPeriod,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan dispatches req on its intent.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*Result, error) {
	switch req.Intent {
	case IntentCheckout:
		return s.Checkout(ctx, req.Barcode, req.MemberID, req.Actor)
	case IntentReturn:
		return s.Return(ctx, req.Barcode, req.Actor)
	case IntentInventory, "":
		return s.Inventory(ctx, req.Barcode, req.Actor)
	default:
		return nil, fmt.Errorf("unknown scan intent %q", req.Intent)
	}
}

// Checkout lends the book carrying code to memberID.
func (s *Service) Checkout(ctx context.Context, code string, memberID int64, actor string) (*Result, error) {
	if err := checkBarcode(code); err != nil {
		return nil, err
	}

	var res *Result
	err := s.run(ctx, func(ctx context.Context, compensate bool) error {
		item, err := s.lookup(ctx, code)
		if err != nil {
			return err
		}
		if err := decide(actionCheckout, item, memberID); err != nil {
			return err
		}

		issued := s.now()
		loan, err := s.store.CreateLoan(ctx, item.ID, memberID, issued, issued.Add(s.loanPeriod))
		if err != nil {
			return backend(err, "create loan")
		}
		if err := s.store.UpdateItemAvailability(ctx, item.ID, false); err != nil {
			err = backend(err, "mark checked out")
			if compensate {
				err = s.undo(ctx, err, "delete loan", loan.ID, s.store.DeleteLoan)
			}
			return err
		}

		item.Available = false
		item.BorrowerID = memberID
		res = &Result{Item: item, Loan: loan, Kind: library.ScanCheckout}
		return nil
	})
	if err != nil {
		s.logFailure("checkout", code, err)
		return nil, err
	}

	s.audit(ctx, res.Item.ID, library.ScanCheckout, actor)
	s.log.Info("checked out",
		zap.String("barcode", code),
		zap.Int64("book_id", res.Item.ID),
		zap.Int64("member_id", memberID),
		zap.Time("due_at", res.Loan.DueAt))
	return res, nil
}

// Return closes the active loan of the book carrying code.
func (s *Service) Return(ctx context.Context, code, actor string) (*Result, error) {
	if err := checkBarcode(code); err != nil {
		return nil, err
	}

	var res *Result
	err := s.run(ctx, func(ctx context.Context, compensate bool) error {
		item, err := s.lookup(ctx, code)
		if err != nil {
			return err
		}
		if err := decide(actionReturn, item, 0); err != nil {
			return err
		}

		loan, err := s.store.FindActiveLoan(ctx, item.ID)
		if errors.Is(err, library.ErrNotFound) {
			return ErrNoActiveLoan
		}
		if err != nil {
			return backend(err, "find active loan")
		}

		returned := s.now()
		if err := s.store.CloseLoan(ctx, loan.ID, returned); err != nil {
			return backend(err, "close loan")
		}
		if err := s.store.UpdateItemAvailability(ctx, item.ID, true); err != nil {
			err = backend(err, "mark available")
			if compensate {
				err = s.undo(ctx, err, "reopen loan", loan.ID, s.store.ReopenLoan)
			}
			return err
		}

		loan.Status = library.LoanReturned
		loan.ReturnedAt = &returned
		item.Available = true
		item.BorrowerID = 0
		res = &Result{Item: item, Loan: loan, Kind: library.ScanReturn}
		return nil
	})
	if err != nil {
		s.logFailure("return", code, err)
		return nil, err
	}

	s.audit(ctx, res.Item.ID, library.ScanReturn, actor)
	s.log.Info("returned",
		zap.String("barcode", code),
		zap.Int64("book_id", res.Item.ID),
		zap.Int64("member_id", res.Loan.MemberID))
	return res, nil
}

// Inventory records a read-only scan of the book carrying code.
func (s *Service) Inventory(ctx context.Context, code, actor string) (*Result, error) {
	if err := checkBarcode(code); err != nil {
		return nil, err
	}
	item, err := s.lookup(ctx, code)
	if err != nil {
		s.logFailure("inventory", code, err)
		return nil, err
	}
	s.audit(ctx, item.ID, library.ScanInventory, actor)
	return &Result{Item: item, Kind: library.ScanInventory}, nil
}

func checkBarcode(code string) error {
	if _, err := barcode.Parse(code); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBarcode, err)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, code string) (*library.Book, error) {
	item, err := s.store.LookupItemByBarcode(ctx, code)
	if errors.Is(err, library.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, code)
	}
	if err != nil {
		return nil, backend(err, "lookup")
	}
	return item, nil
}

// run executes fn inside a store transaction when the store supports one.
// Otherwise fn is told to compensate its own partial writes.
func (s *Service) run(ctx context.Context, fn func(ctx context.Context, compensate bool) error) error {
	tx, ok := s.store.(Transactor)
	if !ok {
		return fn(ctx, true)
	}
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx, false)
	})
	return backend(err, "transaction")
}

// undo runs a compensating step after a failed mutation. A failed undo is
// joined to the original error.
func (s *Service) undo(ctx context.Context, cause error, step string, loanID int64, fn func(context.Context, int64) error) error {
	if err := fn(ctx, loanID); err != nil {
		s.log.Error("compensation failed",
			zap.String("step", step),
			zap.Int64("loan_id", loanID),
			zap.Error(err))
		return errors.Join(cause, fmt.Errorf("%s: %w", step, err))
	}
	s.log.Warn("compensated partial write", zap.String("step", step), zap.Int64("loan_id", loanID))
	return cause
}

// audit appends a scan row. Failures are logged and dropped.
func (s *Service) audit(ctx context.Context, bookID int64, kind library.ScanKind, actor string) {
	err := s.store.AppendScanAudit(ctx, library.ScanAudit{
		BookID:    bookID,
		Kind:      kind,
		Actor:     actor,
		ScannedAt: s.now(),
	})
	if err != nil {
		s.log.Warn("scan audit failed",
			zap.Int64("book_id", bookID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *Service) logFailure(op, code string, err error) {
	if errors.Is(err, ErrBackend) {
		s.log.Error(op+" failed", zap.String("barcode", code), zap.Error(err))
		return
	}
	s.log.Info(op+" refused", zap.String("barcode", code), zap.Error(err))
}
