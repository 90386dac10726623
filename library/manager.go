package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"library-circulation/barcode"
)

// maxBarcodeAttempts bounds retries when a random barcode collides.
const maxBarcodeAttempts = 5

var (
	// ErrInvalidCredentials is returned when a member password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmptyPassword is returned when a blank password is supplied.
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// It owns the rules that sit above plain persistence: barcode assignment and
// password hashing.
type LibraryManager struct {
	db      *Database
	barcode barcode.Source
	prefix  string
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(driver, dbPath string) (*LibraryManager, error) {
	db, err := NewDatabase(driver, dbPath)
	if err != nil {
		return nil, err
	}
	return &LibraryManager{db: db, barcode: barcode.DefaultSource, prefix: barcode.DefaultPrefix}, nil
}

// SetBarcodePrefix changes the prefix used by RegenerateBarcode.
func (lm *LibraryManager) SetBarcodePrefix(prefix string) {
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		lm.prefix = prefix
	}
}

// SetBarcodeSource replaces the random source used for new barcodes.
func (lm *LibraryManager) SetBarcodeSource(src barcode.Source) { lm.barcode = src }

// Database exposes the store for the circulation workflow and reports.
func (lm *LibraryManager) Database() *Database { return lm.db }

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// ------------------ Book helpers ------------------

// AddBook stores a new catalog item under a freshly generated barcode.
func (lm *LibraryManager) AddBook(ctx context.Context, nb NewBook) (*Book, error) {
	nb.Title = strings.TrimSpace(nb.Title)
	nb.Author = strings.TrimSpace(nb.Author)
	if nb.Title == "" || nb.Author == "" {
		return nil, fmt.Errorf("title and author are required")
	}

	for attempt := 1; ; attempt++ {
		code := barcode.GenerateRandom(lm.barcode)
		id, err := lm.db.AddBook(ctx, nb, code)
		if err == nil {
			return lm.db.GetBook(ctx, id)
		}
		if !errors.Is(err, ErrBarcodeTaken) || attempt == maxBarcodeAttempts {
			return nil, err
		}
	}
}

// RegenerateBarcode replaces the barcode of a book with one derived from a new
// UUID and returns it.
func (lm *LibraryManager) RegenerateBarcode(ctx context.Context, bookID int64) (string, error) {
	code := barcode.GenerateWithPrefix(uuid.NewString(), lm.prefix)
	if err := lm.db.SetBarcode(ctx, bookID, code); err != nil {
		return "", err
	}
	return code, nil
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) LookupBook(ctx context.Context, code string) (*Book, error) {
	return lm.db.LookupItemByBarcode(ctx, code)
}

func (lm *LibraryManager) GetAllBooks(ctx context.Context) ([]*Book, error) {
	return lm.db.GetAllBooks(ctx)
}

func (lm *LibraryManager) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	return lm.db.ListBooks(ctx, f)
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, id int64, nb NewBook) error {
	return lm.db.UpdateBook(ctx, id, nb)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.db.DeleteBook(ctx, id)
}

// ------------------ Member helpers ------------------

// AddMember registers a member with a bcrypt-hashed password.
func (lm *LibraryManager) AddMember(ctx context.Context, name, password string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("member name cannot be empty")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return lm.db.AddMember(ctx, name, hash)
}

// AuthenticateMember checks password against the stored hash.
func (lm *LibraryManager) AuthenticateMember(ctx context.Context, memberID int64, password string) error {
	m, err := lm.db.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if m.PasswordHash == "" {
		return fmt.Errorf("member %d has no password set: %w", memberID, ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ResetMemberPassword stores a new bcrypt hash for the member.
func (lm *LibraryManager) ResetMemberPassword(ctx context.Context, memberID int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return lm.db.SetMemberPassword(ctx, memberID, hash)
}

func (lm *LibraryManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	return lm.db.GetMember(ctx, id)
}

func (lm *LibraryManager) GetAllMembers(ctx context.Context) ([]*Member, error) {
	return lm.db.GetAllMembers(ctx)
}

func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ------------------ Categories ------------------

func (lm *LibraryManager) TagBook(ctx context.Context, bookID int64, category string) error {
	return lm.db.TagBook(ctx, bookID, category)
}

func (lm *LibraryManager) UntagBook(ctx context.Context, bookID int64, category string) error {
	return lm.db.UntagBook(ctx, bookID, category)
}

func (lm *LibraryManager) BookCategories(ctx context.Context, bookID int64) ([]*Category, error) {
	return lm.db.BookCategories(ctx, bookID)
}

func (lm *LibraryManager) ListCategories(ctx context.Context) ([]*Category, error) {
	return lm.db.ListCategories(ctx)
}

// ------------------ Search ------------------

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, q)
}

// ------------------ Loans and reports ------------------

func (lm *LibraryManager) MemberLoans(ctx context.Context, memberID int64, activeOnly bool) ([]*Loan, error) {
	return lm.db.MemberLoans(ctx, memberID, activeOnly)
}

func (lm *LibraryManager) BookLoans(ctx context.Context, bookID int64) ([]*Loan, error) {
	return lm.db.BookLoans(ctx, bookID)
}

func (lm *LibraryManager) ScanHistory(ctx context.Context, bookID int64, limit int) ([]*ScanAudit, error) {
	return lm.db.ScanHistory(ctx, bookID, limit)
}

func (lm *LibraryManager) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	return lm.db.Summary(ctx, now)
}

func (lm *LibraryManager) OverdueLoans(ctx context.Context, now time.Time) ([]*OverdueLoan, error) {
	return lm.db.OverdueLoans(ctx, now)
}

func (lm *LibraryManager) CategoryCounts(ctx context.Context, limit uint) ([]*CategoryCount, error) {
	return lm.db.CategoryCounts(ctx, limit)
}

func (lm *LibraryManager) ScanActivity(ctx context.Context, since time.Time) ([]*ScanCount, error) {
	return lm.db.ScanActivity(ctx, since)
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book, borrowerName string) string {
	return fmt.Sprintf("%-5d %-16s %-30s %-25s %-10t %-25s",
		b.ID, b.Barcode, truncate(b.Title, 30), truncate(b.Author, 25), b.Available, borrowerName)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
