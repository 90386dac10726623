package library

import "time"

// Book is a catalog item. Availability is the flag the circulation workflow
// guards; BorrowerID is derived from the active loan, if any.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	ISBN          string    `json:"isbn,omitempty"`
	Genre         string    `json:"genre,omitempty"`
	ShelfLocation string    `json:"shelf_location,omitempty"`
	Barcode       string    `json:"barcode"`
	Available     bool      `json:"available"`
	BorrowerID    int64     `json:"borrower_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewBook carries the caller-supplied fields of a catalog item.
type NewBook struct {
	Title         string `yaml:"title"`
	Author        string `yaml:"author"`
	ISBN          string `yaml:"isbn"`
	Genre         string `yaml:"genre"`
	ShelfLocation string `yaml:"shelf_location"`
}

// Member represents a registered library member.
type Member struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	PasswordHash string `json:"-" db:"password_hash"` // Don't serialize password hash
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// DefaultLoanPeriod is how long a checkout lasts unless configured otherwise.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// Loan links a book to a member for a period.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	MemberID   int64      `json:"member_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     LoanStatus `json:"status"`
}

// Overdue reports whether the loan is still active past its due date.
func (l Loan) Overdue(now time.Time) bool {
	return l.Status == LoanActive && now.After(l.DueAt)
}

// ScanKind classifies an audit entry.
type ScanKind string

const (
	ScanCheckout  ScanKind = "checkout"
	ScanReturn    ScanKind = "return"
	ScanInventory ScanKind = "inventory"
)

// Valid reports whether k is a known scan kind.
func (k ScanKind) Valid() bool {
	switch k {
	case ScanCheckout, ScanReturn, ScanInventory:
		return true
	}
	return false
}

// ScanAudit is one row of the inventory-scan log.
type ScanAudit struct {
	ID        string    `json:"id"`
	BookID    int64     `json:"book_id"`
	Kind      ScanKind  `json:"kind"`
	Actor     string    `json:"actor,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Category is a tag that can be attached to books.
type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
