package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite  = "sqlite"  // modernc.org/sqlite (pure Go)
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBarcodeTaken is returned when a barcode is already assigned to another book.
	ErrBarcodeTaken = errors.New("barcode already assigned")

	// ErrOnLoan is returned when a book with an active loan would be deleted.
	ErrOnLoan = errors.New("book is on loan")

	// ErrUnknownDriver is returned by NewDatabase for unsupported driver names.
	ErrUnknownDriver = errors.New("unknown sqlite driver")
)

// Database provides high-level helpers around a SQLite connection. It is the
// persistence service behind the circulation workflow.
type Database struct {
	db     *sqlx.DB
	driver string

	addBookStmt   *sqlx.Stmt
	addMemberStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath with the given
// driver, applies schema migrations, and prepares common statements.
func NewDatabase(driver, dbPath string) (*Database, error) {
	if driver == "" {
		driver = DriverSQLite3
	}

	dsn, err := buildDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, driver: driver}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// buildDSN enables busy_timeout and foreign keys on every pooled connection.
// The two drivers spell connection pragmas differently.
func buildDSN(driver, dbPath string) (string, error) {
	switch driver {
	case DriverSQLite3:
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath), nil
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Driver returns the database/sql driver name in use.
func (d *Database) Driver() string { return d.driver }

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addMemberStmt != nil {
		d.addMemberStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            password_hash TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL DEFAULT '',
            genre TEXT NOT NULL DEFAULT '',
            shelf_location TEXT NOT NULL DEFAULT '',
            barcode TEXT NOT NULL UNIQUE,
            available BOOLEAN NOT NULL DEFAULT 1,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            member_id INTEGER NOT NULL REFERENCES members(id),
            issued_at INTEGER NOT NULL,
            due_at INTEGER NOT NULL,
            returned_at INTEGER,
            status TEXT NOT NULL DEFAULT 'active'
        );`,
		// At most one active loan per book.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_book ON loans(book_id) WHERE returned_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);`,
		`CREATE TABLE IF NOT EXISTS scan_audit (
            id TEXT PRIMARY KEY,
            book_id INTEGER NOT NULL REFERENCES books(id),
            kind TEXT NOT NULL,
            actor TEXT NOT NULL DEFAULT '',
            scanned_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_scan_audit_book ON scan_audit(book_id);`,
		`CREATE TABLE IF NOT EXISTS categories (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE COLLATE NOCASE
        );`,
		`CREATE TABLE IF NOT EXISTS book_categories (
            book_id INTEGER NOT NULL REFERENCES books(id),
            category_id INTEGER NOT NULL REFERENCES categories(id),
            PRIMARY KEY(book_id, category_id)
        );`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements and transactions
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Preparex(`INSERT INTO books(title,author,isbn,genre,shelf_location,barcode,created_at) VALUES(?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addMemberStmt, err = d.db.Preparex(`INSERT INTO members(name,password_hash) VALUES(?,?)`); err != nil {
		return err
	}
	return nil
}

type txKey struct{}

// WithinTx runs fn in a single transaction. Every Database method called with
// the context handed to fn joins that transaction. Nested calls reuse the
// outer transaction.
func (d *Database) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// conn returns the transaction bound to ctx, or the pool.
func (d *Database) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.db
}

func (d *Database) stmt(ctx context.Context, s *sqlx.Stmt) *sqlx.Stmt {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx.StmtxContext(ctx, s)
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

// boolInt stores booleans as 0/1 regardless of how the driver binds bool.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// bookColumns selects a book row from alias b, deriving the borrower from the
// active loan.
const bookColumns = `b.id, b.title, b.author, b.isbn, b.genre, b.shelf_location, b.barcode, b.available,
    COALESCE((SELECT l.member_id FROM loans l WHERE l.book_id = b.id AND l.returned_at IS NULL), 0) AS borrower_id,
    b.created_at`

type bookRow struct {
	ID            int64  `db:"id"`
	Title         string `db:"title"`
	Author        string `db:"author"`
	ISBN          string `db:"isbn"`
	Genre         string `db:"genre"`
	ShelfLocation string `db:"shelf_location"`
	Barcode       string `db:"barcode"`
	Available     bool   `db:"available"`
	BorrowerID    int64  `db:"borrower_id"`
	CreatedAt     int64  `db:"created_at"`
}

func (r bookRow) book() *Book {
	return &Book{
		ID:            r.ID,
		Title:         r.Title,
		Author:        r.Author,
		ISBN:          r.ISBN,
		Genre:         r.Genre,
		ShelfLocation: r.ShelfLocation,
		Barcode:       r.Barcode,
		Available:     r.Available,
		BorrowerID:    r.BorrowerID,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
}

// AddBook inserts a catalog item under the given barcode.
func (d *Database) AddBook(ctx context.Context, nb NewBook, barcode string) (int64, error) {
	res, err := d.stmt(ctx, d.addBookStmt).ExecContext(ctx,
		nb.Title, nb.Author, nb.ISBN, nb.Genre, nb.ShelfLocation, barcode, toMillis(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrBarcodeTaken, barcode)
		}
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return res.LastInsertId()
}

func (d *Database) getBook(ctx context.Context, where string, arg any) (*Book, error) {
	var row bookRow
	err := sqlx.GetContext(ctx, d.conn(ctx), &row, `SELECT `+bookColumns+` FROM books b WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.book(), nil
}

// GetBook fetches a single book by id.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := d.getBook(ctx, `b.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("book %d: %w", id, err)
	}
	return b, nil
}

// LookupItemByBarcode fetches the book carrying barcode.
func (d *Database) LookupItemByBarcode(ctx context.Context, barcode string) (*Book, error) {
	b, err := d.getBook(ctx, `b.barcode = ?`, barcode)
	if err != nil {
		return nil, fmt.Errorf("barcode %s: %w", barcode, err)
	}
	return b, nil
}

// UpdateBook replaces the descriptive fields of a book.
func (d *Database) UpdateBook(ctx context.Context, id int64, nb NewBook) error {
	res, err := d.conn(ctx).ExecContext(ctx,
		`UPDATE books SET title=?, author=?, isbn=?, genre=?, shelf_location=? WHERE id=?`,
		nb.Title, nb.Author, nb.ISBN, nb.Genre, nb.ShelfLocation, id)
	if err != nil {
		return fmt.Errorf("update book %d: %w", id, err)
	}
	return expectRow(res, fmt.Sprintf("book %d", id))
}

// SetBarcode assigns a new barcode to a book.
func (d *Database) SetBarcode(ctx context.Context, id int64, barcode string) error {
	res, err := d.conn(ctx).ExecContext(ctx, `UPDATE books SET barcode=? WHERE id=?`, barcode, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrBarcodeTaken, barcode)
		}
		return fmt.Errorf("set barcode on book %d: %w", id, err)
	}
	return expectRow(res, fmt.Sprintf("book %d", id))
}

// UpdateItemAvailability flips the availability flag of a book.
func (d *Database) UpdateItemAvailability(ctx context.Context, id int64, available bool) error {
	res, err := d.conn(ctx).ExecContext(ctx, `UPDATE books SET available=? WHERE id=?`, boolInt(available), id)
	if err != nil {
		return fmt.Errorf("update availability of book %d: %w", id, err)
	}
	return expectRow(res, fmt.Sprintf("book %d", id))
}

// DeleteBook removes a book together with its loan history, tags and audit
// rows. Books with an active loan are refused.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	return d.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := d.GetBook(ctx, id); err != nil {
			return err
		}
		if _, err := d.FindActiveLoan(ctx, id); err == nil {
			return fmt.Errorf("book %d: %w", id, ErrOnLoan)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		conn := d.conn(ctx)
		for _, stmt := range []string{
			`DELETE FROM book_categories WHERE book_id=?`,
			`DELETE FROM scan_audit WHERE book_id=?`,
			`DELETE FROM loans WHERE book_id=?`,
			`DELETE FROM books WHERE id=?`,
		} {
			if _, err := conn.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete book %d: %w", id, err)
			}
		}
		return nil
	})
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// AddMember inserts a member with an already hashed password.
func (d *Database) AddMember(ctx context.Context, name, passwordHash string) (int64, error) {
	res, err := d.stmt(ctx, d.addMemberStmt).ExecContext(ctx, name, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return res.LastInsertId()
}

// GetMember fetches a single member.
func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	var m Member
	err := sqlx.GetContext(ctx, d.conn(ctx), &m, `SELECT id,name,password_hash FROM members WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAllMembers returns all members.
func (d *Database) GetAllMembers(ctx context.Context) ([]*Member, error) {
	var members []*Member
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &members, `SELECT id,name,password_hash FROM members ORDER BY id`); err != nil {
		return nil, err
	}
	return members, nil
}

// SetMemberPassword stores a new password hash.
func (d *Database) SetMemberPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := d.conn(ctx).ExecContext(ctx, `UPDATE members SET password_hash=? WHERE id=?`, passwordHash, id)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Sprintf("member %d", id))
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

const loanColumns = `id, book_id, member_id, issued_at, due_at, returned_at, status`

type loanRow struct {
	ID         int64         `db:"id"`
	BookID     int64         `db:"book_id"`
	MemberID   int64         `db:"member_id"`
	IssuedAt   int64         `db:"issued_at"`
	DueAt      int64         `db:"due_at"`
	ReturnedAt sql.NullInt64 `db:"returned_at"`
	Status     string        `db:"status"`
}

func (r loanRow) loan() *Loan {
	l := &Loan{
		ID:       r.ID,
		BookID:   r.BookID,
		MemberID: r.MemberID,
		IssuedAt: fromMillis(r.IssuedAt),
		DueAt:    fromMillis(r.DueAt),
		Status:   LoanStatus(r.Status),
	}
	if r.ReturnedAt.Valid {
		t := fromMillis(r.ReturnedAt.Int64)
		l.ReturnedAt = &t
	}
	return l
}

// CreateLoan records an active loan of a book to a member.
func (d *Database) CreateLoan(ctx context.Context, bookID, memberID int64, issuedAt, dueAt time.Time) (*Loan, error) {
	res, err := d.conn(ctx).ExecContext(ctx,
		`INSERT INTO loans(book_id,member_id,issued_at,due_at,status) VALUES(?,?,?,?,?)`,
		bookID, memberID, toMillis(issuedAt), toMillis(dueAt), string(LoanActive))
	if err != nil {
		return nil, fmt.Errorf("insert loan for book %d: %w", bookID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.getLoan(ctx, id)
}

func (d *Database) getLoan(ctx context.Context, id int64) (*Loan, error) {
	var row loanRow
	err := sqlx.GetContext(ctx, d.conn(ctx), &row, `SELECT `+loanColumns+` FROM loans WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.loan(), nil
}

// FindActiveLoan returns the open loan of a book.
func (d *Database) FindActiveLoan(ctx context.Context, bookID int64) (*Loan, error) {
	var row loanRow
	err := sqlx.GetContext(ctx, d.conn(ctx), &row,
		`SELECT `+loanColumns+` FROM loans WHERE book_id=? AND returned_at IS NULL`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active loan for book %d: %w", bookID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.loan(), nil
}

// CloseLoan marks an active loan returned.
func (d *Database) CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time) error {
	res, err := d.conn(ctx).ExecContext(ctx,
		`UPDATE loans SET returned_at=?, status=? WHERE id=? AND returned_at IS NULL`,
		toMillis(returnedAt), string(LoanReturned), loanID)
	if err != nil {
		return fmt.Errorf("close loan %d: %w", loanID, err)
	}
	return expectRow(res, fmt.Sprintf("active loan %d", loanID))
}

// DeleteLoan removes a loan row. It undoes CreateLoan.
func (d *Database) DeleteLoan(ctx context.Context, loanID int64) error {
	res, err := d.conn(ctx).ExecContext(ctx, `DELETE FROM loans WHERE id=?`, loanID)
	if err != nil {
		return fmt.Errorf("delete loan %d: %w", loanID, err)
	}
	return expectRow(res, fmt.Sprintf("loan %d", loanID))
}

// ReopenLoan clears the return of a loan. It undoes CloseLoan.
func (d *Database) ReopenLoan(ctx context.Context, loanID int64) error {
	res, err := d.conn(ctx).ExecContext(ctx,
		`UPDATE loans SET returned_at=NULL, status=? WHERE id=?`, string(LoanActive), loanID)
	if err != nil {
		return fmt.Errorf("reopen loan %d: %w", loanID, err)
	}
	return expectRow(res, fmt.Sprintf("loan %d", loanID))
}

func (d *Database) selectLoans(ctx context.Context, query string, args ...any) ([]*Loan, error) {
	var rows []loanRow
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &rows, query, args...); err != nil {
		return nil, err
	}
	loans := make([]*Loan, 0, len(rows))
	for _, r := range rows {
		loans = append(loans, r.loan())
	}
	return loans, nil
}

// MemberLoans lists the loans of a member, newest first.
func (d *Database) MemberLoans(ctx context.Context, memberID int64, activeOnly bool) ([]*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE member_id=?`
	if activeOnly {
		q += ` AND returned_at IS NULL`
	}
	return d.selectLoans(ctx, q+` ORDER BY issued_at DESC, id DESC`, memberID)
}

// BookLoans lists the loan history of a book, newest first.
func (d *Database) BookLoans(ctx context.Context, bookID int64) ([]*Loan, error) {
	return d.selectLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE book_id=? ORDER BY issued_at DESC, id DESC`, bookID)
}

// ---------------------------------------------------------------------------
// Scan audit
// ---------------------------------------------------------------------------

// AppendScanAudit appends an audit row. Missing id and timestamp are filled in.
func (d *Database) AppendScanAudit(ctx context.Context, entry ScanAudit) error {
	if !entry.Kind.Valid() {
		return fmt.Errorf("scan kind %q is not valid", entry.Kind)
	}
	if entry.ID == "" {
		entry.ID = ksuid.New().String()
	}
	if entry.ScannedAt.IsZero() {
		entry.ScannedAt = time.Now()
	}
	_, err := d.conn(ctx).ExecContext(ctx,
		`INSERT INTO scan_audit(id,book_id,kind,actor,scanned_at) VALUES(?,?,?,?,?)`,
		entry.ID, entry.BookID, string(entry.Kind), entry.Actor, toMillis(entry.ScannedAt))
	if err != nil {
		return fmt.Errorf("append scan audit: %w", err)
	}
	return nil
}

type auditRow struct {
	ID        string `db:"id"`
	BookID    int64  `db:"book_id"`
	Kind      string `db:"kind"`
	Actor     string `db:"actor"`
	ScannedAt int64  `db:"scanned_at"`
}

// ScanHistory returns the audit rows of a book, newest first. KSUIDs sort by
// creation time, which breaks ties between scans in the same millisecond.
func (d *Database) ScanHistory(ctx context.Context, bookID int64, limit int) ([]*ScanAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []auditRow
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &rows,
		`SELECT id,book_id,kind,actor,scanned_at FROM scan_audit WHERE book_id=? ORDER BY scanned_at DESC, id DESC LIMIT ?`,
		bookID, limit); err != nil {
		return nil, err
	}
	entries := make([]*ScanAudit, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, &ScanAudit{
			ID:        r.ID,
			BookID:    r.BookID,
			Kind:      ScanKind(r.Kind),
			Actor:     r.Actor,
			ScannedAt: fromMillis(r.ScannedAt),
		})
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// AddCategory creates a category if needed and returns its id.
func (d *Database) AddCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("category name cannot be empty")
	}
	conn := d.conn(ctx)
	if _, err := conn.ExecContext(ctx, `INSERT INTO categories(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	var id int64
	if err := sqlx.GetContext(ctx, conn, &id, `SELECT id FROM categories WHERE name=?`, name); err != nil {
		return 0, err
	}
	return id, nil
}

// TagBook attaches a category to a book, creating the category on first use.
func (d *Database) TagBook(ctx context.Context, bookID int64, category string) error {
	return d.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := d.GetBook(ctx, bookID); err != nil {
			return err
		}
		catID, err := d.AddCategory(ctx, category)
		if err != nil {
			return err
		}
		_, err = d.conn(ctx).ExecContext(ctx,
			`INSERT OR IGNORE INTO book_categories(book_id,category_id) VALUES(?,?)`, bookID, catID)
		return err
	})
}

// UntagBook detaches a category from a book.
func (d *Database) UntagBook(ctx context.Context, bookID int64, category string) error {
	res, err := d.conn(ctx).ExecContext(ctx, `
        DELETE FROM book_categories
        WHERE book_id=? AND category_id=(SELECT id FROM categories WHERE name=?)`, bookID, strings.TrimSpace(category))
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Sprintf("category %q on book %d", category, bookID))
}

// BookCategories lists the categories of a book by name.
func (d *Database) BookCategories(ctx context.Context, bookID int64) ([]*Category, error) {
	var cats []*Category
	err := sqlx.SelectContext(ctx, d.conn(ctx), &cats, `
        SELECT c.id, c.name FROM categories c
        JOIN book_categories bc ON bc.category_id = c.id
        WHERE bc.book_id=? ORDER BY c.name`, bookID)
	return cats, err
}

// ListCategories lists every category by name.
func (d *Database) ListCategories(ctx context.Context) ([]*Category, error) {
	var cats []*Category
	err := sqlx.SelectContext(ctx, d.conn(ctx), &cats, `SELECT id, name FROM categories ORDER BY name`)
	return cats, err
}
