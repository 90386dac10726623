package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
)

// dialect builds SQL for both sqlite drivers; they share one SQL dialect.
var dialect = goqu.Dialect("sqlite3")

// BookFilter narrows ListBooks. Zero values mean "no restriction".
type BookFilter struct {
	Query     string // matched against title, author, isbn, genre and barcode
	Available *bool
	Category  string
	Limit     uint
	Offset    uint
}

// ListBooks returns books matching f ordered by id.
func (d *Database) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	ds := dialect.From(goqu.T("books").As("b")).Select(goqu.L(bookColumns))

	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + q + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").Like(pattern),
			goqu.I("b.author").Like(pattern),
			goqu.I("b.isbn").Like(pattern),
			goqu.I("b.genre").Like(pattern),
			goqu.I("b.barcode").Like(pattern),
		))
	}
	if f.Available != nil {
		ds = ds.Where(goqu.I("b.available").Eq(boolInt(*f.Available)))
	}
	if f.Category != "" {
		tagged := dialect.From(goqu.T("book_categories").As("bc")).
			InnerJoin(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("bc.category_id")))).
			Select(goqu.I("bc.book_id")).
			Where(goqu.I("c.name").Eq(f.Category))
		ds = ds.Where(goqu.I("b.id").In(tagged))
	}
	ds = ds.Order(goqu.I("b.id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(f.Limit).Offset(f.Offset)
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book listing: %w", err)
	}

	var rows []bookRow
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]*Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.book())
	}
	return books, nil
}

// GetAllBooks returns the whole catalog.
func (d *Database) GetAllBooks(ctx context.Context) ([]*Book, error) {
	return d.ListBooks(ctx, BookFilter{})
}

// SearchBooks matches q against the descriptive fields and the barcode.
func (d *Database) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	if strings.TrimSpace(q) == "" {
		return []*Book{}, nil
	}
	return d.ListBooks(ctx, BookFilter{Query: q})
}

// ---------------------------------------------------------------------------
// Dashboard reports
// ---------------------------------------------------------------------------

// Summary is the headline of the circulation dashboard.
type Summary struct {
	TotalBooks   int `json:"total_books"`
	Available    int `json:"available"`
	CheckedOut   int `json:"checked_out"`
	Members      int `json:"members"`
	ActiveLoans  int `json:"active_loans"`
	OverdueLoans int `json:"overdue_loans"`
}

// OverdueLoan is one row of the overdue report.
type OverdueLoan struct {
	LoanID      int64     `json:"loan_id"`
	BookID      int64     `json:"book_id"`
	Title       string    `json:"title"`
	Barcode     string    `json:"barcode"`
	MemberID    int64     `json:"member_id"`
	MemberName  string    `json:"member_name"`
	DueAt       time.Time `json:"due_at"`
	DaysOverdue int       `json:"days_overdue"`
}

// CategoryCount is the number of books tagged with a category.
type CategoryCount struct {
	Name  string `json:"name" db:"name"`
	Books int    `json:"books" db:"book_count"`
}

// ScanCount is the number of audit rows of one kind.
type ScanCount struct {
	Kind  ScanKind `json:"kind" db:"kind"`
	Count int      `json:"count" db:"scans"`
}

func (d *Database) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	query, args, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, d.conn(ctx), &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// Summary counts books, members and loans as of now.
func (d *Database) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	activeLoans := dialect.From("loans").Where(goqu.C("returned_at").IsNull())

	type counter struct {
		ds   *goqu.SelectDataset
		into *int
	}
	var s Summary
	counts := []counter{
		{dialect.From("books"), &s.TotalBooks},
		{dialect.From("books").Where(goqu.C("available").Eq(1)), &s.Available},
		{dialect.From("members"), &s.Members},
		{activeLoans, &s.ActiveLoans},
		{activeLoans.Where(goqu.C("due_at").Lt(toMillis(now))), &s.OverdueLoans},
	}

	for _, c := range counts {
		n, err := d.count(ctx, c.ds)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		*c.into = n
	}
	s.CheckedOut = s.TotalBooks - s.Available
	return &s, nil
}

type overdueRow struct {
	LoanID     int64  `db:"loan_id"`
	BookID     int64  `db:"book_id"`
	Title      string `db:"title"`
	Barcode    string `db:"barcode"`
	MemberID   int64  `db:"member_id"`
	MemberName string `db:"member_name"`
	DueAt      int64  `db:"due_at"`
}

// OverdueLoans lists active loans past their due date, most overdue first.
func (d *Database) OverdueLoans(ctx context.Context, now time.Time) ([]*OverdueLoan, error) {
	query, args, err := dialect.From(goqu.T("loans").As("l")).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		InnerJoin(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Select(
			goqu.I("l.id").As("loan_id"),
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("b.barcode").As("barcode"),
			goqu.I("m.id").As("member_id"),
			goqu.I("m.name").As("member_name"),
			goqu.I("l.due_at").As("due_at"),
		).
		Where(
			goqu.I("l.returned_at").IsNull(),
			goqu.I("l.due_at").Lt(toMillis(now)),
		).
		Order(goqu.I("l.due_at").Asc(), goqu.I("l.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overdue report: %w", err)
	}

	var rows []overdueRow
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("overdue report: %w", err)
	}
	out := make([]*OverdueLoan, 0, len(rows))
	for _, r := range rows {
		due := fromMillis(r.DueAt)
		out = append(out, &OverdueLoan{
			LoanID:      r.LoanID,
			BookID:      r.BookID,
			Title:       r.Title,
			Barcode:     r.Barcode,
			MemberID:    r.MemberID,
			MemberName:  r.MemberName,
			DueAt:       due,
			DaysOverdue: int(now.Sub(due) / (24 * time.Hour)),
		})
	}
	return out, nil
}

// CategoryCounts lists categories by the number of books tagged with them.
func (d *Database) CategoryCounts(ctx context.Context, limit uint) ([]*CategoryCount, error) {
	ds := dialect.From(goqu.T("categories").As("c")).
		LeftJoin(goqu.T("book_categories").As("bc"), goqu.On(goqu.I("bc.category_id").Eq(goqu.I("c.id")))).
		Select(goqu.I("c.name").As("name"), goqu.COUNT(goqu.I("bc.book_id")).As("book_count")).
		GroupBy(goqu.I("c.id"), goqu.I("c.name")).
		Order(goqu.C("book_count").Desc(), goqu.I("c.name").Asc())
	if limit > 0 {
		ds = ds.Limit(limit)
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build category report: %w", err)
	}
	var out []*CategoryCount
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("category report: %w", err)
	}
	return out, nil
}

// ScanActivity counts audit rows per kind since the given time.
func (d *Database) ScanActivity(ctx context.Context, since time.Time) ([]*ScanCount, error) {
	query, args, err := dialect.From("scan_audit").
		Select(goqu.C("kind"), goqu.COUNT(goqu.Star()).As("scans")).
		Where(goqu.C("scanned_at").Gte(toMillis(since))).
		GroupBy(goqu.C("kind")).
		Order(goqu.C("kind").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build scan report: %w", err)
	}
	var out []*ScanCount
	if err := sqlx.SelectContext(ctx, d.conn(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return out, nil
}
