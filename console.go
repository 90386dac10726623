package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"library-circulation/circulation"
	"library-circulation/library"
)

// console is the line-oriented desk REPL. Keyboard-wedge scanners type the
// code followed by Enter, so scanned barcodes arrive as ordinary lines.
type console struct {
	sc    *bufio.Scanner
	out   io.Writer
	mgr   *library.LibraryManager
	svc   *circulation.Service
	actor string

	// readSecret defaults to masked terminal input.
	readSecret func(prompt string) (string, error)
}

func runConsole(ctx context.Context) error {
	mgr, err := openManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	actor, err := staffLogin(cfg.Staff, "")
	if err != nil {
		return err
	}

	c := &console{
		sc:         bufio.NewScanner(os.Stdin),
		out:        os.Stdout,
		mgr:        mgr,
		svc:        newService(mgr),
		actor:      actor,
		readSecret: readPassword,
	}
	c.run(ctx)
	return nil
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) ask(prompt string) (string, bool) {
	c.printf("%s", prompt)
	if !c.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.sc.Text()), true
}

func (c *console) askID(prompt string) (int64, bool) {
	s, ok := c.ask(prompt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.printf("Invalid ID: %s\n", s)
		return 0, false
	}
	return id, true
}

func (c *console) banner() {
	c.printf("Library circulation desk\n")
	c.printf("Available commands:\n")
	c.printf("  Books: add book, list books, search book, update book, delete book, regenerate barcode\n")
	c.printf("  Categories: tag book, untag book, list categories\n")
	c.printf("  Members: add member, list members, reset password\n")
	c.printf("  Circulation: checkout, return, inventory, loans, history\n")
	c.printf("  Reports: report, overdue\n")
	c.printf("  System: exit\n")
	c.printf("\nTips:\n")
	c.printf("  • Barcodes can be typed or scanned at any barcode prompt\n")
	c.printf("  • Use 'library scan' for continuous scanning without prompts\n")
}

func (c *console) run(ctx context.Context) {
	c.banner()
	for {
		c.printf("\n> ")
		if !c.sc.Scan() {
			return
		}
		cmd := strings.ToLower(strings.TrimSpace(c.sc.Text()))

		switch cmd {
		case "":
		case "add book":
			c.addBook(ctx)
		case "list books":
			c.listBooks(ctx)
		case "search book":
			c.searchBooks(ctx)
		case "update book":
			c.updateBook(ctx)
		case "delete book":
			c.deleteBook(ctx)
		case "regenerate barcode":
			c.regenerateBarcode(ctx)
		case "tag book":
			c.tagBook(ctx, true)
		case "untag book":
			c.tagBook(ctx, false)
		case "list categories":
			c.listCategories(ctx)
		case "add member":
			c.addMember(ctx)
		case "list members":
			c.listMembers(ctx)
		case "reset password":
			c.resetPassword(ctx)
		case "checkout":
			c.checkout(ctx)
		case "return":
			c.returnBook(ctx)
		case "inventory":
			c.inventory(ctx)
		case "loans":
			c.loans(ctx)
		case "history":
			c.history(ctx)
		case "report":
			c.report(ctx)
		case "overdue":
			c.overdue(ctx)
		case "exit", "quit":
			c.printf("Goodbye!\n")
			return
		default:
			c.printf("Unknown command. Type one of the available commands listed above.\n")
		}
	}
}

// ------------------ Books ------------------

func (c *console) readBookFields(current *library.NewBook) (library.NewBook, bool) {
	nb := library.NewBook{}
	if current != nil {
		nb = *current
	}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Title", &nb.Title},
		{"Author", &nb.Author},
		{"ISBN (optional)", &nb.ISBN},
		{"Genre (optional)", &nb.Genre},
		{"Shelf location (optional)", &nb.ShelfLocation},
	}
	for _, f := range fields {
		prompt := f.label + ": "
		if current != nil {
			prompt = fmt.Sprintf("%s [%s]: ", f.label, *f.dst)
		}
		v, ok := c.ask(prompt)
		if !ok {
			return nb, false
		}
		if v != "" || current == nil {
			*f.dst = v
		}
	}
	return nb, true
}

func (c *console) addBook(ctx context.Context) {
	nb, ok := c.readBookFields(nil)
	if !ok {
		return
	}
	book, err := c.mgr.AddBook(ctx, nb)
	if err != nil {
		c.printf("Error adding book: %v\n", err)
		return
	}
	c.printf("Added book ID %d with barcode %s\n", book.ID, book.Barcode)
}

func (c *console) borrowerName(ctx context.Context, b *library.Book) string {
	if b.Available || b.BorrowerID == 0 {
		return ""
	}
	if m, err := c.mgr.GetMember(ctx, b.BorrowerID); err == nil {
		return fmt.Sprintf("%s (ID: %d)", m.Name, m.ID)
	}
	return fmt.Sprintf("ID: %d", b.BorrowerID)
}

func (c *console) printBooks(ctx context.Context, books []*library.Book) {
	c.printf("%-5s %-16s %-30s %-25s %-10s %-25s\n", "ID", "Barcode", "Title", "Author", "Available", "Borrower")
	c.printf("%s\n", strings.Repeat("-", 116))
	for _, b := range books {
		c.printf("%s\n", library.PrettyBook(b, c.borrowerName(ctx, b)))
	}
}

func (c *console) listBooks(ctx context.Context) {
	books, err := c.mgr.GetAllBooks(ctx)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		c.printf("No books in library.\n")
		return
	}
	c.printBooks(ctx, books)
}

func (c *console) searchBooks(ctx context.Context) {
	query, ok := c.ask("Query: ")
	if !ok {
		return
	}
	category, ok := c.ask("Category (optional): ")
	if !ok {
		return
	}
	books, err := c.mgr.ListBooks(ctx, library.BookFilter{Query: query, Category: category})
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		c.printf("No books found matching '%s'.\n", query)
		return
	}
	c.printf("Found %d book(s) matching '%s':\n", len(books), query)
	c.printBooks(ctx, books)
}

func (c *console) updateBook(ctx context.Context) {
	id, ok := c.askID("Book ID: ")
	if !ok {
		return
	}
	book, err := c.mgr.GetBook(ctx, id)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Press Enter to keep a value.\n")
	nb, ok := c.readBookFields(&library.NewBook{
		Title:         book.Title,
		Author:        book.Author,
		ISBN:          book.ISBN,
		Genre:         book.Genre,
		ShelfLocation: book.ShelfLocation,
	})
	if !ok {
		return
	}
	if err := c.mgr.UpdateBook(ctx, id, nb); err != nil {
		c.printf("Error updating book: %v\n", err)
		return
	}
	c.printf("Updated book ID %d\n", id)
}

func (c *console) deleteBook(ctx context.Context) {
	id, ok := c.askID("Book ID: ")
	if !ok {
		return
	}
	err := c.mgr.DeleteBook(ctx, id)
	switch {
	case errors.Is(err, library.ErrOnLoan):
		c.printf("Book %d is checked out. Return it first.\n", id)
	case err != nil:
		c.printf("Error deleting book: %v\n", err)
	default:
		c.printf("Deleted book ID %d\n", id)
	}
}

func (c *console) regenerateBarcode(ctx context.Context) {
	id, ok := c.askID("Book ID: ")
	if !ok {
		return
	}
	code, err := c.mgr.RegenerateBarcode(ctx, id)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Book %d now has barcode %s\n", id, code)
}

func (c *console) tagBook(ctx context.Context, add bool) {
	id, ok := c.askID("Book ID: ")
	if !ok {
		return
	}
	name, ok := c.ask("Category: ")
	if !ok || name == "" {
		return
	}
	var err error
	if add {
		err = c.mgr.TagBook(ctx, id, name)
	} else {
		err = c.mgr.UntagBook(ctx, id, name)
	}
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	cats, err := c.mgr.BookCategories(ctx, id)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	names := make([]string, 0, len(cats))
	for _, cat := range cats {
		names = append(names, cat.Name)
	}
	c.printf("Book %d categories: %s\n", id, strings.Join(names, ", "))
}

func (c *console) listCategories(ctx context.Context) {
	counts, err := c.mgr.CategoryCounts(ctx, 0)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(counts) == 0 {
		c.printf("No categories yet.\n")
		return
	}
	c.printf("%-30s %s\n", "Category", "Books")
	for _, cc := range counts {
		c.printf("%-30s %d\n", cc.Name, cc.Books)
	}
}

// ------------------ Members ------------------

func (c *console) addMember(ctx context.Context) {
	name, ok := c.ask("Name: ")
	if !ok {
		return
	}
	password, err := c.readSecret(fmt.Sprintf("Enter password for %s: ", name))
	if err != nil {
		c.printf("Error reading password: %v\n", err)
		return
	}
	id, err := c.mgr.AddMember(ctx, name, password)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Added member '%s' with ID %d\n", name, id)
}

func (c *console) listMembers(ctx context.Context) {
	members, err := c.mgr.GetAllMembers(ctx)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(members) == 0 {
		c.printf("No members registered.\n")
		return
	}
	c.printf("%-5s %-30s %s\n", "ID", "Name", "Active loans")
	c.printf("%s\n", strings.Repeat("-", 50))
	for _, m := range members {
		loans, err := c.mgr.MemberLoans(ctx, m.ID, true)
		active := "?"
		if err == nil {
			active = strconv.Itoa(len(loans))
		}
		c.printf("%-5d %-30s %s\n", m.ID, m.Name, active)
	}
}

func (c *console) resetPassword(ctx context.Context) {
	id, ok := c.askID("Member ID: ")
	if !ok {
		return
	}
	member, err := c.mgr.GetMember(ctx, id)
	if err != nil {
		c.printf("Error: Member with ID %d not found\n", id)
		return
	}
	password, err := c.readSecret(fmt.Sprintf("Enter new password for %s (ID: %d): ", member.Name, id))
	if err != nil {
		c.printf("Error reading password: %v\n", err)
		return
	}
	if err := c.mgr.ResetMemberPassword(ctx, id, password); err != nil {
		c.printf("Error resetting password: %v\n", err)
		return
	}
	c.printf("Password successfully reset for %s (ID: %d)\n", member.Name, id)
}

// ------------------ Circulation ------------------

func (c *console) checkout(ctx context.Context) {
	code, ok := c.ask("Scan barcode: ")
	if !ok {
		return
	}
	memberID, ok := c.askID("Member ID: ")
	if !ok {
		return
	}
	password, err := c.readSecret("Member password: ")
	if err != nil {
		c.printf("Error reading password: %v\n", err)
		return
	}
	if err := c.mgr.AuthenticateMember(ctx, memberID, password); err != nil {
		c.printf("Authentication failed: %v\n", err)
		return
	}

	res, err := c.svc.Checkout(ctx, code, memberID, c.actor)
	if err != nil {
		c.printf("✗ %s\n", circulation.Message(err))
		return
	}
	c.printf("✓ '%s' checked out to member %d, due %s\n",
		res.Item.Title, memberID, res.Loan.DueAt.Local().Format("2006-01-02"))
}

func (c *console) returnBook(ctx context.Context) {
	code, ok := c.ask("Scan barcode: ")
	if !ok {
		return
	}
	res, err := c.svc.Return(ctx, code, c.actor)
	if err != nil {
		c.printf("✗ %s\n", circulation.Message(err))
		return
	}
	late := ""
	if res.Loan.ReturnedAt != nil && res.Loan.ReturnedAt.After(res.Loan.DueAt) {
		late = " (late)"
	}
	c.printf("✓ '%s' returned by member %d%s\n", res.Item.Title, res.Loan.MemberID, late)
}

func (c *console) inventory(ctx context.Context) {
	code, ok := c.ask("Scan barcode: ")
	if !ok {
		return
	}
	res, err := c.svc.Inventory(ctx, code, c.actor)
	if err != nil {
		c.printf("✗ %s\n", circulation.Message(err))
		return
	}
	b := res.Item
	c.printf("ID:        %d\n", b.ID)
	c.printf("Title:     %s\n", b.Title)
	c.printf("Author:    %s\n", b.Author)
	c.printf("Shelf:     %s\n", b.ShelfLocation)
	if b.Available {
		c.printf("Status:    available\n")
	} else {
		c.printf("Status:    checked out to %s\n", c.borrowerName(ctx, b))
	}
}

func (c *console) loans(ctx context.Context) {
	id, ok := c.askID("Member ID: ")
	if !ok {
		return
	}
	loans, err := c.mgr.MemberLoans(ctx, id, false)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(loans) == 0 {
		c.printf("No loans for member %d.\n", id)
		return
	}
	now := time.Now()
	c.printf("%-6s %-6s %-12s %-12s %s\n", "Loan", "Book", "Issued", "Due", "Status")
	for _, l := range loans {
		status := string(l.Status)
		if l.Overdue(now) {
			status = "overdue"
		}
		c.printf("%-6d %-6d %-12s %-12s %s\n", l.ID, l.BookID,
			l.IssuedAt.Local().Format("2006-01-02"), l.DueAt.Local().Format("2006-01-02"), status)
	}
}

func (c *console) history(ctx context.Context) {
	id, ok := c.askID("Book ID: ")
	if !ok {
		return
	}
	entries, err := c.mgr.ScanHistory(ctx, id, 20)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(entries) == 0 {
		c.printf("No scans recorded for book %d.\n", id)
		return
	}
	for _, e := range entries {
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		c.printf("%s  %-10s %s\n", e.ScannedAt.Local().Format("2006-01-02 15:04"), e.Kind, actor)
	}
}

// ------------------ Reports ------------------

func (c *console) report(ctx context.Context) {
	now := time.Now()
	sum, err := c.mgr.Summary(ctx, now)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Books:        %d (%d available, %d checked out)\n", sum.TotalBooks, sum.Available, sum.CheckedOut)
	c.printf("Members:      %d\n", sum.Members)
	c.printf("Active loans: %d (%d overdue)\n", sum.ActiveLoans, sum.OverdueLoans)

	if cats, err := c.mgr.CategoryCounts(ctx, 5); err == nil && len(cats) > 0 {
		c.printf("\nTop categories:\n")
		for _, cc := range cats {
			c.printf("  %-28s %d\n", cc.Name, cc.Books)
		}
	}
	if activity, err := c.mgr.ScanActivity(ctx, now.Add(-7*24*time.Hour)); err == nil && len(activity) > 0 {
		c.printf("\nScans in the last 7 days:\n")
		for _, a := range activity {
			c.printf("  %-28s %d\n", a.Kind, a.Count)
		}
	}
}

func (c *console) overdue(ctx context.Context) {
	rows, err := c.mgr.OverdueLoans(ctx, time.Now())
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if len(rows) == 0 {
		c.printf("Nothing overdue.\n")
		return
	}
	c.printf("%-16s %-30s %-20s %s\n", "Barcode", "Title", "Member", "Days late")
	for _, r := range rows {
		c.printf("%-16s %-30s %-20s %d\n", r.Barcode, r.Title, fmt.Sprintf("%s (%d)", r.MemberName, r.MemberID), r.DaysOverdue)
	}
}
