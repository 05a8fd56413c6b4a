// Package library is a small library-management web application: a catalog
// of books stored in SQLite, an add-book form and per-row borrowing. It is the
// reference application the browser flows run against.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// LoanPeriod is how long a borrowed book may be kept
const LoanPeriod = 14 * 24 * time.Hour

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrNoCopies      = errors.New("no copies available")
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
)

// Book is a catalog entry
type Book struct {
	ID          int64
	Title       string
	Author      string
	ISBN        string
	TotalCopies int
	Available   int
}

// Loan records one borrowed copy
type Loan struct {
	ID       int64
	BookID   int64
	PatronID string
	Borrowed time.Time
	Due      time.Time
}

// seedBooks is the catalog a fresh database starts with
var seedBooks = []Book{
	{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "9780743273565", TotalCopies: 3},
	{Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "9780061120084", TotalCopies: 2},
	{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", TotalCopies: 4},
	{Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "9780141439518", TotalCopies: 1},
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	isbn TEXT NOT NULL UNIQUE,
	total_copies INTEGER NOT NULL,
	available INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS loans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL REFERENCES books(id),
	patron_id TEXT NOT NULL,
	borrowed_at INTEGER NOT NULL,
	due_at INTEGER NOT NULL
);
`

// Store persists the catalog in a single SQLite file
type Store struct {
	db     *sql.DB
	logger arbor.ILogger
	path   string
}

// OpenStore opens (creating and seeding if needed) the database at path
func OpenStore(logger arbor.ILogger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite registers the "sqlite" driver name
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY between concurrent requests
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, path: path}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := s.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	logger.Info().Str("path", path).Msg("Library database initialized")
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// seed fills an empty catalog
func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, b := range seedBooks {
		if _, err := s.AddBook(ctx, b); err != nil {
			return err
		}
	}
	s.logger.Info().Int("books", len(seedBooks)).Msg("Seed catalog loaded")
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Books lists the catalog in insertion order
func (s *Store) Books(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, author, isbn, total_copies, available FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.Available); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Book returns one catalog entry
func (s *Store) Book(ctx context.Context, id int64) (Book, error) {
	var b Book
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, total_copies, available FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return b, nil
}

// AddBook inserts b with all copies available
func (s *Store) AddBook(ctx context.Context, b Book) (Book, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE isbn = ?`, b.ISBN).Scan(&exists); err != nil {
		return Book{}, fmt.Errorf("failed to check isbn: %w", err)
	}
	if exists > 0 {
		return Book{}, ErrDuplicateISBN
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (title, author, isbn, total_copies, available) VALUES (?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.ISBN, b.TotalCopies, b.TotalCopies)
	if err != nil {
		return Book{}, fmt.Errorf("failed to insert book: %w", err)
	}

	b.ID, err = res.LastInsertId()
	if err != nil {
		return Book{}, fmt.Errorf("failed to read book id: %w", err)
	}
	b.Available = b.TotalCopies
	return b, nil
}

// Borrow lends one copy of book id to patronID, due LoanPeriod after now
func (s *Store) Borrow(ctx context.Context, id int64, patronID string, now time.Time) (Book, Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var b Book
	err = tx.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, total_copies, available FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, Loan{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	if b.Available < 1 {
		return b, Loan{}, ErrNoCopies
	}

	loan := Loan{BookID: id, PatronID: patronID, Borrowed: now, Due: now.Add(LoanPeriod)}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO loans (book_id, patron_id, borrowed_at, due_at) VALUES (?, ?, ?, ?)`,
		id, patronID, loan.Borrowed.Unix(), loan.Due.Unix())
	if err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to record loan: %w", err)
	}
	if loan.ID, err = res.LastInsertId(); err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to read loan id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE books SET available = available - 1 WHERE id = ?`, id); err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to update availability: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Book{}, Loan{}, fmt.Errorf("failed to commit loan: %w", err)
	}

	b.Available--
	return b, loan, nil
}
