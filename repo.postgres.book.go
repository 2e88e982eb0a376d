package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const bookColumns = `id, book_name, author, publisher, subject, publication_year, owner_id, created_at, updated_at`

type postgresBookStorage struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
// Every query filters on the owner so records of other users are never reached.
func NewPostgresBookStorage(logger *zap.Logger, db *sql.DB) BookStorage {
	return &postgresBookStorage{
		logger: logger,
		db:     db,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner, book *Book) error {
	return row.Scan(
		&book.ID,
		&book.BookName,
		&book.Author,
		&book.Publisher,
		&book.Subject,
		&book.PublicationYear,
		&book.OwnerID,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
}

// Add inserts a new book record and fills its id and timestamps.
func (ps *postgresBookStorage) Add(ctx context.Context, book *Book) error {
	query := `
		INSERT INTO books (book_name, author, publisher, subject, publication_year, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + bookColumns

	row := ps.db.QueryRowContext(ctx, query,
		book.BookName, book.Author, book.Publisher, book.Subject, book.PublicationYear, book.OwnerID)
	if err := scanBook(row, book); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetOne retrieves a book record owned by ownerID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, ownerID, id int64) (Book, error) {
	var book Book
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 AND owner_id = $2`
	err := scanBook(ps.db.QueryRowContext(ctx, query, id, ownerID), &book)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// Update applies the provided fields to a book owned by ownerID and returns the stored row.
func (ps *postgresBookStorage) Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error) {
	var book Book
	query := `
		UPDATE books SET
			book_name = COALESCE($3, book_name),
			author = COALESCE($4, author),
			publisher = COALESCE($5, publisher),
			subject = COALESCE($6, subject),
			publication_year = COALESCE($7, publication_year),
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + bookColumns

	row := ps.db.QueryRowContext(ctx, query,
		id, ownerID, in.BookName, in.Author, in.Publisher, in.Subject, in.PublicationYear)
	err := scanBook(row, &book)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// Delete removes a book record owned by ownerID.
func (ps *postgresBookStorage) Delete(ctx context.Context, ownerID, id int64) error {
	result, err := ps.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if rows == 0 {
		return ErrBookNotFound
	}
	return nil
}

// List returns the owner's books count and one page of them, newest first. Both
// reads share a snapshot so the total always agrees with the page.
func (ps *postgresBookStorage) List(ctx context.Context, ownerID int64, page, limit int) (int, []Book, error) {
	tx, err := ps.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, nil, fmt.Errorf("list books: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int
	if err = tx.QueryRowContext(ctx, `SELECT count(*) FROM books WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count books: %w", err)
	}

	query := `
		SELECT ` + bookColumns + ` FROM books
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := tx.QueryContext(ctx, query, ownerID, limit, (page-1)*limit)
	if err != nil {
		return 0, nil, fmt.Errorf("list books: %w", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return 0, nil, fmt.Errorf("list books: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("list books: %w", err)
	}
	return total, books, nil
}

// Search returns every owned book where one of the text fields or the
// publication year contains query, ignoring case.
func (ps *postgresBookStorage) Search(ctx context.Context, ownerID int64, query string) ([]Book, error) {
	pattern := "%" + EscapeLikePattern(query) + "%"
	stmt := `
		SELECT ` + bookColumns + ` FROM books
		WHERE owner_id = $1 AND (
			book_name ILIKE $2 ESCAPE '\'
			OR author ILIKE $2 ESCAPE '\'
			OR publisher ILIKE $2 ESCAPE '\'
			OR subject ILIKE $2 ESCAPE '\'
			OR CAST(publication_year AS TEXT) ILIKE $2 ESCAPE '\'
		)
		ORDER BY created_at DESC, id DESC`
	rows, err := ps.db.QueryContext(ctx, stmt, ownerID, pattern)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return books, nil
}

func collectBooks(rows *sql.Rows) ([]Book, error) {
	defer rows.Close()
	books := []Book{}
	for rows.Next() {
		var book Book
		if err := scanBook(rows, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
