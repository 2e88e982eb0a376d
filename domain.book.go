package main

import (
	"context"
	"time"
)

// Book represents a book record owned by exactly one user.
type Book struct {
	ID              int64     `json:"id"`
	BookName        string    `json:"bookName"`
	Author          string    `json:"author"`
	Publisher       *string   `json:"publisher"`
	Subject         *string   `json:"subject"`
	PublicationYear *int      `json:"publicationYear"`
	OwnerID         int64     `json:"ownerId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CreateBookInput is the payload accepted on book creation.
type CreateBookInput struct {
	BookName        string  `json:"bookName" validate:"required,min=2"`
	Author          string  `json:"author" validate:"required,min=2"`
	Publisher       *string `json:"publisher" validate:"omitempty,min=2"`
	Subject         *string `json:"subject"`
	PublicationYear *int    `json:"publicationYear" validate:"omitempty,min=1000,max=9999"`
}

// UpdateBookInput is the partial payload accepted on book update.
// A nil field is left untouched by the store.
type UpdateBookInput struct {
	BookName        *string `json:"bookName" validate:"omitempty,min=2"`
	Author          *string `json:"author" validate:"omitempty,min=2"`
	Publisher       *string `json:"publisher" validate:"omitempty,min=2"`
	Subject         *string `json:"subject"`
	PublicationYear *int    `json:"publicationYear" validate:"omitempty,min=1000,max=9999"`
}

// IsEmpty reports whether no updatable field was provided.
func (in UpdateBookInput) IsEmpty() bool {
	return in.BookName == nil && in.Author == nil && in.Publisher == nil &&
		in.Subject == nil && in.PublicationYear == nil
}

// BooksPage is one page of an owner's collection.
type BooksPage struct {
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Books []Book `json:"books"`
}

// BookEvent is pushed onto the queue after a committed book mutation.
type BookEvent struct {
	BookID  int64     `json:"bookId"`
	OwnerID int64     `json:"ownerId"`
	Book    *Book     `json:"book,omitempty"`
	At      time.Time `json:"at"`
}

// BookStorage defines owner-scoped operations on book entity.
type BookStorage interface {
	Add(ctx context.Context, book *Book) error
	GetOne(ctx context.Context, ownerID, id int64) (Book, error)
	Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error)
	Delete(ctx context.Context, ownerID, id int64) error
	List(ctx context.Context, ownerID int64, page, limit int) (int, []Book, error)
	Search(ctx context.Context, ownerID int64, query string) ([]Book, error)
}

// BookBackup defines operations on the books replica.
type BookBackup interface {
	Save(ctx context.Context, book Book) error
	Get(ctx context.Context, ownerID, id int64) (Book, error)
	Delete(ctx context.Context, ownerID, id int64) error
	GetAllByOwner(ctx context.Context, ownerID int64) ([]Book, error)
}
