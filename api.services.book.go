package main

import (
	"context"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	Add(ctx context.Context, ownerID int64, in CreateBookInput) (Book, error)
	GetOne(ctx context.Context, ownerID, id int64) (Book, error)
	Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error)
	Delete(ctx context.Context, ownerID, id int64) error
	List(ctx context.Context, ownerID int64, page, limit int) (BooksPage, error)
	Search(ctx context.Context, ownerID int64, query string) ([]Book, error)
}

type BookService struct {
	logger    *zap.Logger
	config    *Config
	clock     Clocker
	validator *Validator
	storage   BookStorage
	queue     Queuer
}

func NewBookService(logger *zap.Logger, config *Config, clock Clocker, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:    logger,
		config:    config,
		clock:     clock,
		validator: NewValidator(),
		storage:   storage,
		queue:     queue,
	}
}

// publish pushes a book event once the mutation is committed. A failure
// only affects the backup replica so it is logged and swallowed.
func (bs *BookService) publish(ctx context.Context, qid string, ownerID, id int64, book *Book) {
	event := BookEvent{BookID: id, OwnerID: ownerID, Book: book, At: bs.clock.Now()}
	if err := bs.queue.Push(ctx, qid, event); err != nil {
		bs.logger.Error("service: failed to push book event to queue",
			zap.String("qid", qid),
			zap.Int64("book.id", id),
			zap.Int64("user.id", ownerID),
			zap.Error(err),
		)
	}
}

func (bs *BookService) Add(ctx context.Context, ownerID int64, in CreateBookInput) (Book, error) {
	if err := bs.validator.ValidateCreateBookInput(&in); err != nil {
		return Book{}, err
	}
	book := Book{
		BookName:        in.BookName,
		Author:          in.Author,
		Publisher:       in.Publisher,
		Subject:         in.Subject,
		PublicationYear: in.PublicationYear,
		OwnerID:         ownerID,
	}
	if err := bs.storage.Add(ctx, &book); err != nil {
		return Book{}, err
	}
	bs.publish(ctx, BookCreateQueue, ownerID, book.ID, &book)
	return book, nil
}

func (bs *BookService) GetOne(ctx context.Context, ownerID, id int64) (Book, error) {
	return bs.storage.GetOne(ctx, ownerID, id)
}

func (bs *BookService) Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error) {
	if err := bs.validator.ValidateUpdateBookInput(&in); err != nil {
		return Book{}, err
	}
	book, err := bs.storage.Update(ctx, ownerID, id, in)
	if err != nil {
		return Book{}, err
	}
	bs.publish(ctx, BookUpdateQueue, ownerID, id, &book)
	return book, nil
}

func (bs *BookService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := bs.storage.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	bs.publish(ctx, BookDeleteQueue, ownerID, id, nil)
	return nil
}

// List returns one page of the owner's collection. Page and limit must already be positive.
func (bs *BookService) List(ctx context.Context, ownerID int64, page, limit int) (BooksPage, error) {
	if page < 1 {
		return BooksPage{}, invalidFieldError("page must be a positive integer")
	}
	if limit < 1 {
		return BooksPage{}, invalidFieldError("limit must be a positive integer")
	}
	total, books, err := bs.storage.List(ctx, ownerID, page, limit)
	if err != nil {
		return BooksPage{}, err
	}
	return BooksPage{Total: total, Page: page, Books: books}, nil
}

// Search passes query to the storage as is: surrounding spaces are part of the substring.
func (bs *BookService) Search(ctx context.Context, ownerID int64, query string) ([]Book, error) {
	return bs.storage.Search(ctx, ownerID, query)
}
