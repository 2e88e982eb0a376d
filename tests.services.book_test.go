package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBookServiceAdd(t *testing.T) {
	t.Run("stores trimmed input then publishes the event", func(t *testing.T) {
		queue := &MockQueuer{}
		storage := &MockBookStorage{
			AddFunc: func(ctx context.Context, book *Book) error {
				book.ID = 42
				return nil
			},
		}
		bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, queue)
		book, err := bs.Add(context.Background(), 7, CreateBookInput{BookName: "  Dune ", Author: "Frank Herbert"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), book.ID)
		assert.Equal(t, "Dune", book.BookName)
		assert.Equal(t, int64(7), book.OwnerID)

		items := queue.Items()
		require.Len(t, items, 1)
		assert.Equal(t, BookCreateQueue, items[0].QID)
		var event BookEvent
		require.NoError(t, json.Unmarshal(items[0].Payload, &event))
		assert.Equal(t, int64(42), event.BookID)
		assert.Equal(t, int64(7), event.OwnerID)
		require.NotNil(t, event.Book)
		assert.Equal(t, "Dune", event.Book.BookName)
	})

	t.Run("rejects invalid input without touching the store", func(t *testing.T) {
		storage := &MockBookStorage{
			AddFunc: func(ctx context.Context, book *Book) error {
				t.Fatal("store must not be called")
				return nil
			},
		}
		bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, &MockQueuer{})

		_, err := bs.Add(context.Background(), 7, CreateBookInput{BookName: "D", Author: "Frank Herbert"})
		assert.True(t, IsValidationError(err))
		assert.EqualError(t, err, "bookName must be at least 2 characters")

		_, err = bs.Add(context.Background(), 7, CreateBookInput{BookName: "Dune", Author: "   "})
		assert.EqualError(t, err, "author is required")

		_, err = bs.Add(context.Background(), 7, CreateBookInput{BookName: "Dune", Author: "FH", PublicationYear: intPtr(999)})
		assert.EqualError(t, err, "publicationYear must be greater than or equal to 1000")
	})

	t.Run("queue failure does not fail the request", func(t *testing.T) {
		storage := &MockBookStorage{
			AddFunc: func(ctx context.Context, book *Book) error { return nil },
		}
		bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, &MockQueuer{PushErr: errors.New("redis down")})
		_, err := bs.Add(context.Background(), 7, CreateBookInput{BookName: "Dune", Author: "Frank Herbert"})
		assert.NoError(t, err)
	})
}

func TestBookServiceUpdate(t *testing.T) {
	queue := &MockQueuer{}
	storage := &MockBookStorage{
		UpdateFunc: func(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error) {
			if ownerID != 7 {
				return Book{}, ErrBookNotFound
			}
			book := testBook(id, ownerID)
			book.Author = *in.Author
			return book, nil
		},
	}
	bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, queue)

	book, err := bs.Update(context.Background(), 7, 1, UpdateBookInput{Author: strPtr(" F. Herbert ")})
	require.NoError(t, err)
	assert.Equal(t, "F. Herbert", book.Author)
	require.Len(t, queue.Items(), 1)
	assert.Equal(t, BookUpdateQueue, queue.Items()[0].QID)

	_, err = bs.Update(context.Background(), 8, 1, UpdateBookInput{Author: strPtr("Someone")})
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Len(t, queue.Items(), 1)

	_, err = bs.Update(context.Background(), 7, 1, UpdateBookInput{})
	assert.EqualError(t, err, "at least one field must be provided")
}

func TestBookServiceDelete(t *testing.T) {
	queue := &MockQueuer{}
	storage := &MockBookStorage{
		DeleteFunc: func(ctx context.Context, ownerID, id int64) error {
			if id != 1 {
				return ErrBookNotFound
			}
			return nil
		},
	}
	bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, queue)
	assert.NoError(t, bs.Delete(context.Background(), 7, 1))
	assert.ErrorIs(t, bs.Delete(context.Background(), 7, 2), ErrBookNotFound)

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, BookDeleteQueue, items[0].QID)
	var event BookEvent
	require.NoError(t, json.Unmarshal(items[0].Payload, &event))
	assert.Nil(t, event.Book)
	assert.Equal(t, int64(1), event.BookID)
}

func TestBookServiceListAndSearch(t *testing.T) {
	var gotQuery string
	storage := &MockBookStorage{
		ListFunc: func(ctx context.Context, ownerID int64, page, limit int) (int, []Book, error) {
			return 12, []Book{testBook(1, ownerID)}, nil
		},
		SearchFunc: func(ctx context.Context, ownerID int64, query string) ([]Book, error) {
			gotQuery = query
			return []Book{}, nil
		},
	}
	bs := NewBookService(zap.NewNop(), testConfig(), NewMockClocker(), storage, &MockQueuer{})

	page, err := bs.List(context.Background(), 7, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Books, 1)

	_, err = bs.List(context.Background(), 7, 0, 5)
	assert.True(t, IsValidationError(err))
	_, err = bs.List(context.Background(), 7, 1, 0)
	assert.True(t, IsValidationError(err))

	books, err := bs.Search(context.Background(), 7, "dune ")
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Equal(t, "dune ", gotQuery)
}
