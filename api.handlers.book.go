package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// searchPathValue is the `:id` value routed to the search handler since
// `/books/search` and `/books/:id` share the same path segment.
const searchPathValue = "search"

// bookFailure maps a book service error to its status and client message.
func bookFailure(err error, fallback string) (int, string) {
	switch {
	case IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrBookNotFound):
		return http.StatusNotFound, ErrBookNotFound.Error()
	default:
		return http.StatusInternalServerError, fallback
	}
}

// requireUserID fetches the authenticated user id. It answers 401 and returns false when missing.
func (api *APIHandler) requireUserID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.logger.Error("missing authenticated user", zap.String("request.id", requestID))
		api.sendError(r.Context(), w, requestID, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// GetAllBooks serves one page of the caller's books, newest first.
//
// @Summary list the caller books, newest first
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param page query int false "page number" default(1)
// @Param limit query int false "page size" default(10)
// @Success 200 {object} BooksPage
// @Failure 400 {object} APIError "Bad Request"
// @Failure 401 {object} APIError "Unauthorized"
// @Router /books [get]
//
//nolint:bodyclose
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	if api.config.Server.LongRequestWriteTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(api.config.Server.LongRequestWriteTimeout)); err != nil {
			api.logger.Debug("http: failed to update the write deadline", zap.String("request.id", requestID), zap.Error(err))
		}
	}

	page, limit, err := ParsePagination(r, api.config.Books.DefaultPageLimit, api.config.Books.MaxPageLimit)
	if err != nil {
		api.logger.Error("failed to get all books", zap.String("request.id", requestID), zap.Error(err))
		api.sendError(r.Context(), w, requestID, http.StatusBadRequest, err.Error())
		return
	}

	result, err := api.bookService.List(r.Context(), userID, page, limit)
	if err != nil {
		api.logger.Error("failed to get all books", zap.String("request.id", requestID), zap.Int64("user.id", userID), zap.Error(err))
		status, message := bookFailure(err, "failed to get all books")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to get all books",
		zap.String("request.id", requestID),
		zap.Int64("user.id", userID),
		zap.Int("page", page),
		zap.Int("limit", limit),
		zap.Int("total", result.Total),
	)
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, result)
}

// GetOneBook serves a single book owned by the caller. Books of other users
// are reported exactly like missing ones.
//
// @Summary get a book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path int true "book id"
// @Success 200 {object} Book
// @Failure 404 {object} APIError "Not Found"
// @Router /books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") == searchPathValue {
		api.SearchBooks(w, r, ps)
		return
	}
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.logger.Error("book id provided is not valid", zap.String("book.id", ps.ByName("id")), zap.String("request.id", requestID))
		api.sendError(r.Context(), w, requestID, http.StatusBadRequest, err.Error())
		return
	}

	book, err := api.bookService.GetOne(r.Context(), userID, id)
	if err != nil {
		api.logger.Error("failed to get book", zap.Int64("book.id", id), zap.String("request.id", requestID), zap.Error(err))
		status, message := bookFailure(err, "failed to get the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to get book", zap.Int64("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, book)
}

// CreateBook stores a new book owned by the caller.
//
// @Summary create a book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateBookInput true "book"
// @Success 201 {object} Book
// @Failure 400 {object} APIError "Bad Request"
// @Failure 401 {object} APIError "Unauthorized"
// @Router /books/create [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	var in CreateBookInput
	if err := DecodeJSONBody(w, r, &in, true); err != nil {
		api.logger.Error("failed to create book", zap.String("request.id", requestID), zap.Error(err))
		status, message := bookFailure(err, "failed to create the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}

	book, err := api.bookService.Add(r.Context(), userID, in)
	if err != nil {
		api.logger.Error("failed to create book", zap.String("request.id", requestID), zap.Int64("user.id", userID), zap.Error(err))
		status, message := bookFailure(err, "failed to create the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to create book", zap.Int64("book.id", book.ID), zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusCreated, book)
}

// UpdateBook applies a partial update. Only the book fields are accepted in the body.
//
// @Summary update some fields of a book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "book id"
// @Param body body UpdateBookInput true "fields to update"
// @Success 200 {object} Book
// @Failure 400 {object} APIError "Bad Request"
// @Failure 404 {object} APIError "Not Found"
// @Router /books/update/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.logger.Error("book id provided is not valid", zap.String("book.id", ps.ByName("id")), zap.String("request.id", requestID))
		api.sendError(r.Context(), w, requestID, http.StatusBadRequest, err.Error())
		return
	}

	var in UpdateBookInput
	if err = DecodeJSONBody(w, r, &in, true); err != nil {
		api.logger.Error("failed to update book", zap.Int64("book.id", id), zap.String("request.id", requestID), zap.Error(err))
		status, message := bookFailure(err, "failed to update the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}

	book, err := api.bookService.Update(r.Context(), userID, id, in)
	if err != nil {
		api.logger.Error("failed to update book", zap.Int64("book.id", id), zap.String("request.id", requestID), zap.Error(err))
		status, message := bookFailure(err, "failed to update the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to update book", zap.Int64("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, book)
}

// @Summary delete a book
// @Tags books
// @Security BearerAuth
// @Param id path int true "book id"
// @Success 204
// @Failure 404 {object} APIError "Not Found"
// @Router /books/delete/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.logger.Error("book id provided is not valid", zap.String("book.id", ps.ByName("id")), zap.String("request.id", requestID))
		api.sendError(r.Context(), w, requestID, http.StatusBadRequest, err.Error())
		return
	}

	if err = api.bookService.Delete(r.Context(), userID, id); err != nil {
		api.logger.Error("failed to delete book", zap.Int64("book.id", id), zap.String("request.id", requestID), zap.Error(err))
		status, message := bookFailure(err, "failed to delete the book")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to delete book", zap.Int64("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusNoContent, nil)
}

// SearchBooks serves every owned book matching `q` on any searchable field.
//
// @Summary search the caller books on every text field and the publication year
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param q query string false "case insensitive substring"
// @Success 200 {array} Book
// @Failure 401 {object} APIError "Unauthorized"
// @Router /books/search [get]
func (api *APIHandler) SearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	userID, ok := api.requireUserID(w, r, requestID)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	books, err := api.bookService.Search(r.Context(), userID, query)
	if err != nil {
		api.logger.Error("failed to search books", zap.String("request.id", requestID), zap.String("query", query), zap.Error(err))
		status, message := bookFailure(err, "failed to search books")
		api.sendError(r.Context(), w, requestID, status, message)
		return
	}
	api.logger.Info("success to search books", zap.String("request.id", requestID), zap.String("query", query), zap.Int("count", len(books)))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, books)
}
