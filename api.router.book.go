package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects the book endpoints. They all require a bearer token.
// GET /books/search is served through /books/:id.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/books", m.books(api.GetAllBooks))
	router.GET("/books/:id", m.books(api.GetOneBook))
	router.POST("/books/create", m.books(api.CreateBook))
	router.PUT("/books/update/:id", m.books(api.UpdateBook))
	router.DELETE("/books/delete/:id", m.books(api.DeleteOneBook))
	return router
}
