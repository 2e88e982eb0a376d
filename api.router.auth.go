package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupAuthRoutes injects the account endpoints. They are rate limited per client ip.
func (api *APIHandler) SetupAuthRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.POST("/auth/signup", m.auth(api.Signup))
	router.POST("/auth/verify", m.auth(api.VerifyEmail))
	router.POST("/auth/resend-verification", m.auth(api.ResendVerification))
	router.POST("/auth/login", m.auth(api.Login))
	return router
}
