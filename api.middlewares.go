package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// MiddlewareFunc is a custom type for ease of use.
type MiddlewareFunc func(httprouter.Handle) httprouter.Handle

// Middlewares is a custom type to represent a stack of
// middleware functions used to build a single chain.
type Middlewares []MiddlewareFunc

// MiddlewareMap holds the chains applied to each group of routes.
type MiddlewareMap struct {
	public   func(httprouter.Handle) httprouter.Handle
	auth     func(httprouter.Handle) httprouter.Handle
	books    func(httprouter.Handle) httprouter.Handle
	ops      func(httprouter.Handle) httprouter.Handle
	// fallback wraps the router's own handlers (not found, automatic OPTIONS).
	fallback func(httprouter.Handle) httprouter.Handle
}

// MiddlewaresStacks builds the stacks of middlewares for public, auth, books
// and ops routes. They all share the same base stack.
func (api *APIHandler) MiddlewaresStacks() (*Middlewares, *Middlewares, *Middlewares, *Middlewares) {
	base := api.baseMiddlewares

	public := append(base(), api.MaintenanceModeMiddleware)
	auth := append(base(), api.MaintenanceModeMiddleware, api.RateLimitMiddleware)
	books := append(base(), api.MaintenanceModeMiddleware, api.BearerAuthMiddleware)
	ops := append(base(), api.OpsBasicAuthMiddleware)
	return &public, &auth, &books, &ops
}

// baseMiddlewares is the stack shared by every route group.
func (api *APIHandler) baseMiddlewares() Middlewares {
	return Middlewares{
		api.RequestsCounterMiddleware,
		api.RequestIDMiddleware,
		api.StatsMiddleware,
		api.CoreMiddleware,
		api.PanicRecoveryMiddleware,
		api.CORSMiddleware,
	}
}

// NewMiddlewareMap builds the chains of all route groups.
func (api *APIHandler) NewMiddlewareMap() *MiddlewareMap {
	public, auth, books, ops := api.MiddlewaresStacks()
	fallback := api.baseMiddlewares()
	return &MiddlewareMap{
		public:   public.Chain,
		auth:     auth.Chain,
		books:    books.Chain,
		ops:      ops.Chain,
		fallback: fallback.Chain,
	}
}

// WrapHandler runs a plain http.Handler behind a chain of middlewares.
func WrapHandler(chain func(httprouter.Handle) httprouter.Handle, h http.Handler) http.Handler {
	handle := chain(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(w, r, nil)
	})
}

// CoreMiddleware logs each request then its duration and result.
func (api *APIHandler) CoreMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := api.clock.Now()
		requestID := GetValueFromContext(r.Context(), ContextRequestID)

		api.logger.Info(
			"request",
			zap.String("request.id", requestID),
			zap.Uint64("request.num", GetRequestNumberFromContext(r.Context())),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
			zap.String("request.ip", GetRequestSourceIP(r)),
			zap.String("request.agent", r.UserAgent()),
			zap.String("request.referer", r.Referer()),
		)

		next(w, r, ps)

		fields := []zap.Field{
			zap.String("request.id", requestID),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
			zap.Duration("request.duration", api.clock.Now().Sub(start)),
		}
		if cw, ok := w.(*CustomResponseWriter); ok {
			fields = append(fields, zap.Int("response.status", cw.Status()), zap.Int("response.bytes", cw.Bytes()))
		}
		api.logger.Info("response", fields...)
	}
}

// RequestsCounterMiddleware increments the number of received requests statistics and add this
// new value to the request context to be used during logging as `request.num` field.
func (api *APIHandler) RequestsCounterMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), ContextRequestNumber, atomic.AddUint64(&api.stats.called, 1))
		next(w, r.WithContext(ctx), ps)
	}
}

// RequestIDMiddleware attaches a unique id to the request context and to the response
// headers. A well formed id sent by the client is reused.
func (api *APIHandler) RequestIDMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := r.Header.Get(RequestIDHeader)
		if !api.idsHandler.IsValid(requestID, RequestIDPrefix) {
			requestID = api.idsHandler.Generate(RequestIDPrefix)
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), ContextRequestID, requestID)
		next(w, r.WithContext(ctx), ps)
	}
}

// StatsMiddleware wraps the response writer to record the status code of each
// request into the statistics.
func (api *APIHandler) StatsMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		cw := NewCustomResponseWriter(w, GetConnFromContext(r.Context()))
		next(cw, r, ps)
		api.stats.mu.Lock()
		api.stats.status[cw.Status()]++
		api.stats.mu.Unlock()
	}
}

// setCORSHeaders applies the cors headers on the response.
func (api *APIHandler) setCORSHeaders(w http.ResponseWriter) {
	origin := "*"
	if api.config != nil && api.config.Server.AllowedOrigin != "" {
		origin = api.config.Server.AllowedOrigin
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
}

// CORSMiddleware intercepts each incoming HTTP calls then apply cors headers on it.
func (api *APIHandler) CORSMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		api.setCORSHeaders(w)
		next(w, r, ps)
	}
}

// Preflight answers the automatic OPTIONS requests of the router.
func (api *APIHandler) Preflight() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

// PanicRecoveryMiddleware catches any panic during the request lifecycle and produces
// an error log for further analysis. It sends a failure response to the client with 500.
func (api *APIHandler) PanicRecoveryMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetValueFromContext(r.Context(), ContextRequestID)
				api.logger.Error("panic occurred", zap.String("request.id", requestID), zap.Any("error", err), zap.Stack("stack"))
				api.sendError(r.Context(), w, requestID, http.StatusInternalServerError, "failed to process the request")
			}
		}()
		next(w, r, ps)
	}
}

// MaintenanceModeMiddleware answers 503 with the maintenance message while the mode is enabled.
func (api *APIHandler) MaintenanceModeMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !api.mode.enabled.Load() {
			next(w, r, ps)
			return
		}
		message, _ := api.mode.Details()
		if message == "" {
			message = "service currently unavailable"
		}
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		api.sendError(r.Context(), w, requestID, http.StatusServiceUnavailable, message)
	}
}

// BearerAuthMiddleware resolves the `Authorization: Bearer <token>` header into the
// user id stored in the request context. Any failure answers 401.
func (api *APIHandler) BearerAuthMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			api.logger.Warn("missing or malformed bearer token", zap.String("request.id", requestID))
			api.sendError(r.Context(), w, requestID, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID, err := api.authService.Authenticate(strings.TrimSpace(token))
		if err != nil {
			api.logger.Warn("invalid bearer token", zap.String("request.id", requestID), zap.Error(err))
			api.sendError(r.Context(), w, requestID, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ContextUserID, userID)
		next(w, r.WithContext(ctx), ps)
	}
}

// RateLimitMiddleware answers 429 once the client ip exhausted its token bucket.
func (api *APIHandler) RateLimitMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if api.limiter != nil && !api.limiter.Allow(GetRequestSourceIP(r)) {
			requestID := GetValueFromContext(r.Context(), ContextRequestID)
			api.logger.Warn("rate limit exceeded", zap.String("request.id", requestID), zap.String("request.ip", GetRequestSourceIP(r)))
			w.Header().Set("Retry-After", "1")
			api.sendError(r.Context(), w, requestID, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r, ps)
	}
}

// OpsBasicAuthMiddleware protects ops routes with the configured credentials.
// Ops routes are always refused when no credentials are configured.
func (api *APIHandler) OpsBasicAuthMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user, pass, ok := r.BasicAuth()
		expectedUser, expectedPass := api.config.Ops.Username, api.config.Ops.Password
		if !ok || expectedUser == "" || expectedPass == "" ||
			subtle.ConstantTimeCompare([]byte(user), []byte(expectedUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(expectedPass)) != 1 {
			requestID := GetValueFromContext(r.Context(), ContextRequestID)
			api.logger.Warn("ops access denied", zap.String("request.id", requestID), zap.String("request.ip", GetRequestSourceIP(r)))
			w.Header().Set("WWW-Authenticate", `Basic realm="ops", charset="UTF-8"`)
			api.sendError(r.Context(), w, requestID, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, ps)
	}
}

// Chain wraps a given httprouter.Handle with a list of middlewares.
// It does by starting from the last middleware from the list.
func (m *Middlewares) Chain(h httprouter.Handle) httprouter.Handle {
	if len(*m) == 0 {
		return h
	}
	lg := len(*m)
	handle := (*m)[lg-1](h)

	for i := lg - 2; i >= 0; i-- {
		handle = (*m)[i](handle)
	}

	return handle
}
