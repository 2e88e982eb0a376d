package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// Details returns the message and start time of the current maintenance.
func (m *Maintenance) Details() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.message, m.started
}

func (m *Maintenance) Enable(message string, at time.Time) {
	m.mu.Lock()
	m.message = message
	m.started = at
	m.mu.Unlock()
	m.enabled.Store(true)
}

func (m *Maintenance) Disable() {
	m.enabled.Store(false)
	m.mu.Lock()
	m.message = ""
	m.started = time.Time{}
	m.mu.Unlock()
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger      *zap.Logger
	config      *Config
	stats       *Statistics
	mode        *Maintenance
	clock       Clocker
	idsHandler  UIDHandler
	limiter     *RateLimiter
	bookService BookServiceProvider
	authService AuthServiceProvider
}

// NewAPIHandler provides a new instance of APIHandler.
func NewAPIHandler(
	logger *zap.Logger,
	config *Config,
	stats *Statistics,
	clock Clocker,
	idsHandler UIDHandler,
	limiter *RateLimiter,
	bs BookServiceProvider,
	as AuthServiceProvider,
) *APIHandler {
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:      logger,
		config:      config,
		stats:       stats,
		mode:        &Maintenance{},
		clock:       clock,
		idsHandler:  idsHandler,
		limiter:     limiter,
		bookService: bs,
		authService: as,
	}
}

// sendError writes the error body and logs when the client could not get it.
func (api *APIHandler) sendError(ctx context.Context, w http.ResponseWriter, requestID string, status int, message string) {
	errResp := NewAPIError(requestID, status, message)
	if err := WriteErrorResponse(ctx, w, errResp); err != nil {
		api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// sendResponse writes a successful response and logs when the client could not get it.
func (api *APIHandler) sendResponse(ctx context.Context, w http.ResponseWriter, requestID string, status int, data interface{}) {
	if err := WriteResponse(ctx, w, status, data); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
//
// @Summary service status
// @Tags status
// @Produce json
// @Success 200 {object} map[string]string
// @Router /status [get]
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		map[string]interface{}{
			"requestid": requestID,
			"status":    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
			"message":   "Hello. Bookshelf api is available. Enjoy :)",
		},
	); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// NotFound answers unknown routes with a json error body.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		api.sendError(r.Context(), w, requestID, http.StatusNotFound, "route not found")
	})
}
