package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
)

var (
	ErrBookNotFound            = errors.New("book not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailTaken              = errors.New("email already registered")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrEmailNotVerified        = errors.New("email not verified")
	ErrInvalidVerificationCode = errors.New("invalid email or verification code")
	ErrAlreadyVerified         = errors.New("email already verified")
	ErrInvalidToken            = errors.New("invalid token")
)

type (
	ContextKey        string
	missingFieldError string
	invalidFieldError string
)

const (
	RequestIDPrefix         string     = "r"
	RequestIDHeader         string     = "X-Request-ID"
	AbortedHeader           string     = "X-BSAP-ABORTED"
	ContextRequestID        ContextKey = "request.id"
	ContextRequestNumber    ContextKey = "request.number"
	ContextUserID           ContextKey = "user.id"
	ConnContextKey          ContextKey = "http-conn"
	maxRequestBodySize      int64      = 1 << 20
	defaultRequestedPageNum int        = 1
)

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

func (i invalidFieldError) Error() string {
	return string(i)
}

// IsValidationError reports whether err must be answered as a client fault.
func IsValidationError(err error) bool {
	var m missingFieldError
	var i invalidFieldError
	return errors.As(err, &m) || errors.As(err, &i)
}

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val := ctx.Value(contextKey); val != nil {
		return val.(string)
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val := ctx.Value(ContextRequestNumber); val != nil {
		return val.(uint64)
	}
	return 0
}

// GetUserIDFromContext returns the authenticated user id set by the bearer
// middleware. The boolean is false when the request was not authenticated.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ContextUserID).(int64)
	return id, ok && id > 0
}

// DecodeJSONBody reads a single json object from the request body into dst.
// Unknown fields are rejected when strict is true.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, strict bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		return invalidFieldError("request body must not be empty")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxError):
			return invalidFieldError(fmt.Sprintf("body contains badly-formed json at character %d", syntaxError.Offset))
		case errors.Is(err, io.ErrUnexpectedEOF):
			return invalidFieldError("body contains badly-formed json")
		case errors.As(err, &typeError):
			if typeError.Field != "" {
				return invalidFieldError(fmt.Sprintf("%s has an invalid type", typeError.Field))
			}
			return invalidFieldError("body contains a value of invalid type")
		case errors.Is(err, io.EOF):
			return invalidFieldError("request body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return invalidFieldError(fmt.Sprintf("%s is not an allowed field", field))
		case errors.As(err, &maxBytesError):
			return invalidFieldError(fmt.Sprintf("body must not be larger than %d bytes", maxBytesError.Limit))
		default:
			return err
		}
	}

	if err = dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidFieldError("body must only contain a single json object")
	}
	return nil
}

// ParseBookID reads the book id path value. Only positive integers are accepted.
func ParseBookID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, invalidFieldError("book id must be a positive integer")
	}
	return id, nil
}

// ParsePagination reads `page` and `limit` query values. Missing values fall
// back to defaults and a limit above max is clamped.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	page, err := readPositiveInt(q.Get("page"), "page", defaultRequestedPageNum)
	if err != nil {
		return 0, 0, err
	}
	limit, err := readPositiveInt(q.Get("limit"), "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

func readPositiveInt(raw, key string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, invalidFieldError(key + " must be a positive integer")
	}
	return v, nil
}

// EscapeLikePattern escapes LIKE wildcards so the input matches as a literal substring.
func EscapeLikePattern(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// SaveConnInContext is the hook used by the server under ConnContext.
// It sets the underlying connection into the request context for later
// use by ReadDeadline or WriteDeadline method on *CustomResponseWriter.
func SaveConnInContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, ConnContextKey, c)
}

// GetConnFromContext returns the connection saved into the context.
func GetConnFromContext(ctx context.Context) net.Conn {
	if c, ok := ctx.Value(ConnContextKey).(net.Conn); ok {
		return c
	}
	return nil
}
