package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

func authFailure(err error) (int, string) {
	switch {
	case IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, ErrEmailTaken.Error()
	case errors.Is(err, ErrInvalidVerificationCode):
		return http.StatusBadRequest, ErrInvalidVerificationCode.Error()
	case errors.Is(err, ErrAlreadyVerified):
		return http.StatusBadRequest, ErrAlreadyVerified.Error()
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, ErrUserNotFound.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrInvalidCredentials.Error()
	case errors.Is(err, ErrEmailNotVerified):
		return http.StatusForbidden, "email not verified. please verify your email first"
	default:
		return http.StatusInternalServerError, "failed to process the request"
	}
}

func (api *APIHandler) authError(w http.ResponseWriter, r *http.Request, requestID, action string, err error) {
	api.logger.Error("failed to "+action, zap.String("request.id", requestID), zap.Error(err))
	status, message := authFailure(err)
	api.sendError(r.Context(), w, requestID, status, message)
}

// Signup registers a new account and mails its verification code.
//
// @Summary register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body SignupInput true "account"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} APIError "Bad Request"
// @Failure 409 {object} APIError "Conflict"
// @Router /auth/signup [post]
func (api *APIHandler) Signup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	var in SignupInput
	if err := DecodeJSONBody(w, r, &in, false); err != nil {
		api.authError(w, r, requestID, "signup", err)
		return
	}

	user, err := api.authService.Signup(r.Context(), in)
	if err != nil {
		api.authError(w, r, requestID, "signup", err)
		return
	}
	api.logger.Info("success to signup", zap.String("request.id", requestID), zap.Int64("user.id", user.ID))
	api.sendResponse(r.Context(), w, requestID, http.StatusCreated,
		MessageResponse{Message: "User registered successfully. Check your email for the verification code."})
}

// @Summary verify the account email
// @Tags auth
// @Accept json
// @Produce json
// @Param body body VerifyInput true "email and code"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} APIError "Bad Request"
// @Router /auth/verify [post]
func (api *APIHandler) VerifyEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	var in VerifyInput
	if err := DecodeJSONBody(w, r, &in, false); err != nil {
		api.authError(w, r, requestID, "verify email", err)
		return
	}

	if err := api.authService.Verify(r.Context(), in); err != nil {
		api.authError(w, r, requestID, "verify email", err)
		return
	}
	api.logger.Info("success to verify email", zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, MessageResponse{Message: "Email verified successfully."})
}

// @Summary send a new verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param body body ResendInput true "account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} APIError "Bad Request"
// @Failure 404 {object} APIError "Not Found"
// @Router /auth/resend-verification [post]
func (api *APIHandler) ResendVerification(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	var in ResendInput
	if err := DecodeJSONBody(w, r, &in, false); err != nil {
		api.authError(w, r, requestID, "resend verification", err)
		return
	}

	if err := api.authService.ResendVerification(r.Context(), in); err != nil {
		api.authError(w, r, requestID, "resend verification", err)
		return
	}
	api.logger.Info("success to resend verification", zap.String("request.id", requestID))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, MessageResponse{Message: "Verification code sent."})
}

// Login trades verified credentials for a bearer token.
//
// @Summary log in with a verified account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginInput true "credentials"
// @Success 200 {object} LoginResult
// @Failure 400 {object} APIError "Bad Request"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 403 {object} APIError "Forbidden"
// @Failure 429 {object} APIError "Too Many Requests"
// @Router /auth/login [post]
func (api *APIHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	var in LoginInput
	if err := DecodeJSONBody(w, r, &in, false); err != nil {
		api.authError(w, r, requestID, "login", err)
		return
	}

	result, err := api.authService.Login(r.Context(), in)
	if err != nil {
		api.authError(w, r, requestID, "login", err)
		return
	}
	api.logger.Info("success to login", zap.String("request.id", requestID), zap.Int64("user.id", result.User.ID))
	api.sendResponse(r.Context(), w, requestID, http.StatusOK, result)
}
