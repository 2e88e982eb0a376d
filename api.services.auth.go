package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const verificationCodeDigits = 6

type AuthServiceProvider interface {
	Signup(ctx context.Context, in SignupInput) (User, error)
	Verify(ctx context.Context, in VerifyInput) error
	ResendVerification(ctx context.Context, in ResendInput) error
	Login(ctx context.Context, in LoginInput) (LoginResult, error)
	Authenticate(token string) (int64, error)
}

type AuthService struct {
	logger    *zap.Logger
	validator *Validator
	storage   UserStorage
	queue     Queuer
	tokens    TokenManager
	codes     func() (string, error)
	cost      int
}

func NewAuthService(logger *zap.Logger, storage UserStorage, queue Queuer, tokens TokenManager) AuthServiceProvider {
	return &AuthService{
		logger:    logger,
		validator: NewValidator(),
		storage:   storage,
		queue:     queue,
		tokens:    tokens,
		codes:     GenerateVerificationCode,
		cost:      bcrypt.DefaultCost,
	}
}

// GenerateVerificationCode returns a random 6 digits code.
func GenerateVerificationCode() (string, error) {
	upper := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", verificationCodeDigits, n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (as *AuthService) sendCode(ctx context.Context, user User, code string) {
	mail := VerificationMail{To: user.Email, Firstname: user.Firstname, Code: code}
	if err := as.queue.Push(ctx, MailVerifyQueue, mail); err != nil {
		as.logger.Error("service: failed to push verification mail to queue",
			zap.String("qid", MailVerifyQueue),
			zap.Int64("user.id", user.ID),
			zap.Error(err),
		)
	}
}

func (as *AuthService) Signup(ctx context.Context, in SignupInput) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	if err := as.validator.Struct(&in); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), as.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return User{}, invalidFieldError("password must be at most 72 bytes")
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := as.codes()
	if err != nil {
		return User{}, err
	}

	user := User{
		Firstname:        in.Firstname,
		Lastname:         in.Lastname,
		Email:            in.Email,
		PasswordHash:     string(hash),
		VerificationCode: code,
	}
	if err = as.storage.Create(ctx, &user); err != nil {
		return User{}, err
	}
	as.sendCode(ctx, user, code)
	return user, nil
}

func (as *AuthService) Verify(ctx context.Context, in VerifyInput) error {
	in.Email = normalizeEmail(in.Email)
	in.VerificationCode = strings.TrimSpace(in.VerificationCode)
	if err := as.validator.Struct(&in); err != nil {
		return err
	}

	user, err := as.storage.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrUserNotFound) {
		return ErrInvalidVerificationCode
	}
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	if user.VerificationCode == "" || user.VerificationCode != in.VerificationCode {
		return ErrInvalidVerificationCode
	}
	return as.storage.MarkVerified(ctx, user.ID)
}

func (as *AuthService) ResendVerification(ctx context.Context, in ResendInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := as.validator.Struct(&in); err != nil {
		return err
	}

	user, err := as.storage.GetByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	code, err := as.codes()
	if err != nil {
		return err
	}
	if err = as.storage.SetVerificationCode(ctx, user.ID, code); err != nil {
		return err
	}
	as.sendCode(ctx, user, code)
	return nil
}

func (as *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := as.validator.Struct(&in); err != nil {
		return LoginResult{}, err
	}

	user, err := as.storage.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	token, err := as.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to the user id it was issued for.
func (as *AuthService) Authenticate(token string) (int64, error) {
	return as.tokens.Parse(token)
}
