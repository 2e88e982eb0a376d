package main

import (
	"context"
	"time"
)

// User represents a registered account.
type User struct {
	ID               int64     `json:"id"`
	Firstname        string    `json:"firstname"`
	Lastname         string    `json:"lastname"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	VerificationCode string    `json:"-"`
	IsVerified       bool      `json:"isVerified"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type SignupInput struct {
	Firstname string `json:"firstname" validate:"required,min=1"`
	Lastname  string `json:"lastname" validate:"required,min=1"`
	Email     string `json:"email" validate:"required,email"`
	// max counts runes; multi-byte passwords over bcrypt's 72 bytes are refused when hashed.
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

type VerifyInput struct {
	Email            string `json:"email" validate:"required,email"`
	VerificationCode string `json:"verificationCode" validate:"required,len=6,numeric"`
}

type ResendInput struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is sent back on successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// VerificationMail is pushed onto the mails queue and delivered by the mail consumer.
type VerificationMail struct {
	To        string `json:"to"`
	Firstname string `json:"firstname"`
	Code      string `json:"code"`
}

// UserStorage defines possible operations on user entity.
type UserStorage interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	SetVerificationCode(ctx context.Context, id int64, code string) error
	MarkVerified(ctx context.Context, id int64) error
}
