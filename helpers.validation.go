package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks request payloads against their `validate` tags and
// reports the first violation using the json name of the field.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s and converts the first failure into a readable client error.
func (vl *Validator) Struct(s interface{}) error {
	err := vl.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return fieldErrorMessage(verrs[0])
}

func fieldErrorMessage(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return missingFieldError(field)
	case "min":
		if isNumericKind(fe.Kind()) {
			return invalidFieldError(fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param()))
		}
		return invalidFieldError(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		if isNumericKind(fe.Kind()) {
			return invalidFieldError(fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param()))
		}
		return invalidFieldError(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "len":
		return invalidFieldError(fmt.Sprintf("%s must be exactly %s characters", field, fe.Param()))
	case "email":
		return invalidFieldError(field + " must be a valid email")
	case "numeric":
		return invalidFieldError(field + " must only contain digits")
	default:
		return invalidFieldError(fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
	}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ValidateCreateBookInput checks a book creation payload. Required text
// fields are trimmed before being checked.
func (vl *Validator) ValidateCreateBookInput(in *CreateBookInput) error {
	in.BookName = strings.TrimSpace(in.BookName)
	in.Author = strings.TrimSpace(in.Author)
	return vl.Struct(in)
}

// ValidateUpdateBookInput checks a partial update payload. At least one field must be set.
func (vl *Validator) ValidateUpdateBookInput(in *UpdateBookInput) error {
	if in.IsEmpty() {
		return invalidFieldError("at least one field must be provided")
	}
	if in.BookName != nil {
		s := strings.TrimSpace(*in.BookName)
		in.BookName = &s
	}
	if in.Author != nil {
		s := strings.TrimSpace(*in.Author)
		in.Author = &s
	}
	return vl.Struct(in)
}
