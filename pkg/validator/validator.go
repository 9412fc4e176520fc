package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	patientCodePattern = regexp.MustCompile(`^P\d{3,}$`)
	// Same shape the front-end enforces: local@domain.tld with 2-3 letter TLD parts.
	emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
)

// FieldError is a single field-level violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every violation found on a struct
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Fields returns the offending field names in order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for _, e := range fe {
		names = append(names, e.Field)
	}
	return names
}

// Validator wraps go-playground/validator with the patient tags registered
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Default returns the shared validator instance.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultV = New(time.Now)
	})
	return defaultV
}

// New builds a validator. now is used by the notfuture tag.
func New(now func() time.Time) *Validator {
	v := &Validator{
		validate: validator.New(),
		now:      now,
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v.validate, "patientcode", func(fl validator.FieldLevel) bool {
		return patientCodePattern.MatchString(fl.Field().String())
	})
	mustRegister(v.validate, "patientemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v.validate, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v.validate, "notfuture", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return !t.After(v.now())
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Struct validates s and returns FieldErrors, or nil when s is valid.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := make(FieldErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, FieldError{
			Field:   e.Field(),
			Message: messageFor(e.Field(), e.Tag(), e.Param()),
		})
	}
	return out
}

func messageFor(field, tag, param string) string {
	switch tag {
	case "required", "notblank":
		return field + " is required"
	case "patientemail", "email":
		return "Please enter a valid email"
	case "patientcode":
		return field + " must look like P001"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "notfuture":
		return field + " cannot be in the future"
	case "min":
		return field + " must be at least " + param
	case "max":
		return field + " must be at most " + param
	default:
		return field + " is invalid"
	}
}

// Var validates a single value against tag and reports it under field.
func (v *Validator) Var(field string, value interface{}, tag string) *FieldError {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return &FieldError{Field: field, Message: field + " is invalid"}
	}

	e := validationErrors[0]
	return &FieldError{Field: field, Message: messageFor(field, e.Tag(), e.Param())}
}
