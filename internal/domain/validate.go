package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

//nolint:gochecknoglobals
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// Validate checks that a backend user record is structurally sound.
// Returns ErrInvalidUser describing every failing field.
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: empty record", ErrInvalidUser)
	}

	if err := validateStruct(u); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}

	return nil
}

// Validate checks the value ranges of a profile update.
func (p UserPatch) Validate() error {
	if err := validateStruct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	return nil
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err //nolint:wrapcheck
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}

	return errors.New(strings.Join(msgs, "; ")) //nolint:err113
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
