package promotion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DataValidationError reports a promotion payload that cannot be accepted.
type DataValidationError struct {
	Message string
}

func (e *DataValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &DataValidationError{Message: "Invalid Promotion: " + fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err carries a DataValidationError.
func IsValidationError(err error) bool {
	var target *DataValidationError
	return errors.As(err, &target)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints that the decoder cannot express.
func Validate(p Promotion) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalid("%v", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return invalid("%s", strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	field := jsonField(fe.StructField())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gtefield":
		return field + " must not be before start_date"
	case "oneof":
		return field + " is not a known promotion type"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func jsonField(structField string) string {
	switch structField {
	case "StartDate":
		return "start_date"
	case "EndDate":
		return "end_date"
	default:
		return strings.ToLower(structField)
	}
}
